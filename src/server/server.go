package server

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/presence/config"
	"github.com/orchestra-mcp/presence/src/hub"
	"github.com/orchestra-mcp/presence/src/metrics"
	"github.com/orchestra-mcp/presence/src/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server serves the WebSocket endpoint, the metrics endpoint and the fiber
// routes from one fasthttp listener. Fiber v3 does not expose
// *fasthttp.RequestCtx, so the upgrade runs on the root handler.
type Server struct {
	cfg      *config.SocketConfig
	hub      *hub.Hub
	svc      *service.Service
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader
	metrics  fasthttp.RequestHandler
	logger   zerolog.Logger
	active   atomic.Int64
	http     *fasthttp.Server
}

// New builds a server. gatherer may be nil, in which case /metrics is not served.
func New(cfg *config.SocketConfig, svc *service.Service, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		hub:    svc.Hub(),
		svc:    svc,
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(ctx *fasthttp.RequestCtx) bool {
			return cfg.OriginAllowed(string(ctx.Request.Header.Peek("Origin")))
		},
	}
	if gatherer != nil {
		s.metrics = metrics.Handler(gatherer)
	}
	s.app = newApp(svc)
	s.http = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "presence",
		WriteTimeout: cfg.WriteWait(),
	}
	return s
}

// App returns the fiber application serving the HTTP routes.
func (s *Server) App() *fiber.App { return s.app }

// Handler returns the root fasthttp handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	routes := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/ws":
			s.handleWS(ctx)
		case "/metrics":
			if s.metrics != nil {
				s.metrics(ctx)
				return
			}
			routes(ctx)
		default:
			routes(ctx)
		}
	}
}

func (s *Server) handleWS(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		writeError(ctx, fasthttp.StatusUpgradeRequired, "upgrade_required", "WebSocket upgrade required")
		return
	}
	if s.hub.Draining() {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "shutting_down", "Server is shutting down")
		return
	}
	if !s.reserve() {
		s.logger.Warn().Int("max_connections", s.cfg.MaxConnections).Msg("connection limit reached")
		writeError(ctx, fasthttp.StatusServiceUnavailable, "too_many_connections", "Connection limit reached")
		return
	}

	clientID := uuid.New().String()
	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer s.release()
		wc := newWSConn(conn, int64(s.cfg.MaxMessageSize), s.cfg.PongWait(), s.cfg.WriteWait())
		client := hub.NewClient(clientID, wc, s.hub)
		if err := s.hub.Register(client); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", clientID).Msg("register refused")
			_ = wc.Close()
			return
		}
		go client.WritePump()
		client.ReadPump()
	})
	if err != nil {
		s.release()
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

func (s *Server) reserve() bool {
	if s.cfg.MaxConnections <= 0 {
		s.active.Add(1)
		return true
	}
	if s.active.Add(1) > int64(s.cfg.MaxConnections) {
		s.active.Add(-1)
		return false
	}
	return true
}

func (s *Server) release() { s.active.Add(-1) }

func writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"` + code + `","message":"` + msg + `"}`)
}

// ListenAndServe blocks serving on the configured port.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.cfg.Addr()).Msg("listening")
	return s.http.ListenAndServe(s.cfg.Addr())
}

// Shutdown disconnects every WebSocket client, then stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.http.ShutdownWithContext(ctx)
}
