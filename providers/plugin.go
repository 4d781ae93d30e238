package providers

import (
	"context"
	"errors"
	"time"

	"github.com/orchestra-mcp/presence/config"
	"github.com/orchestra-mcp/presence/src/bridge"
	"github.com/orchestra-mcp/presence/src/hub"
	"github.com/orchestra-mcp/presence/src/metrics"
	"github.com/orchestra-mcp/presence/src/server"
	"github.com/orchestra-mcp/presence/src/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// PresencePlugin wires the hub, bridge and HTTP server into one lifecycle.
type PresencePlugin struct {
	active   bool
	cfg      *config.SocketConfig
	logger   zerolog.Logger
	registry *prometheus.Registry
	hub      *hub.Hub
	service  *service.Service
	server   *server.Server
	bridge   bridge.Bridge
}

// NewPresencePlugin creates a new plugin instance.
func NewPresencePlugin(cfg *config.SocketConfig, logger zerolog.Logger) *PresencePlugin {
	return &PresencePlugin{cfg: cfg, logger: logger}
}

func (p *PresencePlugin) ID() string      { return "orchestra/presence" }
func (p *PresencePlugin) Name() string    { return "Presence" }
func (p *PresencePlugin) Version() string { return "0.1.0" }
func (p *PresencePlugin) IsActive() bool  { return p.active }

// Activate builds the hub, service and server and connects the bridge.
func (p *PresencePlugin) Activate() error {
	p.registry = prometheus.NewRegistry()
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p.hub = hub.New(p.logger, hub.Options{
		SendBuffer:   p.cfg.SendBuffer,
		PingInterval: p.cfg.PingPeriod(),
		EventRate:    p.cfg.EventRate,
		EventBurst:   p.cfg.EventBurst,
		Metrics:      metrics.NewCollector(p.registry),
	})
	p.service = service.New(p.hub, p.logger)
	p.server = server.New(p.cfg, p.service, p.registry, p.logger)

	// Attempt bridge connection (non-fatal if unavailable).
	p.initBridge()

	p.active = true
	p.logger.Info().Str("plugin", p.ID()).Str("version", p.Version()).Msg("presence plugin activated")
	return nil
}

// initBridge tries to start the configured cross-instance bridge.
// If the broker is not reachable, the hub runs in standalone mode.
func (p *PresencePlugin) initBridge() {
	b := bridge.New(p.cfg.BridgeDriver, p.hub, p.logger)
	if b == nil {
		p.logger.Info().Msg("bridge disabled, running standalone")
		return
	}
	if err := b.Start(); err != nil {
		p.logger.Warn().Err(err).Str("driver", p.cfg.BridgeDriver).Msg("bridge unavailable, running standalone")
		_ = b.Stop()
		return
	}

	p.bridge = b
	p.hub.SetBridge(b)
	p.logger.Info().Str("driver", p.cfg.BridgeDriver).Msg("bridge connected")
}

// Serve listens until ctx is cancelled or the listener fails, then
// deactivates the plugin.
func (p *PresencePlugin) Serve(ctx context.Context) error {
	if !p.active {
		return errors.New("presence plugin not activated")
	}
	errCh := make(chan error, 1)
	go func() { errCh <- p.server.ListenAndServe() }()

	var err error
	select {
	case <-ctx.Done():
		p.logger.Info().Msg("shutdown requested")
	case err = <-errCh:
	}
	if derr := p.Deactivate(); derr != nil && err == nil {
		err = derr
	}
	return err
}

// Deactivate stops the server, the hub and the bridge, in that order.
func (p *PresencePlugin) Deactivate() error {
	if !p.active {
		return nil
	}
	p.active = false

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if p.server != nil {
		if serr := p.server.Shutdown(ctx); serr != nil {
			p.logger.Error().Err(serr).Msg("server shutdown error")
			err = serr
		}
	}
	if p.bridge != nil {
		if berr := p.bridge.Stop(); berr != nil {
			p.logger.Error().Err(berr).Msg("bridge stop error")
		}
		p.hub.SetBridge(nil)
		p.bridge = nil
	}
	p.logger.Info().Str("plugin", p.ID()).Msg("presence plugin deactivated")
	return err
}

// Service exposes the read model.
func (p *PresencePlugin) Service() *service.Service { return p.service }
