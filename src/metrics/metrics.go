// Package metrics exposes presence server counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Drop reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonUnidentified = "unidentified"
	ReasonNotJoined    = "not_joined"
	ReasonRateLimited  = "rate_limited"
	ReasonUnknown      = "unknown_event"
)

// Recorder is what the hub reports to.
type Recorder interface {
	SetConnections(n int)
	SetUsers(n int)
	SetRooms(n int)
	RecordEvent(event string)
	RecordDropped(reason string)
	RecordDelivery(event string, recipients int)
	RecordSendDropped()
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetConnections(int)         {}
func (Nop) SetUsers(int)               {}
func (Nop) SetRooms(int)               {}
func (Nop) RecordEvent(string)         {}
func (Nop) RecordDropped(string)       {}
func (Nop) RecordDelivery(string, int) {}
func (Nop) RecordSendDropped()         {}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	connections prometheus.Gauge
	users       prometheus.Gauge
	rooms       prometheus.Gauge
	received    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	sendDropped prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_connections",
			Help: "Open WebSocket connections.",
		}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_users",
			Help: "Identified users with at least one connection.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_rooms",
			Help: "Rooms with at least one member.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_events_received_total",
			Help: "Inbound events by name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_events_dropped_total",
			Help: "Inbound events ignored, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_deliveries_total",
			Help: "Outbound frames queued to connections, by event.",
		}, []string{"event"}),
		sendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_send_dropped_total",
			Help: "Outbound frames dropped because a send buffer was full.",
		}),
	}

	reg.MustRegister(
		c.connections,
		c.users,
		c.rooms,
		c.received,
		c.dropped,
		c.deliveries,
		c.sendDropped,
	)
	return c
}

func (c *Collector) SetConnections(n int) { c.connections.Set(float64(n)) }
func (c *Collector) SetUsers(n int)       { c.users.Set(float64(n)) }
func (c *Collector) SetRooms(n int)       { c.rooms.Set(float64(n)) }

// RecordEvent counts an inbound event. Only known event names reach it,
// so clients cannot grow the label set.
func (c *Collector) RecordEvent(event string) {
	c.received.WithLabelValues(event).Inc()
}

func (c *Collector) RecordDropped(reason string) {
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordDelivery(event string, recipients int) {
	c.deliveries.WithLabelValues(event).Add(float64(recipients))
}

func (c *Collector) RecordSendDropped() { c.sendDropped.Inc() }

// Handler returns a fasthttp handler serving the Prometheus exposition.
func Handler(gatherer prometheus.Gatherer) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
