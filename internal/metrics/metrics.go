// Package metrics exports bridge counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
)

const metricPrefix = "museosc_"

// Collector implements network.TransmitStats and pipeline.Stats. Each
// Collector owns its registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	dispatched *prometheus.CounterVec
	invalid    *prometheus.CounterVec
	sentMsgs   *prometheus.CounterVec
	sentBytes  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	connected  prometheus.Gauge
	paused     prometheus.Gauge
}

var (
	_ network.TransmitStats = (*Collector)(nil)
	_ pipeline.Stats        = (*Collector)(nil)
)

// New builds a Collector with Go runtime and process collectors attached.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "packets_total",
				Help: "Headband packets handled by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		invalid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invalid_readings_total",
				Help: "Channel readings replaced by the invalid sentinel, by category and channel",
			},
			[]string{"category", "channel"},
		),
		sentMsgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "osc_sent_total",
				Help: "OSC messages written by OSC address",
			},
			[]string{"address"},
		),
		sentBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "osc_sent_bytes_total",
				Help: "OSC bytes written by OSC address",
			},
			[]string{"address"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "osc_dropped_total",
				Help: "OSC messages dropped because the send queue was full",
			},
			[]string{"address"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "osc_failed_total",
				Help: "OSC messages whose socket write failed",
			},
			[]string{"address"},
		),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "headband_connected",
			Help: "1 while the headband reports a connected state",
		}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "transmission_paused",
			Help: "1 while OSC transmission is paused",
		}),
	}
	c.registry.MustRegister(
		c.dispatched,
		c.invalid,
		c.sentMsgs,
		c.sentBytes,
		c.dropped,
		c.failed,
		c.connected,
		c.paused,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveDispatch counts one packet outcome.
func (c *Collector) ObserveDispatch(cat packet.Category, o pipeline.Outcome) {
	c.dispatched.WithLabelValues(cat.String(), o.String()).Inc()
}

// ObserveInvalid counts one substituted channel reading.
func (c *Collector) ObserveInvalid(cat packet.Category, ch packet.Channel) {
	c.invalid.WithLabelValues(cat.String(), ch.String()).Inc()
}

// AddSent counts a successful write.
func (c *Collector) AddSent(address string, bytes int) {
	c.sentMsgs.WithLabelValues(address).Inc()
	c.sentBytes.WithLabelValues(address).Add(float64(bytes))
}

// AddDropped counts a queue-full drop.
func (c *Collector) AddDropped(address string) {
	c.dropped.WithLabelValues(address).Inc()
}

// AddFailed counts a failed write.
func (c *Collector) AddFailed(address string) {
	c.failed.WithLabelValues(address).Inc()
}

// ConnectionChanged tracks the headband connection state.
func (c *Collector) ConnectionChanged(evt packet.ConnectionEvent) {
	if evt.Current == packet.StateConnected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

// SetPaused records the transmission pause state.
func (c *Collector) SetPaused(paused bool) {
	if paused {
		c.paused.Set(1)
	} else {
		c.paused.Set(0)
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
