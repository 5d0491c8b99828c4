// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for pool occupancy, channel depth, watcher signals
// and worker count. Gauges read the pool lazily at scrape time.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/watcher"
)

const namespace = "msgpool"

// Metrics owns a private registry so tests and embedders do not collide on
// the global default registerer.
type Metrics struct {
	reg     *prometheus.Registry
	signals *prometheus.CounterVec
	workers prometheus.Gauge
}

var _ watcher.Handler = (*Metrics)(nil)

// NewMetrics creates the registry with the process and signal collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_signals_total",
			Help:      "Depth watcher signals by channel and kind.",
		}, []string{"channel", "kind"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Running consumer workers.",
		}),
	}
	m.reg.MustRegister(
		prometheus.NewGoCollector(),
		m.signals,
		m.workers,
	)
	return m
}

// Attach registers scrape-time collectors reading p.
func (m *Metrics) Attach(p *msgpool.Pool) error {
	stat := func(f func(api.PoolStats) float64) func() float64 {
		return func() float64 { return f(p.Stats().Pool) }
	}
	cs := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "arena_bytes",
			Help: "Arena capacity in bytes.",
		}, stat(func(s api.PoolStats) float64 { return float64(s.Capacity) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "in_use_bytes",
			Help: "Bytes held by live blocks.",
		}, stat(func(s api.PoolStats) float64 { return float64(s.InUseBytes) })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "in_use_blocks",
			Help: "Live blocks.",
		}, stat(func(s api.PoolStats) float64 { return float64(s.InUseBlocks) })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "alloc_failures_total",
			Help: "Allocations rejected as too large or out of memory.",
		}, stat(func(s api.PoolStats) float64 { return float64(s.Failures) })),
	}
	for i := 0; i < p.NumChannels(); i++ {
		id := api.ChannelID(i)
		labels := prometheus.Labels{"channel": id.String()}
		cs = append(cs,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Name: "channel_depth",
				Help: "Queued messages per channel.", ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Channels[id].Depth) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Name: "channel_posted_total",
				Help: "Messages posted per channel.", ConstLabels: labels,
			}, func() float64 { return float64(p.Stats().Channels[id].Posted) }),
		)
	}
	for _, c := range cs {
		if err := m.reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// HandleSignal counts a watcher signal.
func (m *Metrics) HandleSignal(sig api.Signal) {
	m.signals.WithLabelValues(sig.Channel.String(), sig.Kind.String()).Inc()
}

// SetWorkers records the running worker count.
func (m *Metrics) SetWorkers(n int) { m.workers.Set(float64(n)) }

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
