package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"corevm/internal/heap"
	"corevm/internal/interp"
	"corevm/internal/object"
	"corevm/internal/optjit"
)

// Metrics exposes the engine's internal counters and histograms (GC pause
// histograms, tier-up counters, deopt counters) as a self-contained
// Prometheus registry: collectors register on a private
// *prometheus.Registry rather than the global DefaultRegisterer, so two
// Engines in one process never collide on metric names.
type Metrics struct {
	Registry *prometheus.Registry

	gcPause  *prometheus.HistogramVec
	tierUps  *prometheus.CounterVec
	deopts   *prometheus.CounterVec
	heapLive prometheus.Gauge
}

// NewMetrics builds a Metrics with its own private registry, already
// populated with the collectors every Engine feeds.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		gcPause: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "corevm_gc_pause_seconds",
			Help:    "Stop-the-world pause duration per collection.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"generation"}),
		tierUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corevm_tier_up_total",
			Help: "Function tier-up events, by destination tier.",
		}, []string{"tier"}),
		deopts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corevm_deopt_total",
			Help: "Optimized-region guard failures, by reason.",
		}, []string{"reason"}),
		heapLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "corevm_heap_bytes_live",
			Help: "Bytes live in the old generation as of the last major collection.",
		}),
	}
	reg.MustRegister(m.gcPause, m.tierUps, m.deopts, m.heapLive)
	return m
}

// attach wires h and vm's instrumentation hooks into m's collectors. Called
// once by engine.New; a Metrics shared across several Engines (via
// WithMetrics) gets attach called once per Engine, which is fine since
// every collector here is keyed only by label, not by engine identity.
func (m *Metrics) attach(h *heap.Heap, vm *interp.VM) {
	h.OnGCPause = func(d time.Duration, major bool) {
		gen := "minor"
		if major {
			gen = "major"
		}
		m.gcPause.WithLabelValues(gen).Observe(d.Seconds())
		m.heapLive.Set(float64(h.Stats().BytesLive))
	}
	vm.OnTierUp = func(fn *object.FunctionObject, tier int) {
		label := "baseline"
		if tier == 2 {
			label = "optimized"
		}
		m.tierUps.WithLabelValues(label).Inc()
	}
	vm.OnDeopt = func(fn *object.FunctionObject, reason optjit.DeoptReason) {
		m.deopts.WithLabelValues(reason.String()).Inc()
	}
}
