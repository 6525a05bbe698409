// Package metrics exports collector activity as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/collector"
)

var _ collector.Observer = (*Metrics)(nil)

// Metrics implements collector.Observer.
//
// All metrics use the wasmgc_ prefix. A nil *Metrics is a valid no-op
// observer.
type Metrics struct {
	// AllocationsTotal counts tracked allocations by shape id.
	AllocationsTotal *prometheus.CounterVec

	// AllocatedBytesTotal counts bytes handed out by Allocate.
	AllocatedBytesTotal prometheus.Counter

	// CyclesTotal counts collection cycles by trigger.
	CyclesTotal *prometheus.CounterVec

	// FreedObjectsTotal and FreedBytesTotal count sweep reclamation.
	FreedObjectsTotal prometheus.Counter
	FreedBytesTotal   prometheus.Counter

	// CycleDuration tracks stop-the-world pause length.
	CycleDuration prometheus.Histogram

	// Roots is the number of roots found by the last cycle.
	Roots prometheus.Gauge

	// LiveObjects and LiveBytes describe the heap after the last cycle.
	LiveObjects prometheus.Gauge
	LiveBytes   prometheus.Gauge
}

// NewMetrics creates and registers the collector metrics. It panics if
// registration fails.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AllocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasmgc_allocations_total",
				Help: "Total tracked allocations by shape id",
			},
			[]string{"shape"},
		),
		AllocatedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasmgc_allocated_bytes_total",
				Help: "Total bytes allocated for tracked objects",
			},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasmgc_cycles_total",
				Help: "Total collection cycles by trigger",
			},
			[]string{"trigger"}, // "explicit", "threshold", "exhausted"
		),
		FreedObjectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasmgc_freed_objects_total",
				Help: "Total objects reclaimed by sweep",
			},
		),
		FreedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wasmgc_freed_bytes_total",
				Help: "Total bytes reclaimed by sweep",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wasmgc_cycle_duration_seconds",
				Help:    "Collection cycle duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		Roots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wasmgc_roots",
				Help: "Roots found on the stack by the last cycle",
			},
		),
		LiveObjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wasmgc_live_objects",
				Help: "Tracked objects alive after the last cycle",
			},
		),
		LiveBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wasmgc_live_bytes",
				Help: "Bytes in tracked objects alive after the last cycle",
			},
		),
	}

	reg.MustRegister(
		m.AllocationsTotal,
		m.AllocatedBytesTotal,
		m.CyclesTotal,
		m.FreedObjectsTotal,
		m.FreedBytesTotal,
		m.CycleDuration,
		m.Roots,
		m.LiveObjects,
		m.LiveBytes,
	)

	return m
}

// ObserveAlloc records one tracked allocation.
func (m *Metrics) ObserveAlloc(id wasmgc.ShapeID, size uint32) {
	if m == nil {
		return
	}
	m.AllocationsTotal.WithLabelValues(strconv.FormatUint(uint64(id), 10)).Inc()
	m.AllocatedBytesTotal.Add(float64(size))
}

// ObserveCycle records a finished collection cycle.
func (m *Metrics) ObserveCycle(cs collector.CycleStats) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(cs.Trigger.String()).Inc()
	m.FreedObjectsTotal.Add(float64(cs.Freed))
	m.FreedBytesTotal.Add(float64(cs.FreedBytes))
	m.CycleDuration.Observe(cs.Duration.Seconds())
	m.Roots.Set(float64(cs.Roots))
	m.LiveObjects.Set(float64(cs.LiveObjects))
	m.LiveBytes.Set(float64(cs.LiveBytes))
}

// NullMetrics returns nil, which acts as a no-op observer.
func NullMetrics() *Metrics {
	return nil
}
