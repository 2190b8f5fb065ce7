package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PortalMetrics tracks portal call statistics per object type alongside
// Prometheus collectors labelled by operation, strategy, and location.
type PortalMetrics struct {
	mu sync.RWMutex

	// Per-object-type counts
	objectCounts map[string]*PortalObjectMetrics

	// Prometheus collectors
	callsTotal      *prometheus.CounterVec
	callsInFlight   *prometheus.GaugeVec
	durationSeconds *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// PortalObjectMetrics holds call metrics for one registered domain type.
type PortalObjectMetrics struct {
	Calls           uint64    `json:"calls"`
	Failures        uint64    `json:"failures"`
	LastCalledAt    time.Time `json:"last_called_at,omitempty"`
	AvgDurationMs   float64   `json:"avg_duration_ms"`
	totalDurationNs int64
}

// PortalMetricsSnapshot provides a point-in-time view of portal metrics.
type PortalMetricsSnapshot struct {
	TotalCalls    uint64                          `json:"total_calls"`
	TotalFailures uint64                          `json:"total_failures"`
	ObjectMetrics map[string]*PortalObjectMetrics `json:"object_metrics"`
	CollectedAt   time.Time                       `json:"collected_at"`
}

// newPortalCounterVec creates a counter vec with the standard portalflow/portal namespace.
func newPortalCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portalflow",
			Subsystem: "portal",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newPortalGaugeVec creates a gauge vec with the standard portalflow/portal namespace.
func newPortalGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "portalflow",
			Subsystem: "portal",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newPortalHistogramVec creates a histogram vec with the standard portalflow/portal namespace.
func newPortalHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portalflow",
			Subsystem: "portal",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPortalMetrics creates a portal metrics collector.
func NewPortalMetrics(registerer prometheus.Registerer) *PortalMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PortalMetrics{
		objectCounts:    make(map[string]*PortalObjectMetrics),
		registerer:      registerer,
		callsTotal:      newPortalCounterVec("calls_total", "Total number of portal calls", []string{"operation", "strategy", "location", "outcome"}),
		callsInFlight:   newPortalGaugeVec("calls_in_flight", "Portal calls currently executing", []string{"operation"}),
		durationSeconds: newPortalHistogramVec("call_duration_seconds", "Portal call duration including backend and channel latency", []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}, []string{"operation", "strategy"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *PortalMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.callsTotal,
		m.callsInFlight,
		m.durationSeconds,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Check if it's already registered (not an error)
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// CallStarted marks a portal call as in flight.
func (m *PortalMetrics) CallStarted(op Operation) {
	m.callsInFlight.WithLabelValues(string(op)).Inc()
}

// RecordCall records a finished portal call.
func (m *PortalMetrics) RecordCall(objectType string, op Operation, strategyKind, location string, duration time.Duration, err error) {
	m.callsInFlight.WithLabelValues(string(op)).Dec()

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.callsTotal.WithLabelValues(string(op), strategyKind, location, outcome).Inc()
	m.durationSeconds.WithLabelValues(string(op), strategyKind).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateObjectMetrics(objectType)
	metrics.Calls++
	if err != nil {
		metrics.Failures++
	}
	metrics.LastCalledAt = time.Now()
	metrics.totalDurationNs += int64(duration)
	metrics.AvgDurationMs = float64(metrics.totalDurationNs) / float64(metrics.Calls) / 1e6
}

// GetSnapshot returns a point-in-time snapshot of all portal metrics.
func (m *PortalMetrics) GetSnapshot() PortalMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := PortalMetricsSnapshot{
		ObjectMetrics: make(map[string]*PortalObjectMetrics),
		CollectedAt:   time.Now(),
	}

	for objectType, metrics := range m.objectCounts {
		metricsCopy := &PortalObjectMetrics{
			Calls:         metrics.Calls,
			Failures:      metrics.Failures,
			LastCalledAt:  metrics.LastCalledAt,
			AvgDurationMs: metrics.AvgDurationMs,
		}
		snapshot.ObjectMetrics[objectType] = metricsCopy
		snapshot.TotalCalls += metrics.Calls
		snapshot.TotalFailures += metrics.Failures
	}

	return snapshot
}

func (m *PortalMetrics) getOrCreateObjectMetrics(objectType string) *PortalObjectMetrics {
	if metrics, ok := m.objectCounts[objectType]; ok {
		return metrics
	}
	metrics := &PortalObjectMetrics{}
	m.objectCounts[objectType] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *PortalMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objectCounts = make(map[string]*PortalObjectMetrics)
	m.callsTotal.Reset()
	m.callsInFlight.Reset()
	m.durationSeconds.Reset()
}
