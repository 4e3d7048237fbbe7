package pregel

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible observations for a
// running graph, namespaced "pregel_":
//
//  1. inflight_nodes (gauge): nodes currently executing within a step.
//     Labels: run_id.
//  2. superstep_latency_ms (histogram): wall-clock duration of one
//     superstep (plan + dispatch + collect + commit). Labels: run_id,
//     status (success/error).
//  3. node_latency_ms (histogram): duration of one node invocation.
//     Labels: run_id, node_id, status.
//  4. retries_total (counter): retry attempts per node. Labels: run_id,
//     node_id, reason.
//  5. update_rejections_total (counter): channel Update calls that
//     returned ErrInvalidUpdate. Labels: run_id, channel.
//  6. checkpoint_writes_total (counter): successful Store.Put calls.
//     Labels: run_id.
//
// All methods are safe for concurrent use.
type PrometheusMetrics struct {
	inflightNodes prometheus.Gauge

	superstepLatency *prometheus.HistogramVec
	nodeLatency      *prometheus.HistogramVec

	retries            *prometheus.CounterVec
	updateRejections   *prometheus.CounterVec
	checkpointWrites   *prometheus.CounterVec

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewPrometheusMetrics registers every pregel_* metric with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{registry: registry, enabled: true}

	pm.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "pregel",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing within the active superstep",
	})

	pm.superstepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pregel",
		Name:      "superstep_latency_ms",
		Help:      "Duration of one superstep (plan, dispatch, collect, commit) in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "status"})

	pm.nodeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pregel",
		Name:      "node_latency_ms",
		Help:      "Duration of one node invocation in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"run_id", "node_id", "status"})

	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "retries_total",
		Help:      "Cumulative retry attempts across all node invocations",
	}, []string{"run_id", "node_id", "reason"})

	pm.updateRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "update_rejections_total",
		Help:      "Channel Update calls rejected with ErrInvalidUpdate",
	}, []string{"run_id", "channel"})

	pm.checkpointWrites = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pregel",
		Name:      "checkpoint_writes_total",
		Help:      "Successful checkpoint store writes",
	}, []string{"run_id"})

	return pm
}

// RecordSuperstepLatency observes the duration of one superstep.
func (pm *PrometheusMetrics) RecordSuperstepLatency(runID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.superstepLatency.WithLabelValues(runID, status).Observe(float64(latency.Milliseconds()))
}

// RecordNodeLatency observes the duration of one node invocation.
func (pm *PrometheusMetrics) RecordNodeLatency(runID, nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.nodeLatency.WithLabelValues(runID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries increments the retry counter for a node.
func (pm *PrometheusMetrics) IncrementRetries(runID, nodeID, reason string) {
	if !pm.isEnabled() {
		return
	}
	pm.retries.WithLabelValues(runID, nodeID, reason).Inc()
}

// UpdateInflightNodes sets the current in-step concurrency level.
func (pm *PrometheusMetrics) UpdateInflightNodes(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.inflightNodes.Set(float64(count))
}

// IncrementUpdateRejections increments the rejected-Update counter for a
// channel.
func (pm *PrometheusMetrics) IncrementUpdateRejections(runID, channel string) {
	if !pm.isEnabled() {
		return
	}
	pm.updateRejections.WithLabelValues(runID, channel).Inc()
}

// IncrementCheckpointWrites increments the successful checkpoint-write
// counter.
func (pm *PrometheusMetrics) IncrementCheckpointWrites(runID string) {
	if !pm.isEnabled() {
		return
	}
	pm.checkpointWrites.WithLabelValues(runID).Inc()
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable stops metric recording (useful in tests).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
