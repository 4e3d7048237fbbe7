package pregel

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusMetrics_RecordsObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.RecordSuperstepLatency("run-1", 25*time.Millisecond, "success")
	pm.RecordNodeLatency("run-1", "node-a", 10*time.Millisecond, "success")
	pm.IncrementRetries("run-1", "node-a", "timeout")
	pm.UpdateInflightNodes(3)
	pm.IncrementUpdateRejections("run-1", "counter")
	pm.IncrementCheckpointWrites("run-1")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"pregel_inflight_nodes",
		"pregel_superstep_latency_ms",
		"pregel_node_latency_ms",
		"pregel_retries_total",
		"pregel_update_rejections_total",
		"pregel_checkpoint_writes_total",
	} {
		if !found[name] {
			t.Errorf("expected metric family %q to be registered", name)
		}
	}
}

func TestPrometheusMetrics_DisableStopsRecording(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)
	pm.Disable()

	pm.IncrementCheckpointWrites("run-1")

	families, _ := registry.Gather()
	for _, f := range families {
		if f.GetName() != "pregel_checkpoint_writes_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			if m.GetCounter().GetValue() != 0 {
				t.Fatalf("expected no increment while disabled, got %v", m.GetCounter().GetValue())
			}
		}
	}

	pm.Enable()
	pm.IncrementCheckpointWrites("run-1")
	families, _ = registry.Gather()
	var total float64
	for _, f := range families {
		if f.GetName() != "pregel_checkpoint_writes_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	if total != 1 {
		t.Fatalf("expected one increment after Enable, got %v", total)
	}
}
