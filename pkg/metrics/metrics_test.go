package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Retrievals.Inc()
	m.Retrievals.Inc()
	m.StageFailures.WithLabelValues("semantic").Inc()
	m.StageLatency.WithLabelValues("episodic").Observe(0.05)
	m.BudgetUsed.Observe(512)
	m.Truncations.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	if mf := byName["engram_retrievals_total"]; mf == nil {
		t.Fatal("retrievals counter not registered")
	} else if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("expected 2 retrievals, got %v", got)
	}

	mf := byName["engram_stage_failures_total"]
	if mf == nil {
		t.Fatal("stage failures counter not registered")
	}
	labels := mf.GetMetric()[0].GetLabel()
	if len(labels) != 1 || labels[0].GetValue() != "semantic" {
		t.Errorf("expected semantic stage label, got %v", labels)
	}

	if mf := byName["engram_stage_duration_seconds"]; mf == nil {
		t.Fatal("stage latency histogram not registered")
	} else if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("expected 1 latency sample, got %d", got)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
