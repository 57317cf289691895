package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMetricsIncr(t *testing.T) {
	m := NewMetrics(nil)
	m.Incr(MetricEmbedCalls)
	m.Incr(MetricEmbedCalls)
	m.Incr(MetricQueueFailed)

	if got := m.Get(MetricEmbedCalls); got != 2 {
		t.Errorf("embed_calls = %d, want 2", got)
	}
	snap := m.Snapshot()
	if snap["queue_failed"] != 1 {
		t.Errorf("queue_failed = %d, want 1", snap["queue_failed"])
	}
	if _, ok := snap["cache_hits"]; !ok {
		t.Error("snapshot missing cache_hits")
	}
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.Incr(MetricEmbedCalls)
	if m.Get(MetricEmbedCalls) != 0 {
		t.Error("nil metrics must read zero")
	}
	if !strings.Contains(m.Format(), "embed_calls 0") {
		t.Error("nil metrics must still format")
	}
}

func TestMetricsFormat(t *testing.T) {
	m := NewMetrics(nil)
	m.Incr(MetricSimilarityRuns)
	out := m.Format()
	for _, want := range []string{"similarity_runs 1\n", "scoring_recomputes 0\n", "cache_misses 0\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestMetricsGauges(t *testing.T) {
	m := NewMetrics(nil)
	calls := 0
	m.SetGauges(func() map[string]int64 {
		calls++
		return map[string]int64{"queue_items_b": 2, "queue_items_a": 1}
	})
	out := m.Format()
	if calls != 1 {
		t.Errorf("gauge source called %d times, want 1", calls)
	}
	a, b := strings.Index(out, "queue_items_a 1\n"), strings.Index(out, "queue_items_b 2\n")
	if a < 0 || b < 0 || a > b {
		t.Errorf("gauges missing or unsorted in:\n%s", out)
	}
	if got := m.Snapshot()["queue_items_b"]; got != 2 {
		t.Errorf("snapshot queue_items_b = %d, want 2", got)
	}

	var nilMetrics *Metrics
	nilMetrics.SetGauges(func() map[string]int64 { return nil })
}

func TestTrackOperationPassesError(t *testing.T) {
	want := errors.New("boom")
	err := TrackOperation(context.Background(), "op", time.Hour, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("got %v, want %v", err, want)
	}
}
