package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Metric names an operational counter.
type Metric int

const (
	MetricEmbedCalls Metric = iota
	MetricEmbedErrors
	MetricEmbedRetries
	MetricEmbedCacheHits
	MetricBreakerOpen
	MetricQueueEnqueued
	MetricQueueDeduplicated
	MetricQueueClaimed
	MetricQueueCompleted
	MetricQueueFailed
	MetricSimilarityRuns
	MetricSimilaritySkipped
	MetricMemoryPauses
	MetricScoringRecomputes
	MetricScoringCacheServed
	metricCount
)

var metricNames = [metricCount]string{
	MetricEmbedCalls:         "embed_calls",
	MetricEmbedErrors:        "embed_errors",
	MetricEmbedRetries:       "embed_retries",
	MetricEmbedCacheHits:     "embed_cache_hits",
	MetricBreakerOpen:        "breaker_open",
	MetricQueueEnqueued:      "queue_enqueued",
	MetricQueueDeduplicated:  "queue_deduplicated",
	MetricQueueClaimed:       "queue_claimed",
	MetricQueueCompleted:     "queue_completed",
	MetricQueueFailed:        "queue_failed",
	MetricSimilarityRuns:     "similarity_runs",
	MetricSimilaritySkipped:  "similarity_skipped_vectors",
	MetricMemoryPauses:       "memory_pauses",
	MetricScoringRecomputes:  "scoring_recomputes",
	MetricScoringCacheServed: "scoring_cache_served",
}

func (m Metric) String() string { return metricNames[m] }

// GaugeFunc reports point-in-time values, such as queue depth, at format time.
type GaugeFunc func() map[string]int64

// Metrics tracks operational counters. A nil *Metrics is a no-op.
type Metrics struct {
	counters [metricCount]atomic.Int64
	cache    *Cache
	gauges   atomic.Pointer[GaugeFunc]
}

// NewMetrics creates a registry; cache may be nil.
func NewMetrics(cache *Cache) *Metrics {
	return &Metrics{cache: cache}
}

// Incr increments a counter.
func (m *Metrics) Incr(k Metric) {
	if m == nil {
		return
	}
	m.counters[k].Add(1)
}

// Get returns the current value of a counter.
func (m *Metrics) Get(k Metric) int64 {
	if m == nil {
		return 0
	}
	return m.counters[k].Load()
}

// SetGauges installs the gauge source reported by Snapshot and Format.
func (m *Metrics) SetGauges(fn GaugeFunc) {
	if m == nil {
		return
	}
	m.gauges.Store(&fn)
}

func (m *Metrics) gaugeValues() map[string]int64 {
	if m == nil {
		return nil
	}
	fn := m.gauges.Load()
	if fn == nil || *fn == nil {
		return nil
	}
	return (*fn)()
}

// Snapshot returns all counters including cache stats and gauges.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64, metricCount+2)
	for k := Metric(0); k < metricCount; k++ {
		out[k.String()] = m.Get(k)
	}
	var hits, misses int64
	if m != nil {
		hits, misses = m.cache.Stats()
	}
	out["cache_hits"] = hits
	out["cache_misses"] = misses
	for k, v := range m.gaugeValues() {
		out[k] = v
	}
	return out
}

// Format returns metrics as a simple text format for the HTTP endpoint.
func (m *Metrics) Format() string {
	var sb strings.Builder
	for k := Metric(0); k < metricCount; k++ {
		fmt.Fprintf(&sb, "%s %d\n", k, m.Get(k))
	}
	var hits, misses int64
	if m != nil {
		hits, misses = m.cache.Stats()
	}
	fmt.Fprintf(&sb, "cache_hits %d\n", hits)
	fmt.Fprintf(&sb, "cache_misses %d\n", misses)
	gauges := m.gaugeValues()
	for _, k := range slices.Sorted(maps.Keys(gauges)) {
		fmt.Fprintf(&sb, "%s %d\n", k, gauges[k])
	}
	return sb.String()
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
