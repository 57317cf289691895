package similarity

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// MemoryProbe reports heap bytes in use and the budget they count against.
// A zero limit disables the gate.
type MemoryProbe func() (inUse, limit uint64)

// RuntimeProbe reads the Go heap. limit 0 falls back to the runtime soft
// memory limit (GOMEMLIMIT), then to the heap reserved from the OS, so the
// ratio is heap in use over heap total.
func RuntimeProbe(limit uint64) MemoryProbe {
	return func() (uint64, uint64) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		l := limit
		if l == 0 {
			if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
				l = uint64(soft)
			} else {
				l = ms.HeapSys
			}
		}
		return ms.HeapInuse, l
	}
}

// maxPauses bounds how long one gate check can stall a batch.
const maxPauses = 5

// memoryGate pauses batch processing while heap usage is above threshold.
type memoryGate struct {
	probe     MemoryProbe
	threshold float64
	pause     time.Duration
	sleep     func(context.Context, time.Duration) error
	metrics   *engine.Metrics
	logger    *slog.Logger
}

func (g *memoryGate) pressure() (float64, bool) {
	if g.probe == nil || g.threshold <= 0 {
		return 0, false
	}
	inUse, limit := g.probe()
	if limit == 0 {
		return 0, false
	}
	ratio := float64(inUse) / float64(limit)
	return ratio, ratio > g.threshold
}

// wait blocks until pressure drops or maxPauses pauses have elapsed. It only
// returns an error when ctx is done.
func (g *memoryGate) wait(ctx context.Context) error {
	for i := range maxPauses {
		ratio, high := g.pressure()
		if !high {
			return nil
		}
		g.metrics.Incr(engine.MetricMemoryPauses)
		g.logger.Warn("similarity: memory pressure, pausing",
			slog.Float64("ratio", ratio),
			slog.Float64("threshold", g.threshold),
			slog.Int("pause", i+1))
		runtime.GC()
		if err := g.sleep(ctx, g.pause); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
