package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000, 20000, 50000, 100000)

// Float64Timer records durations in milliseconds.
type Float64Timer struct {
	measureMs *stats.Float64Measure
	view      *view.View
}

// NewTimerMs registers a latency view.
func NewTimerMs(name, desc string) *Float64Timer {
	m := stats.Float64(name, desc, stats.UnitMilliseconds)
	return &Float64Timer{measureMs: m, view: register(name, desc, m, defaultMillisecondsDistribution)}
}

// Start starts a stopwatch for one measurement.
func (t *Float64Timer) Start(ctx context.Context) *Stopwatch {
	return &Stopwatch{
		ctx:      ctx,
		start:    time.Now(),
		recorder: t.measureMs.M,
	}
}

// Stopwatch is one running measurement of a Float64Timer.
type Stopwatch struct {
	ctx      context.Context
	start    time.Time
	recorder func(v float64) stats.Measurement
}

// Stop records the time elapsed since Start and returns it.
func (sw *Stopwatch) Stop(ctx context.Context) time.Duration {
	d := time.Since(sw.start)
	stats.Record(ctx, sw.recorder(float64(d)/float64(time.Millisecond)))
	return d
}
