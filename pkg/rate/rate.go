// Package rate implements the stateful per-series rate-of-change
// transform, converting cumulative counter or gauge values to
// per-second rates. It follows the pairwise walk TickTockDB's
// RateCalculator::calculate uses (original_source/src/agg/rate.cpp),
// with one deliberate behavior change: that implementation's
// drop_resets branch skips the point entirely (a `goto cont` that
// never advances the output cursor); here drop_resets emits an
// explicit 0 instead, so a rate series never silently shrinks.
package rate

import (
	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Options mirrors RateOptions: counter handling, counter wrap, and
// reset detection.
type Options struct {
	Counter     bool
	DropResets  bool
	CounterMax  uint64
	ResetValue  uint64
}

// Apply converts points (already aggregated/downsampled, in
// nondecreasing timestamp order) to a rate series. The first point is
// consumed to seed the initial delta and does not appear in the
// output; Apply returns len(points)-1 points for len(points) >= 2, or
// no points otherwise.
func Apply(points []downsample.Point, opts Options, res timeutil.Resolution) []downsample.Point {
	if len(points) < 2 {
		return nil
	}

	out := make([]downsample.Point, 0, len(points)-1)
	t0, v0 := points[0].TS, points[0].V

	for _, p := range points[1:] {
		t1, v1 := p.TS, p.V
		dtSecs := secondsBetween(t0, t1, res)
		dv := v1 - v0

		var rate float64
		switch {
		case dv < 0 && opts.Counter && opts.DropResets:
			rate = 0
		case dv < 0 && opts.Counter:
			rate = (float64(opts.CounterMax) - v0 + v1) / dtSecs
			if opts.ResetValue != 0 && rate >= float64(opts.ResetValue) {
				rate = 0
			}
		default:
			rate = dv / dtSecs
		}

		out = append(out, downsample.Point{TS: t1, V: rate})
		t0, v0 = t1, v1
	}

	return out
}

func secondsBetween(t0, t1 timeutil.Timestamp, res timeutil.Resolution) float64 {
	delta := float64(t1 - t0)
	if res == timeutil.ResolutionMillis {
		delta /= 1000.0
	}
	return delta
}
