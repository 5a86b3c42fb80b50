package queryplan

import (
	"context"
	"log"

	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// SeriesTask is one unit of executor work: the physical series
// segments sharing a logical series key, a time range, an optional
// per-task downsampler, and the point vector it accumulates into.
// SeriesTask implements executor.Task. Completion signaling is the
// executor's job, not the task's: Executor.ExecuteParallel wraps each
// task in its own barrier-countdown closure.
type SeriesTask struct {
	Key         string
	TimeRange   timeutil.Range
	Downsampler *downsample.Downsampler
	Series      []shard.Series
	Out         []downsample.Point
}

// Perform runs the task: reads every physical series segment through
// a range-filtering sink, feeding accepted points to the downsampler
// (or straight into Out if the query had none), then flushes any
// pending bucket. Storage errors are logged and degrade this task to
// whatever partial output it already accumulated.
func (t *SeriesTask) Perform(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("queryplan: series task %q panicked: %v", t.Key, r)
		}
	}()

	sink := func(ts timeutil.Timestamp, v float64) shard.SinkResult {
		if ts < t.TimeRange.From {
			return shard.BelowRange
		}
		if ts > t.TimeRange.To {
			return shard.AboveRange
		}
		if t.Downsampler != nil {
			t.Downsampler.Add(ts, v, &t.Out)
		} else {
			t.Out = append(t.Out, downsample.Point{TS: ts, V: v})
		}
		return shard.InRange
	}

	for _, s := range t.Series {
		if err := s.Read(ctx, t.TimeRange, sink); err != nil {
			log.Printf("queryplan: series task %q: storage read failed: %v", t.Key, err)
		}
	}

	if t.Downsampler != nil {
		t.Downsampler.FlushAndFill(&t.Out)
	}
}
