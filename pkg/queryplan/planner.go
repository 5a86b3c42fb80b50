package queryplan

import (
	"context"
	"fmt"

	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/shard"
)

// Planner turns a Query into the SeriesTasks the executor runs and the
// shards those tasks read from, mirroring the storage walk ktsdb's
// query path does against its segment set before handing series off
// to worker threads.
type Planner struct{}

// Plan opens every shard overlapping the query's time range, resolves
// the metric/tag filter against each, and deduplicates the resulting
// physical series fragments into one SeriesTask per logical series
// key. Callers must Release every returned shard once all tasks built
// from it have completed.
func (Planner) Plan(ctx context.Context, q *Query, store shard.Store) ([]*SeriesTask, []shard.Shard, error) {
	shards, err := store.OpenShards(ctx, q.TimeRange)
	if err != nil {
		return nil, nil, fmt.Errorf("queryplan: open shards: %w", err)
	}

	opened := make([]shard.Shard, 0, len(shards))
	tasksByKey := make(map[string]*SeriesTask)
	order := make([]string, 0)

	for i, s := range shards {
		found, err := s.FindSeries(q.Metric, q.Tags)
		if err != nil {
			for _, o := range opened {
				o.Release()
			}
			for _, rest := range shards[i:] {
				rest.Release()
			}
			return nil, nil, fmt.Errorf("queryplan: find series in shard %s: %w", s.ID(), err)
		}

		if len(found) == 0 {
			s.Release()
			continue
		}
		opened = append(opened, s)

		for _, series := range found {
			key := series.Key()
			t, ok := tasksByKey[key]
			if !ok {
				t = &SeriesTask{
					Key:       key,
					TimeRange: q.TimeRange,
				}
				if q.Downsample != nil {
					t.Downsampler = downsample.New(*q.Downsample, q.TimeRange)
				}
				tasksByKey[key] = t
				order = append(order, key)
			}
			t.Series = append(t.Series, series)
		}
	}

	tasks := make([]*SeriesTask, 0, len(order))
	for _, key := range order {
		tasks = append(tasks, tasksByKey[key])
	}
	return tasks, opened, nil
}
