package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true, Resolution: timeutil.ResolutionSeconds})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readAll(t *testing.T, series shard.Series, r timeutil.Range) []downsamplePoint {
	t.Helper()
	var got []downsamplePoint
	err := series.Read(context.Background(), r, func(ts timeutil.Timestamp, v float64) shard.SinkResult {
		got = append(got, downsamplePoint{ts, v})
		if ts > r.To {
			return shard.AboveRange
		}
		return shard.InRange
	})
	require.NoError(t, err)
	return got
}

type downsamplePoint struct {
	ts timeutil.Timestamp
	v  float64
}

// TestSeries_ReadIsNondecreasing guards against the key-encoding pitfall
// where a forward scan over the negated-timestamp keyspace walks newest
// to oldest: Series.Read must hand points to the sink oldest first.
func TestSeries_ReadIsNondecreasing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tags := tagset.New(map[string]string{"host": "a"})

	require.NoError(t, s.Put(ctx, "cpu", tags, 0, 1))
	require.NoError(t, s.Put(ctx, "cpu", tags, 1, 3))
	require.NoError(t, s.Put(ctx, "cpu", tags, 5, 9))
	require.NoError(t, s.Put(ctx, "cpu", tags, 10, 27))

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 0, To: 10})
	require.NoError(t, err)
	require.Len(t, shards, 1)

	found, err := shards[0].FindSeries("cpu", tags)
	require.NoError(t, err)
	require.Len(t, found, 1)

	pts := readAll(t, found[0], timeutil.Range{From: 0, To: 10})
	require.Len(t, pts, 4)

	for i := 1; i < len(pts); i++ {
		assert.LessOrEqual(t, pts[i-1].ts, pts[i].ts, "points must arrive in nondecreasing timestamp order")
	}
	assert.Equal(t, []timeutil.Timestamp{0, 1, 5, 10}, []timeutil.Timestamp{pts[0].ts, pts[1].ts, pts[2].ts, pts[3].ts})
	assert.Equal(t, []float64{1, 3, 9, 27}, []float64{pts[0].v, pts[1].v, pts[2].v, pts[3].v})
}

func TestSeries_ReadRespectsRangeBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tags := tagset.New(map[string]string{"host": "a"})

	for ts := timeutil.Timestamp(0); ts <= 20; ts += 5 {
		require.NoError(t, s.Put(ctx, "cpu", tags, ts, float64(ts)))
	}

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 5, To: 15})
	require.NoError(t, err)
	found, err := shards[0].FindSeries("cpu", tags)
	require.NoError(t, err)
	require.Len(t, found, 1)

	pts := readAll(t, found[0], timeutil.Range{From: 5, To: 15})
	require.Len(t, pts, 3)
	assert.Equal(t, []timeutil.Timestamp{5, 10, 15}, []timeutil.Timestamp{pts[0].ts, pts[1].ts, pts[2].ts})
}

func TestStore_FindSeries_ExactTagMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "a"}), 0, 1))
	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "b"}), 0, 2))

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 0, To: 0})
	require.NoError(t, err)

	found, err := shards[0].FindSeries("cpu", tagset.New(map[string]string{"host": "a"}))
	require.NoError(t, err)
	require.Len(t, found, 1)
	v, ok := found[0].Tags().Get("host")
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestStore_FindSeries_Wildcard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "web01"}), 0, 1))
	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "web02"}), 0, 2))
	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "db01"}), 0, 3))

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 0, To: 0})
	require.NoError(t, err)

	found, err := shards[0].FindSeries("cpu", tagset.New(map[string]string{"host": "web*"}))
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestStore_FindSeries_NoFilterMatchesAllOfMetric(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "a"}), 0, 1))
	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "b"}), 0, 2))
	require.NoError(t, s.Put(ctx, "mem", tagset.New(map[string]string{"host": "a"}), 0, 3))

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 0, To: 0})
	require.NoError(t, err)

	found, err := shards[0].FindSeries("cpu", tagset.List{})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tags := tagset.New(map[string]string{"host": "a"})

	require.NoError(t, s.Put(ctx, "cpu", tags, 0, 1))
	require.NoError(t, s.Put(ctx, "cpu", tags, 100, 2))

	removed, err := s.Prune(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	shards, err := s.OpenShards(ctx, timeutil.Range{From: 0, To: 100})
	require.NoError(t, err)
	found, err := shards[0].FindSeries("cpu", tags)
	require.NoError(t, err)
	require.Len(t, found, 1)

	pts := readAll(t, found[0], timeutil.Range{From: 0, To: 100})
	require.Len(t, pts, 1)
	assert.Equal(t, timeutil.Timestamp(100), pts[0].ts)
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "cpu", tagset.New(map[string]string{"host": "a"}), 0, 1))
	require.NoError(t, s.Put(ctx, "mem", tagset.New(map[string]string{"host": "b"}), 0, 2))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ShardCount)
	assert.Equal(t, 2, stats.SeriesCount)
}
