// Package memory is an in-memory shard.Store, grounded on the same
// mutex-guarded-slice approach pkg/storage/memory used for the
// teacher's flat metric store, but partitioned into fixed-width time
// windows so tests can exercise the multi-shard fan-in the Planner is
// responsible for. Data is lost on restart; useful for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// DefaultWindow is the shard width, expressed in the store's
// configured resolution units (e.g. 3600 for one hour at second
// resolution).
const DefaultWindow = 3600

// Store partitions written points into fixed-width windows, each
// exposed as an independent shard.Shard.
type Store struct {
	mu     sync.RWMutex
	res    timeutil.Resolution
	window timeutil.Timestamp
	shards map[int64]*Shard
}

// New creates an empty in-memory store. window is the shard width in
// the store's resolution units; 0 selects DefaultWindow.
func New(res timeutil.Resolution, window timeutil.Timestamp) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		res:    res,
		window: window,
		shards: make(map[int64]*Shard),
	}
}

func (s *Store) windowIndex(ts timeutil.Timestamp) int64 {
	return int64(ts / s.window)
}

// Put inserts one point, creating the owning shard and series if
// necessary. It exists for test fixtures and local seeding; production
// writes happen through the ingest path, out of scope for this engine.
func (s *Store) Put(metric string, tags tagset.List, ts timeutil.Timestamp, v float64) {
	ts = timeutil.Normalize(ts, s.res)
	idx := s.windowIndex(ts)

	s.mu.Lock()
	sh, ok := s.shards[idx]
	if !ok {
		sh = newShard(idx, s.window)
		s.shards[idx] = sh
	}
	s.mu.Unlock()

	sh.put(metric, tags, ts, v)
}

// OpenShards returns every shard whose window overlaps r, each
// retained once on the caller's behalf.
func (s *Store) OpenShards(ctx context.Context, r timeutil.Range) ([]shard.Shard, error) {
	lo := s.windowIndex(r.From)
	hi := s.windowIndex(r.To)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []shard.Shard
	for idx := lo; idx <= hi; idx++ {
		if sh, ok := s.shards[idx]; ok {
			sh.Retain()
			out = append(out, sh)
		}
	}
	return out, nil
}

// Close is a no-op: there is nothing to flush or release.
func (s *Store) Close() error { return nil }

// Prune drops every shard window whose range ends strictly before
// cutoff, implementing shard.Pruner for the retention sweep. A window
// still referenced by an in-flight query is dropped from the index
// immediately; its Shard value stays valid for whoever is still
// holding a reference, since Go's GC reclaims it only once the last
// reference is released.
func (s *Store) Prune(ctx context.Context, cutoff timeutil.Timestamp) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for idx, sh := range s.shards {
		if sh.timeSpan.To < cutoff {
			delete(s.shards, idx)
			removed++
		}
	}
	return removed, nil
}

// Stats reports the current shard and series counts, implementing
// shard.Inspectable.
func (s *Store) Stats(ctx context.Context) (shard.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := shard.Stats{ShardCount: len(s.shards)}
	for _, sh := range s.shards {
		sh.mu.RLock()
		stats.SeriesCount += len(sh.series)
		sh.mu.RUnlock()
	}
	return stats, nil
}

// Shard is one fixed-width window of the in-memory store.
type Shard struct {
	id       string
	idx      int64
	timeSpan timeutil.Range

	mu     sync.RWMutex
	series map[string]*Series

	refs int32
}

func newShard(idx int64, window timeutil.Timestamp) *Shard {
	from := timeutil.Timestamp(idx) * window
	return &Shard{
		id:       shardID(idx),
		idx:      idx,
		timeSpan: timeutil.Range{From: from, To: from + window - 1},
		series:   make(map[string]*Series),
	}
}

func shardID(idx int64) string {
	return "mem-" + itoa(idx)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (sh *Shard) put(metric string, tags tagset.List, ts timeutil.Timestamp, v float64) {
	key := tagset.CanonicalKey(metric, tags)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.series[key]
	if !ok {
		s = &Series{key: key, metric: metric, tags: tags.Clone()}
		sh.series[key] = s
	}
	s.mu.Lock()
	s.points = append(s.points, point{ts: ts, v: v})
	sort.Slice(s.points, func(i, j int) bool { return s.points[i].ts < s.points[j].ts })
	s.mu.Unlock()
}

func (sh *Shard) ID() string                      { return sh.id }
func (sh *Shard) TimeRange() timeutil.Range        { return sh.timeSpan }
func (sh *Shard) Retain()                          { atomic.AddInt32(&sh.refs, 1) }
func (sh *Shard) Release()                         { atomic.AddInt32(&sh.refs, -1) }

// FindSeries returns the series in this shard matching metric and tag
// filter; an empty filter matches every series carrying the metric.
func (sh *Shard) FindSeries(metric string, tags tagset.List) ([]shard.Series, error) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	var out []shard.Series
	for _, s := range sh.series {
		if s.metric != metric {
			continue
		}
		if !tagset.MatchesFilter(tags, s.tags) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type point struct {
	ts timeutil.Timestamp
	v  float64
}

// Series is one logical series' points within a single shard window.
type Series struct {
	key    string
	metric string
	tags   tagset.List

	mu     sync.RWMutex
	points []point
}

func (s *Series) Key() string          { return s.key }
func (s *Series) Metric() string       { return s.metric }
func (s *Series) Tags() tagset.List    { return s.tags }

// Read streams this series' points within r through sink, in
// nondecreasing timestamp order; points are already sorted at write
// time so no further ordering work is needed here.
func (s *Series) Read(ctx context.Context, r timeutil.Range, sink shard.Sink) error {
	s.mu.RLock()
	pts := make([]point, len(s.points))
	copy(pts, s.points)
	s.mu.RUnlock()

	for _, p := range pts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sink(p.ts, p.v) == shard.AboveRange {
			return nil
		}
	}
	return nil
}
