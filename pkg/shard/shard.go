// Package shard defines the storage-facing contract the query engine
// consumes: a set of on-disk (or in-memory) segments, each covering a
// time sub-range, each able to resolve a metric+tag filter to a set of
// Series handles that stream their points in timestamp order.
//
// This package defines the interfaces only. Concrete backends live in
// pkg/shard/memory (tests, local dev) and pkg/shard/badger (production,
// tuned the way pkg/storage/badger tuned BadgerDB for this process).
package shard

import (
	"context"

	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// SinkResult is the short-circuit signal a Series.Read sink returns for
// each point: storage uses it to stop scanning once points have moved
// past the requested range.
type SinkResult int

const (
	// InRange means the point was accepted; keep scanning.
	InRange SinkResult = 0
	// BelowRange means the point's timestamp precedes the range;
	// storage should keep seeking forward.
	BelowRange SinkResult = -1
	// AboveRange means the point's timestamp is past the range;
	// storage may stop scanning this series.
	AboveRange SinkResult = 1
)

// Sink receives one point at a time from Series.Read, in nondecreasing
// timestamp order, and reports where that point fell relative to the
// requested range.
type Sink func(ts timeutil.Timestamp, v float64) SinkResult

// Series is an opaque handle to one logical time series, possibly
// spanning more than one shard segment.
type Series interface {
	// Key is derived from metric + canonical tag ordering; two Series
	// handles with the same Key refer to the same logical series.
	Key() string
	Metric() string
	Tags() tagset.List
	// Read streams this series' points within the range through sink,
	// in nondecreasing timestamp order.
	Read(ctx context.Context, r timeutil.Range, sink Sink) error
}

// Shard is one on-disk segment covering a time sub-range. Multiple
// shards may each hold a disjoint slice of the same logical series.
type Shard interface {
	ID() string
	TimeRange() timeutil.Range
	// FindSeries resolves a metric and tag filter to the series present
	// in this shard. An empty tag filter matches every series for the
	// metric.
	FindSeries(metric string, tags tagset.List) ([]Series, error)
	// Retain and Release implement the refcounting contract the
	// Planner uses: Retain on open, Release exactly once when the
	// shard is no longer referenced by any pending task.
	Retain()
	Release()
}

// Store opens the shards overlapping a time range. Implementations are
// long-lived and safe for concurrent use across queries.
type Store interface {
	OpenShards(ctx context.Context, r timeutil.Range) ([]Shard, error)
	Close() error
}

// Stats is a point-in-time count of what a Store holds, reported by
// the /api/stats HTTP endpoint.
type Stats struct {
	ShardCount  int
	SeriesCount int
}

// Inspectable is implemented by Store backends that can report Stats
// cheaply enough to call on every stats request. Type-asserted rather
// than required on Store, the same way Pruner is.
type Inspectable interface {
	Stats(ctx context.Context) (Stats, error)
}

// Pruner is implemented by Store backends that can drop data older
// than a retention cutoff. Not every Store needs to support this
// (tests built on small fixed fixtures have no use for it), so the
// retention sweep type-asserts for it rather than requiring it on
// Store itself.
type Pruner interface {
	Prune(ctx context.Context, cutoff timeutil.Timestamp) (int, error)
}
