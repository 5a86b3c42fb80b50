// Package badger implements shard.Store on top of BadgerDB, carrying
// forward the same laptop-friendly memory tuning pkg/storage/badger
// used, combined with the xxhash series-id scheme and roaring64 tag
// index the ktsdb reference implementation uses for its inverted
// index. Badger's LSM tree is not itself time-partitioned, so this
// backend exposes the whole database as a single long-lived shard
// restricted to the requested range rather than splitting across
// physical segment files.
package badger

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Config holds BadgerDB configuration for the shard store.
type Config struct {
	// Path to store database files.
	Path string
	// InMemory runs Badger without touching disk, for tests.
	InMemory bool
	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = defaults
	// tuned for a self-hosted laptop deployment).
	MaxMemoryMB int64
	// Resolution is the timestamp unit Put normalizes incoming points to.
	Resolution timeutil.Resolution
}

// Store is a shard.Store backed by one BadgerDB instance.
type Store struct {
	db  *badger.DB
	reg *registry
	idx *tagIndex
	res timeutil.Resolution
}

// New opens (or creates) the BadgerDB database at cfg.Path.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	var memTableSize int64
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	} else {
		memTableSize = 16 * 1024 * 1024
	}
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Store{
		db:  db,
		reg: newRegistry(db),
		idx: newTagIndex(db),
		res: cfg.Resolution,
	}, nil
}

// Put ingests one point, creating the series if it has not been seen
// before. It is the write path used by tests and by fixture loaders;
// the production ingest pipeline is out of this engine's scope.
func (s *Store) Put(ctx context.Context, metric string, tags tagset.List, ts timeutil.Timestamp, v float64) error {
	id, err := s.reg.getOrCreate(metric, tags)
	if err != nil {
		return fmt.Errorf("register series: %w", err)
	}
	if err := s.idx.index(metric, tags, id); err != nil {
		return fmt.Errorf("index series: %w", err)
	}

	ts = timeutil.Normalize(ts, s.res)
	keyBuf := make([]byte, dataKeySize)
	encodeDataKey(keyBuf, id, int64(ts))
	valBuf := make([]byte, 8)
	encodeDataValue(valBuf, v)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyBuf, valBuf)
	})
}

// OpenShards returns the single whole-database shard, retained once.
// r is carried on the returned Shard purely to report TimeRange(); it
// does not constrain which series are visible through FindSeries.
func (s *Store) OpenShards(ctx context.Context, r timeutil.Range) ([]shard.Shard, error) {
	sh := &Shard{store: s, span: r}
	sh.Retain()
	return []shard.Shard{sh}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs Badger's value-log garbage collection, the same
// maintenance hook pkg/storage/badger exposed for the retention
// sweep to call periodically.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Prune deletes every data-point key older than cutoff, implementing
// shard.Pruner. It scans the whole 'd' keyspace rather than per-series,
// since the negated-timestamp encoding sorts newest-first within a
// series but gives no shortcut across series boundaries; a bounded
// batch keeps one sweep from holding a single oversized transaction.
func (s *Store) Prune(ctx context.Context, cutoff timeutil.Timestamp) (int, error) {
	removed := 0
	const batchSize = 1000

	for {
		var toDelete [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte{prefixData}
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid() && len(toDelete) < batchSize; it.Next() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				key := it.Item().KeyCopy(nil)
				_, ts := decodeDataKey(key)
				if timeutil.Timestamp(ts) < cutoff {
					toDelete = append(toDelete, key)
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		if len(toDelete) == 0 {
			return removed, nil
		}

		if err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range toDelete {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return removed, fmt.Errorf("delete pruned keys: %w", err)
		}
		removed += len(toDelete)
	}
}

// Stats reports one always-present shard (this backend is one
// long-lived database, never split into segments) plus the current
// series count, counted by a key-only scan over the 's' keyspace.
// Implements shard.Inspectable.
func (s *Store) Stats(ctx context.Context) (shard.Stats, error) {
	stats := shard.Stats{ShardCount: 1}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefixSeries}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.SeriesCount++
		}
		return nil
	})
	return stats, err
}

// Shard adapts the whole Badger database to shard.Shard.
type Shard struct {
	store *Store
	span  timeutil.Range
	refs  int32
}

func (sh *Shard) ID() string               { return "badger" }
func (sh *Shard) TimeRange() timeutil.Range { return sh.span }
func (sh *Shard) Retain()                  { atomic.AddInt32(&sh.refs, 1) }
func (sh *Shard) Release()                 { atomic.AddInt32(&sh.refs, -1) }

// FindSeries resolves metric and an optional tag filter to series
// handles via the roaring64 tag index: an exact-match tag intersects
// its posting list directly, a wildcard tag unions every matching
// posting list first.
func (sh *Shard) FindSeries(metric string, tags tagset.List) ([]shard.Series, error) {
	idx := sh.store.idx

	bm, err := idx.allSeriesIDs(metric)
	if err != nil {
		return nil, err
	}
	bm = bm.Clone()

	var filterErr error
	tags.Each(func(k, v string) {
		if filterErr != nil || bm.IsEmpty() {
			return
		}
		if tagset.IsWildcard(v) {
			prefix := v[:len(v)-1]
			wbm, err := idx.wildcardSeriesIDs(metric, k, prefix)
			if err != nil {
				filterErr = err
				return
			}
			bm.And(wbm)
			return
		}
		ebm, err := idx.exactSeriesIDs(metric, k, v)
		if err != nil {
			filterErr = err
			return
		}
		bm.And(ebm)
	})
	if filterErr != nil {
		return nil, filterErr
	}

	out := make([]shard.Series, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		id := it.Next()
		meta, err := sh.store.reg.get(id)
		if err != nil {
			return nil, fmt.Errorf("lookup series %d: %w", id, err)
		}
		out = append(out, &Series{
			store:    sh.store,
			id:       id,
			metric:   meta.Metric,
			tags:     tagset.New(meta.Tags),
		})
	}
	return out, nil
}

// Series adapts one Badger-resident series to shard.Series.
type Series struct {
	store  *Store
	id     uint64
	metric string
	tags   tagset.List
}

func (s *Series) Key() string       { return tagset.CanonicalKey(s.metric, s.tags) }
func (s *Series) Metric() string    { return s.metric }
func (s *Series) Tags() tagset.List { return s.tags }

// Read streams this series' points within r in nondecreasing timestamp
// order, as Series.Read's contract requires. The negated-timestamp key
// encoding sorts larger real timestamps first in forward lexicographic
// order, so a plain forward scan would walk backward through time;
// instead this seeks a reverse iterator to r.From's key (the largest
// encoded key any in-range point can have) and lets Next() descend to
// smaller encoded keys, which correspond to increasing real timestamps.
func (s *Series) Read(ctx context.Context, r timeutil.Range, sink shard.Sink) error {
	prefix := make([]byte, 1+seriesIDSize)
	dataKeyPrefix(prefix, s.id)

	return s.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := make([]byte, dataKeySize)
		encodeDataKey(seekKey, s.id, int64(r.From))

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			item := it.Item()
			_, ts := decodeDataKey(item.Key())

			if timeutil.Timestamp(ts) > r.To {
				break
			}

			var v float64
			if err := item.Value(func(val []byte) error {
				v = decodeDataValue(val)
				return nil
			}); err != nil {
				return err
			}

			if sink(timeutil.Timestamp(ts), v) == shard.AboveRange {
				break
			}
		}
		return nil
	})
}
