package badger

import (
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/chronosdb/chronosdb/pkg/tagset"
)

// seriesMeta is the persisted record for one series: enough to rebuild
// a tagset.List without re-deriving it from the index.
type seriesMeta struct {
	Metric string            `json:"m"`
	Tags   map[string]string `json:"t,omitempty"`
}

// hasherPool avoids allocating an xxhash digest per series lookup, the
// same pooling ktsdb's SeriesHasher uses.
var hasherPool = sync.Pool{
	New: func() interface{} { return xxhash.New() },
}

// computeSeriesID hashes a metric name plus its sorted tags into a
// stable 64-bit id.
func computeSeriesID(metric string, tags tagset.List) uint64 {
	h := hasherPool.Get().(*xxhash.Digest)
	h.Reset()
	h.WriteString(metric)
	for _, t := range tags.Sorted() {
		h.WriteString(t.Key)
		h.WriteString(t.Value)
	}
	sum := h.Sum64()
	hasherPool.Put(h)
	return sum
}

// registry maps series IDs to metadata and caches known ids so repeat
// lookups for an already-ingested series skip the Badger round trip.
type registry struct {
	db    *badger.DB
	cache sync.Map // uint64 -> *seriesMeta
}

func newRegistry(db *badger.DB) *registry {
	return &registry{db: db}
}

// getOrCreate returns the series id for metric+tags, persisting its
// metadata the first time it is seen.
func (r *registry) getOrCreate(metric string, tags tagset.List) (uint64, error) {
	id := computeSeriesID(metric, tags)
	if _, ok := r.cache.Load(id); ok {
		return id, nil
	}

	keyBuf := make([]byte, seriesKeySize)
	encodeSeriesKey(keyBuf, id)

	m := make(map[string]string, tags.Len())
	tags.Each(func(k, v string) { m[k] = v })
	meta := &seriesMeta{Metric: metric, Tags: m}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyBuf); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		value, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return txn.Set(keyBuf, value)
	})
	if err != nil {
		return 0, err
	}

	r.cache.Store(id, meta)
	return id, nil
}

// get returns the metadata for a known series id.
func (r *registry) get(id uint64) (*seriesMeta, error) {
	if v, ok := r.cache.Load(id); ok {
		return v.(*seriesMeta), nil
	}

	keyBuf := make([]byte, seriesKeySize)
	encodeSeriesKey(keyBuf, id)

	var meta seriesMeta
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyBuf)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, err
	}
	r.cache.Store(id, &meta)
	return &meta, nil
}
