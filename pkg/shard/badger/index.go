package badger

import (
	"bytes"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/dgraph-io/badger/v4"

	"github.com/chronosdb/chronosdb/pkg/tagset"
)

// tagIndex is an inverted index mapping "metric", and
// "metric#tagKey:tagValue", to the set of series IDs carrying that
// metric or that exact tag pair. It mirrors ktsdb's TagIndex, with an
// added prefix-scan path for OpenTSDB's trailing-wildcard tag filters,
// which an exact-match bitmap lookup cannot serve.
type tagIndex struct {
	db    *badger.DB
	cache sync.Map // string -> *roaring64.Bitmap
}

func newTagIndex(db *badger.DB) *tagIndex {
	return &tagIndex{db: db}
}

func formatTagKey(metric, tagKey, tagValue string) string {
	if tagKey == "" {
		return metric
	}
	return metric + "#" + tagKey + ":" + tagValue
}

// index records seriesID under the metric bitmap and under each of its
// tag:value bitmaps, then persists the dirty bitmaps.
func (idx *tagIndex) index(metric string, tags tagset.List, seriesID uint64) error {
	idx.add(metric, seriesID)
	tags.Each(func(k, v string) {
		idx.add(formatTagKey(metric, k, v), seriesID)
	})
	return idx.persist(metric, tags)
}

func (idx *tagIndex) add(key string, seriesID uint64) {
	val, _ := idx.cache.LoadOrStore(key, roaring64.New())
	val.(*roaring64.Bitmap).Add(seriesID)
}

func (idx *tagIndex) persist(metric string, tags tagset.List) error {
	return idx.db.Update(func(txn *badger.Txn) error {
		if err := idx.persistKey(txn, metric); err != nil {
			return err
		}
		var persistErr error
		tags.Each(func(k, v string) {
			if persistErr != nil {
				return
			}
			persistErr = idx.persistKey(txn, formatTagKey(metric, k, v))
		})
		return persistErr
	})
}

func (idx *tagIndex) persistKey(txn *badger.Txn, key string) error {
	val, ok := idx.cache.Load(key)
	if !ok {
		return nil
	}
	bm := val.(*roaring64.Bitmap)
	data, err := bm.ToBytes()
	if err != nil {
		return err
	}
	indexKey := make([]byte, 1+len(key))
	indexKey[0] = prefixIndex
	copy(indexKey[1:], key)
	return txn.Set(indexKey, data)
}

func (idx *tagIndex) bitmap(key string) (*roaring64.Bitmap, error) {
	if val, ok := idx.cache.Load(key); ok {
		return val.(*roaring64.Bitmap), nil
	}

	indexKey := make([]byte, 1+len(key))
	indexKey[0] = prefixIndex
	copy(indexKey[1:], key)

	var bm *roaring64.Bitmap
	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey)
		if err == badger.ErrKeyNotFound {
			bm = roaring64.New()
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			bm = roaring64.New()
			_, err := bm.ReadFrom(bytes.NewReader(val))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	idx.cache.Store(key, bm)
	return bm, nil
}

// allSeriesIDs returns every series carrying metric.
func (idx *tagIndex) allSeriesIDs(metric string) (*roaring64.Bitmap, error) {
	return idx.bitmap(metric)
}

// exactSeriesIDs returns series carrying metric with tagKey == tagValue.
func (idx *tagIndex) exactSeriesIDs(metric, tagKey, tagValue string) (*roaring64.Bitmap, error) {
	return idx.bitmap(formatTagKey(metric, tagKey, tagValue))
}

// wildcardSeriesIDs unions the bitmaps of every tag:value pair under
// metric/tagKey whose value has the given prefix. Roaring bitmaps only
// index exact tag:value pairs, so a trailing-wildcard filter needs a
// scan across the tag key's posting-list keys rather than a single
// lookup.
func (idx *tagIndex) wildcardSeriesIDs(metric, tagKey, valuePrefix string) (*roaring64.Bitmap, error) {
	scanPrefix := formatTagKey(metric, tagKey, "")
	indexPrefix := make([]byte, 1+len(scanPrefix))
	indexPrefix[0] = prefixIndex
	copy(indexPrefix[1:], scanPrefix)

	out := roaring64.New()
	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = indexPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(indexPrefix); it.ValidForPrefix(indexPrefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[1:])
			value := strings.TrimPrefix(key, scanPrefix)
			if !strings.HasPrefix(value, valuePrefix) {
				continue
			}
			if err := item.Value(func(val []byte) error {
				bm := roaring64.New()
				if _, err := bm.ReadFrom(bytes.NewReader(val)); err != nil {
					return err
				}
				out.Or(bm)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func intersect(bitmaps ...*roaring64.Bitmap) *roaring64.Bitmap {
	if len(bitmaps) == 0 {
		return roaring64.New()
	}
	result := bitmaps[0].Clone()
	for _, bm := range bitmaps[1:] {
		result.And(bm)
	}
	return result
}
