package badger

import (
	"encoding/binary"
	"math"
)

// Key prefixes, one byte each, the same compact prefix-scan layout
// ktsdb's encoding.go uses for its Badger key space.
const (
	prefixData   byte = 'd' // d|series_id|negated_ts -> value
	prefixSeries byte = 's' // s|series_id -> metric + tags (JSON)
	prefixIndex  byte = 'i' // i|tag_key -> roaring64 bitmap
)

const (
	seriesIDSize  = 8
	timestampSize = 8
	dataKeySize   = 1 + seriesIDSize + timestampSize
	seriesKeySize = 1 + seriesIDSize
)

// encodeDataKey writes [prefixData][seriesID BE][^timestamp BE] into buf,
// which must be at least dataKeySize bytes. Negating the timestamp
// makes later (larger) timestamps sort first in lexicographic order,
// matching ktsdb's "newest first" scan convention; this engine reads
// with a reverse iterator seeked to the range's lower bound, which
// walks from that key toward smaller encoded keys — i.e. increasing
// real timestamps — to honor Series.Read's nondecreasing-order
// contract.
func encodeDataKey(buf []byte, seriesID uint64, ts int64) int {
	buf[0] = prefixData
	binary.BigEndian.PutUint64(buf[1:9], seriesID)
	binary.BigEndian.PutUint64(buf[9:17], uint64(^ts))
	return dataKeySize
}

func decodeDataKey(buf []byte) (seriesID uint64, ts int64) {
	seriesID = binary.BigEndian.Uint64(buf[1:9])
	negated := binary.BigEndian.Uint64(buf[9:17])
	ts = int64(^negated)
	return
}

func dataKeyPrefix(buf []byte, seriesID uint64) int {
	buf[0] = prefixData
	binary.BigEndian.PutUint64(buf[1:9], seriesID)
	return 1 + seriesIDSize
}

func encodeDataValue(buf []byte, v float64) int {
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return 8
}

func decodeDataValue(buf []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(buf))
}

func encodeSeriesKey(buf []byte, seriesID uint64) int {
	buf[0] = prefixSeries
	binary.BigEndian.PutUint64(buf[1:9], seriesID)
	return seriesKeySize
}

func decodeSeriesKey(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf[1:9])
}
