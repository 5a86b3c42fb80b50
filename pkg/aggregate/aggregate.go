// Package aggregate implements the cross-series reducer that
// collapses N aligned per-task point streams into one series. At each
// timestamp it collects the values of every series that has a point
// there and reduces them together. It merges by timestamp
// rather than by fixed bucket width, since the inputs here are
// already-downsampled per-task streams that must be merged point for
// point, not re-bucketed.
package aggregate

import (
	"math"
	"sort"

	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Kind is the cross-series reduction function. It shares vocabulary
// with downsample.Reducer but is declared separately because for the
// Aggregator "none" is a bypass signal (no cross-series merge at all),
// whereas for the downsampler it means raw pass-through.
type Kind string

const (
	KindNone  Kind = "none"
	KindSum   Kind = "sum"
	KindAvg   Kind = "avg"
	KindMin   Kind = "min"
	KindMax   Kind = "max"
	KindCount Kind = "count"
	KindFirst Kind = "first"
	KindLast  Kind = "last"
	KindDev   Kind = "dev"
)

// ParseKind maps an aggregator token (as it appears in the URL-form
// query or the JSON "aggregator" field) to a Kind, defaulting to
// KindSum for an unrecognized token the way OpenTSDB's "sum" default
// aggregator does.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindNone, KindSum, KindAvg, KindMin, KindMax, KindCount, KindFirst, KindLast, KindDev:
		return Kind(s)
	default:
		return KindSum
	}
}

// Merge performs an N-way timestamp-ordered merge of series, each
// already produced by a per-task Downsampler (or raw, if the query had
// none), reducing the points with a common timestamp across series
// using kind. A series missing a point at ts contributes nothing to
// that timestamp, never an implicit zero.
func Merge(series [][]downsample.Point, kind Kind) []downsample.Point {
	if kind == KindNone || len(series) == 0 {
		if len(series) == 1 {
			return series[0]
		}
		return nil
	}
	if len(series) == 1 {
		return series[0]
	}

	cursors := make([]int, len(series))
	tsSet := make(map[int64]struct{})
	for _, s := range series {
		for _, p := range s {
			tsSet[int64(p.TS)] = struct{}{}
		}
	}
	timestamps := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	out := make([]downsample.Point, 0, len(timestamps))
	for _, ts := range timestamps {
		var contributors []float64
		for i, s := range series {
			for cursors[i] < len(s) && int64(s[cursors[i]].TS) < ts {
				cursors[i]++
			}
			if cursors[i] < len(s) && int64(s[cursors[i]].TS) == ts {
				contributors = append(contributors, s[cursors[i]].V)
			}
		}
		if len(contributors) == 0 {
			continue
		}
		out = append(out, downsample.Point{TS: timeutil.Timestamp(ts), V: reduce(contributors, kind)})
	}
	return out
}

func reduce(vals []float64, kind Kind) float64 {
	switch kind {
	case KindSum:
		return sum(vals)
	case KindAvg:
		return sum(vals) / float64(len(vals))
	case KindMin:
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case KindMax:
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case KindCount:
		return float64(len(vals))
	case KindFirst:
		return vals[0]
	case KindLast:
		return vals[len(vals)-1]
	case KindDev:
		return stddev(vals)
	default:
		return sum(vals)
	}
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func stddev(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	mean := sum(vals) / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)))
}
