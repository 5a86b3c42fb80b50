// Package queryplan turns a parsed HTTP query into the executable
// plan the rest of the engine consumes: a Query value, the SeriesTasks
// a Planner derives from it, and the ResultGrouper that reassembles
// completed tasks into ResultSets. It plays the role pkg/query's
// lexer/parser/types split plays in the teacher codebase, adapted from
// a PromQL-style expression tree to OpenTSDB's dual-syntax query
// grammar.
package queryplan

import (
	"github.com/chronosdb/chronosdb/pkg/aggregate"
	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/rate"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Query is the canonical parsed plan both grammars normalize into.
type Query struct {
	Metric       string
	TimeRange    timeutil.Range
	Aggregate    aggregate.Kind
	Downsample   *downsample.Spec
	Rate         *rate.Options
	MsResolution bool
	Tags         tagset.List
}

// synthesizeDefaultDownsample fills in the "1s-<aggregate>" downsample
// the spec says to synthesize when none was given and the query is not
// already running at millisecond resolution.
func (q *Query) synthesizeDefaultDownsample(res timeutil.Resolution) {
	if q.Downsample != nil || q.MsResolution {
		return
	}
	intervalMs := int64(1000)
	if res == timeutil.ResolutionSeconds {
		intervalMs = 1
	}
	reducer := downsample.Reducer(q.Aggregate)
	switch reducer {
	case downsample.ReducerAvg, downsample.ReducerSum, downsample.ReducerMin, downsample.ReducerMax,
		downsample.ReducerCount, downsample.ReducerFirst, downsample.ReducerLast, downsample.ReducerDev,
		downsample.ReducerNone:
	default:
		reducer = downsample.ReducerSum
	}
	q.Downsample = &downsample.Spec{IntervalMs: intervalMs, Reducer: reducer, Fill: downsample.FillNone}
}
