package queryplan

import (
	"github.com/chronosdb/chronosdb/pkg/aggregate"
	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/tagset"
)

// ResultSet is one row of the query response: a metric, a concrete tag
// set, the keys whose values varied across the series grouped into it,
// and the points left after aggregation and any rate transform.
type ResultSet struct {
	Metric        string
	Tags          tagset.List
	AggregateTags map[string]bool
	Points        []downsample.Point

	// tasks holds the per-series streams still waiting to be merged by
	// the Aggregator; nil once aggregation has consumed them.
	tasks [][]downsample.Point
}

// Aggregate merges the per-task point streams this ResultSet
// accumulated during grouping into its final Points, then discards
// them; safe to call at most once per ResultSet.
func (r *ResultSet) Aggregate(kind aggregate.Kind) {
	r.Points = aggregate.Merge(r.tasks, kind)
	r.tasks = nil
}

// ResultGrouper partitions completed SeriesTasks into ResultSets
// according to the query's wildcard tags, following ktsdb's grouping
// pass over query results but generalized to arbitrary trailing
// wildcards rather than a single fixed grouping key.
type ResultGrouper struct{}

// CreateResults groups tasks into ResultSets per the spec's Case
// A/Case B split: no wildcard tags in the query produces exactly one
// result; wildcard tags produce one result per distinct concrete
// value combination actually observed across the tasks' series.
func (ResultGrouper) CreateResults(tasks []*SeriesTask, q *Query) []*ResultSet {
	if q.Aggregate == aggregate.KindNone {
		results := make([]*ResultSet, 0, len(tasks))
		for _, t := range tasks {
			if len(t.Series) == 0 {
				continue
			}
			r := &ResultSet{
				Metric:        q.Metric,
				Tags:          t.Series[0].Tags().Clone(),
				AggregateTags: map[string]bool{},
			}
			r.tasks = [][]downsample.Point{t.Out}
			results = append(results, r)
		}
		return results
	}

	starKeys := q.Tags.WildcardKeys()
	if len(starKeys) == 0 {
		r := &ResultSet{
			Metric:        q.Metric,
			Tags:          q.Tags.Clone(),
			AggregateTags: map[string]bool{},
		}
		for _, t := range tasks {
			if len(t.Series) == 0 {
				continue
			}
			promote(r, t.Series[0].Tags())
			r.tasks = append(r.tasks, t.Out)
		}
		return []*ResultSet{r}
	}

	var results []*ResultSet
	for _, t := range tasks {
		if len(t.Series) == 0 {
			continue
		}
		seriesTags := t.Series[0].Tags()

		var r *ResultSet
		for _, cand := range results {
			if queriedTagsMatch(q.Tags, starKeys, cand.Tags, seriesTags) {
				r = cand
				break
			}
		}
		if r == nil {
			r = &ResultSet{
				Metric:        q.Metric,
				Tags:          q.Tags.Clone(),
				AggregateTags: map[string]bool{},
			}
			results = append(results, r)
		}
		promote(r, seriesTags)
		r.tasks = append(r.tasks, t.Out)
	}
	return results
}

// queriedTagsMatch reports whether result's queried tags (the keys
// named in the original filter) all match series' concrete values:
// wildcard keys compare against result's already-promoted concrete
// value, literal keys compare against the literal.
func queriedTagsMatch(queried tagset.List, starKeys map[string]bool, resultTags, seriesTags tagset.List) bool {
	match := true
	queried.Each(func(k, v string) {
		if !match {
			return
		}
		sv, ok := seriesTags.Get(k)
		if !ok {
			match = false
			return
		}
		if starKeys[k] {
			rv, ok := resultTags.Get(k)
			if !ok || tagset.IsWildcard(rv) {
				return // result hasn't settled this wildcard yet; any value admits it
			}
			if rv != sv {
				match = false
			}
			return
		}
		if v != sv {
			match = false
		}
	})
	return match
}

// promote applies the tag-promotion rule to every tag in seriesTags
// against result.Tags/AggregateTags.
func promote(r *ResultSet, seriesTags tagset.List) {
	seriesTags.Each(func(k, v string) {
		if cur, ok := r.Tags.Get(k); ok {
			if tagset.IsWildcard(cur) {
				r.Tags.Set(k, v)
				return
			}
			if cur != v {
				r.Tags.Delete(k)
				r.AggregateTags[k] = true
			}
			return
		}
		if r.AggregateTags[k] {
			return
		}
		r.Tags.Set(k, v)
	})
}
