package queryplan

import (
	"encoding/json"
	"strings"

	"github.com/chronosdb/chronosdb/pkg/aggregate"
	"github.com/chronosdb/chronosdb/pkg/arena"
	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/queryerr"
	"github.com/chronosdb/chronosdb/pkg/rate"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// flexTimestamp accepts either a JSON number or a quoted string for
// "start"/"end", since both an absolute epoch and a relative
// "1h-ago"-style expression are valid there.
type flexTimestamp string

func (f *flexTimestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	*f = flexTimestamp(s)
	return nil
}

type jsonRateOptions struct {
	Counter    bool   `json:"counter,omitempty"`
	CounterMax uint64 `json:"counterMax,omitempty"`
	ResetValue uint64 `json:"resetValue,omitempty"`
	DropResets bool   `json:"dropResets,omitempty"`
}

type jsonSubQuery struct {
	Metric      string            `json:"metric"`
	Aggregator  string            `json:"aggregator,omitempty"`
	Downsample  string            `json:"downsample,omitempty"`
	Rate        bool              `json:"rate,omitempty"`
	RateOptions *jsonRateOptions  `json:"rateOptions,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

type jsonRequest struct {
	Start        flexTimestamp  `json:"start"`
	End          *flexTimestamp `json:"end,omitempty"`
	MsResolution bool           `json:"msResolution,omitempty"`
	Queries      []jsonSubQuery `json:"queries"`
}

// ParseJSONForm parses the POST /api/query body into one Query per
// element of "queries", all sharing the request's time range.
func ParseJSONForm(body []byte, now timeutil.Timestamp, res timeutil.Resolution, a *arena.Arena) ([]*Query, error) {
	var req jsonRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, queryerr.BadRequestf("invalid JSON body: %v", err)
	}
	if req.Start == "" {
		return nil, queryerr.BadRequestf("missing required field 'start'")
	}
	if len(req.Queries) == 0 {
		return nil, queryerr.BadRequestf("missing required field 'queries'")
	}

	from, err := timeutil.ParseRelative(string(req.Start), now, res)
	if err != nil {
		return nil, queryerr.BadRequestf("invalid 'start': %v", err)
	}
	to := now
	if req.End != nil && *req.End != "" {
		to, err = timeutil.ParseRelative(string(*req.End), now, res)
		if err != nil {
			return nil, queryerr.BadRequestf("invalid 'end': %v", err)
		}
	}
	tr := timeutil.Range{From: from, To: to}
	if !tr.Valid() {
		return nil, queryerr.BadRequestf("start must be <= end")
	}

	queries := make([]*Query, 0, len(req.Queries))
	for i, sq := range req.Queries {
		if sq.Metric == "" {
			return nil, queryerr.BadRequestf("queries[%d]: missing required field 'metric'", i)
		}

		q := &Query{
			Metric:       a.Intern(sq.Metric),
			TimeRange:    tr,
			MsResolution: req.MsResolution,
			Aggregate:    aggregate.KindNone,
		}
		if sq.Aggregator != "" {
			q.Aggregate = aggregate.ParseKind(sq.Aggregator)
		}

		if sq.Downsample != "" {
			spec, err := downsample.ParseSpec(sq.Downsample, res)
			if err != nil {
				return nil, queryerr.BadRequestf("queries[%d]: malformed downsample: %v", i, err)
			}
			q.Downsample = spec
		}

		if sq.Rate {
			opts := &rate.Options{CounterMax: ^uint64(0)}
			if sq.RateOptions != nil {
				opts.Counter = sq.RateOptions.Counter
				opts.DropResets = sq.RateOptions.DropResets
				opts.ResetValue = sq.RateOptions.ResetValue
				if sq.RateOptions.CounterMax != 0 {
					opts.CounterMax = sq.RateOptions.CounterMax
				}
			}
			q.Rate = opts
		}

		tags := tagset.List{}
		for k, v := range sq.Tags {
			tags.Set(a.Intern(k), a.Intern(v))
		}
		q.Tags = tags

		q.synthesizeDefaultDownsample(res)
		queries = append(queries, q)
	}

	return queries, nil
}
