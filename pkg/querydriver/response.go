package querydriver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/chronosdb/chronosdb/pkg/queryplan"
)

// dpsValue is a single downsampled point's value, serializing NaN as
// the JSON null token rather than failing encoding.Marshal outright.
type dpsValue float64

func (v dpsValue) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(v)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(v))
}

// apiResult is the wire shape of one element of the response array.
type apiResult struct {
	Metric        string               `json:"metric"`
	Tags          map[string]string    `json:"tags"`
	AggregateTags []string             `json:"aggregateTags"`
	DPS           map[string]dpsValue  `json:"dps"`
}

// buildResponse renders the grouped, aggregated ResultSets into the
// response array the spec's HTTP contract describes, omitting any
// result left with zero points and bounding the encoded size against
// maxBytes so an oversized response surfaces as Overflow rather than a
// half-written body.
func buildResponse(results []*queryplan.ResultSet, maxBytes int) ([]byte, error) {
	out := make([]apiResult, 0, len(results))
	for _, r := range results {
		if len(r.Points) == 0 {
			continue
		}

		tags := make(map[string]string, r.Tags.Len())
		r.Tags.Each(func(k, v string) { tags[k] = v })

		aggTags := make([]string, 0, len(r.AggregateTags))
		for k := range r.AggregateTags {
			aggTags = append(aggTags, k)
		}

		dps := make(map[string]dpsValue, len(r.Points))
		for _, p := range r.Points {
			dps[strconv.FormatInt(int64(p.TS), 10)] = dpsValue(p.V)
		}

		out = append(out, apiResult{
			Metric:        r.Metric,
			Tags:          tags,
			AggregateTags: aggTags,
			DPS:           dps,
		})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("querydriver: encode response: %w", err)
	}
	if len(body) > maxBytes {
		return nil, errOverflow
	}
	return body, nil
}

var errOverflow = fmt.Errorf("querydriver: response exceeds the configured size limit")
