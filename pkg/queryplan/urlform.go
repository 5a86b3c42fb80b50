package queryplan

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/chronosdb/chronosdb/pkg/aggregate"
	"github.com/chronosdb/chronosdb/pkg/arena"
	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/queryerr"
	"github.com/chronosdb/chronosdb/pkg/rate"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// ParseURLForm parses the GET /api/query "m" parameter grammar:
//
//	m := aggregator ":" [ downsample ":" ] [ rate_spec ":" ] metric [ "{" tagfilter "}" ]
//	rate_spec  := "rate" | "rate{" counter "," counter_max "," reset_value "," drop_resets "}"
//	downsample := <interval><unit> "-" <reducer> [ "-" <fill> ]
//	tagfilter  := key "=" value ( "," key "=" value )*
//
// start/end/msResolution come from the surrounding query string, m
// from its own "m" parameter (already URL-decoded by the caller's
// framing layer, which is why a re-decode here is treated as a
// BadRequest rather than swallowed).
func ParseURLForm(m string, r timeutil.Range, msResolution bool, now timeutil.Timestamp, res timeutil.Resolution, a *arena.Arena) (*Query, error) {
	decoded, err := url.QueryUnescape(m)
	if err != nil {
		return nil, queryerr.BadRequestf("failed to URL-decode m=%q: %v", m, err)
	}

	tokens := strings.Split(decoded, ":")
	if len(tokens) == 0 || tokens[0] == "" {
		return nil, queryerr.BadRequestf("empty aggregator in m=%q", m)
	}

	q := &Query{
		TimeRange:    r,
		MsResolution: msResolution,
		Aggregate:    aggregate.ParseKind(tokens[0]),
	}
	idx := 1

	if idx < len(tokens) && looksLikeDownsample(tokens[idx]) {
		spec, err := downsample.ParseSpec(tokens[idx], res)
		if err != nil {
			return nil, queryerr.BadRequestf("malformed downsample in m=%q: %v", m, err)
		}
		q.Downsample = spec
		idx++
	} else if idx < len(tokens) && strings.HasPrefix(tokens[idx], "rate") {
		opts, err := parseRateToken(tokens[idx])
		if err != nil {
			return nil, queryerr.BadRequestf("malformed rate spec in m=%q: %v", m, err)
		}
		q.Rate = opts
		idx++
		if idx < len(tokens) && looksLikeDownsample(tokens[idx]) {
			spec, err := downsample.ParseSpec(tokens[idx], res)
			if err != nil {
				return nil, queryerr.BadRequestf("malformed downsample in m=%q: %v", m, err)
			}
			q.Downsample = spec
			idx++
		}
	}

	if idx >= len(tokens) {
		return nil, queryerr.BadRequestf("missing metric in m=%q", m)
	}
	metricTok := tokens[idx]
	if metricTok == "" {
		return nil, queryerr.BadRequestf("empty metric token in m=%q", m)
	}

	metric, tags, err := parseMetricAndTags(metricTok)
	if err != nil {
		return nil, queryerr.BadRequestf("malformed tag filter in m=%q: %v", m, err)
	}
	q.Metric = a.Intern(metric)
	q.Tags = tags

	q.synthesizeDefaultDownsample(res)
	return q, nil
}

// looksLikeDownsample mirrors Downsampler::is_downsampler's check: any
// token containing a '-' is treated as a downsample spec. This is
// deliberately permissive (carried over unchanged from the source
// grammar) rather than validating the full "<interval><unit>-<reducer>"
// shape at this stage; ParseSpec does that validation once the token
// is actually consumed as a downsample.
func looksLikeDownsample(tok string) bool {
	return strings.Contains(tok, "-")
}

// parseRateToken parses "rate" or "rate{counter,counter_max,reset_value,drop_resets}".
// Each field is optional and positional, read from its own
// comma-separated slot — the corrected form of the source grammar,
// which read drop_resets from the reset_value slot.
func parseRateToken(tok string) (*rate.Options, error) {
	opts := &rate.Options{CounterMax: ^uint64(0)}

	if tok == "rate" {
		return opts, nil
	}
	if !strings.HasPrefix(tok, "rate{") || !strings.HasSuffix(tok, "}") {
		return nil, fmt.Errorf("unrecognized rate token %q", tok)
	}

	body := tok[len("rate{") : len(tok)-1]
	fields := strings.Split(body, ",")

	if len(fields) > 0 && fields[0] != "" {
		opts.Counter = isTruthy(fields[0])
	}
	if len(fields) > 1 && fields[1] != "" {
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter_max %q: %w", fields[1], err)
		}
		opts.CounterMax = v
	}
	if len(fields) > 2 && fields[2] != "" {
		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid reset_value %q: %w", fields[2], err)
		}
		opts.ResetValue = v
	}
	if len(fields) > 3 && fields[3] != "" {
		opts.DropResets = isTruthy(fields[3])
	}

	return opts, nil
}

func isTruthy(s string) bool {
	return s[0] == 't' || s[0] == 'T'
}

// parseMetricAndTags splits "metric{k=v,...}" into its metric name and
// tag filter. The brace body is parsed in two modes per the grammar:
// unquoted if it carries no '"', quoted otherwise — in both cases the
// key/value shape is identical once quotes are stripped, so a single
// pass handles both.
func parseMetricAndTags(tok string) (string, tagset.List, error) {
	brace := strings.IndexByte(tok, '{')
	if brace < 0 {
		return tok, tagset.List{}, nil
	}
	if !strings.HasSuffix(tok, "}") {
		return "", tagset.List{}, fmt.Errorf("unterminated tag filter in %q", tok)
	}

	metric := tok[:brace]
	body := tok[brace+1 : len(tok)-1]

	tags := tagset.List{}
	if body == "" {
		return metric, tags, nil
	}
	for _, pair := range strings.Split(body, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return "", tagset.List{}, fmt.Errorf("malformed tag pair %q", pair)
		}
		key := unquote(strings.TrimSpace(kv[0]))
		value := unquote(strings.TrimSpace(kv[1]))
		tags.Set(key, value)
	}
	return metric, tags, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
