package downsample

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

func TestParseSpec(t *testing.T) {
	cases := []struct {
		name       string
		spec       string
		wantMs     int64
		wantReduce Reducer
		wantPct    int
		wantFill   Fill
	}{
		{"seconds-avg", "10s-avg", 10_000, ReducerAvg, 0, FillNone},
		{"minutes-sum-zero", "1m-sum-zero", 60_000, ReducerSum, 0, FillZero},
		{"hours-max-nan", "1h-max-nan", 3_600_000, ReducerMax, 0, FillNaN},
		{"percentile", "5m-p95", 300_000, Reducer("p95"), 95, FillNone},
		{"dev", "30s-dev", 30_000, ReducerDev, 0, FillNone},
		{"milliseconds", "500ms-count", 500, ReducerCount, 0, FillNone},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			spec, err := ParseSpec(c.spec, timeutil.ResolutionMillis)
			require.NoError(t, err)
			assert.Equal(t, c.wantMs, spec.IntervalMs)
			assert.Equal(t, c.wantReduce, spec.Reducer)
			assert.Equal(t, c.wantPct, spec.Percentile)
			assert.Equal(t, c.wantFill, spec.Fill)
		})
	}
}

func TestParseSpec_Errors(t *testing.T) {
	for _, s := range []string{"avg", "10x-avg", "10s-bogus", "10s-p101", "10s-p-1"} {
		_, err := ParseSpec(s, timeutil.ResolutionSeconds)
		assert.Error(t, err, s)
	}
}

func TestDownsampler_BasicAvg(t *testing.T) {
	spec := Spec{IntervalMs: 10, Reducer: ReducerAvg, Fill: FillNone}
	d := New(spec, timeutil.Range{From: 0, To: 30})

	var out []Point
	d.Add(1, 10, &out)
	d.Add(5, 20, &out)
	d.Add(11, 30, &out)
	d.FlushAndFill(&out)

	require.Len(t, out, 2)
	assert.Equal(t, timeutil.Timestamp(0), out[0].TS)
	assert.InDelta(t, 15.0, out[0].V, 0.001)
	assert.Equal(t, timeutil.Timestamp(10), out[1].TS)
	assert.InDelta(t, 30.0, out[1].V, 0.001)
}

func TestDownsampler_FillZeroForEmptyBuckets(t *testing.T) {
	spec := Spec{IntervalMs: 10, Reducer: ReducerSum, Fill: FillZero}
	d := New(spec, timeutil.Range{From: 0, To: 39})

	var out []Point
	d.Add(1, 5, &out)
	// 30 lands exactly on a bucket boundary, so the gap-filler for
	// [10,20) and [20,30) doesn't collide with this point's own bucket.
	d.Add(30, 7, &out)
	d.FlushAndFill(&out)

	require.Len(t, out, 4)
	assert.Equal(t, timeutil.Timestamp(0), out[0].TS)
	assert.Equal(t, 5.0, out[0].V)
	assert.Equal(t, timeutil.Timestamp(10), out[1].TS)
	assert.Equal(t, 0.0, out[1].V)
	assert.Equal(t, timeutil.Timestamp(20), out[2].TS)
	assert.Equal(t, 0.0, out[2].V)
	assert.Equal(t, timeutil.Timestamp(30), out[3].TS)
	assert.Equal(t, 7.0, out[3].V)
}

func TestDownsampler_FillNanMarksGaps(t *testing.T) {
	spec := Spec{IntervalMs: 10, Reducer: ReducerLast, Fill: FillNaN}
	d := New(spec, timeutil.Range{From: 0, To: 19})

	var out []Point
	d.Add(1, 5, &out)
	d.FlushAndFill(&out)

	require.Len(t, out, 2)
	assert.Equal(t, 5.0, out[0].V)
	assert.True(t, math.IsNaN(out[1].V))
}

func TestDownsampler_Percentile(t *testing.T) {
	spec := Spec{IntervalMs: 100, Reducer: Reducer("p50"), Percentile: 50, Fill: FillNone}
	d := New(spec, timeutil.Range{From: 0, To: 99})

	var out []Point
	for i := 1; i <= 10; i++ {
		d.Add(timeutil.Timestamp(i), float64(i*10), &out)
	}
	d.FlushAndFill(&out)

	require.Len(t, out, 1)
	assert.Equal(t, 50.0, out[0].V)
}

func TestDownsampler_Dev(t *testing.T) {
	spec := Spec{IntervalMs: 100, Reducer: ReducerDev, Fill: FillNone}
	d := New(spec, timeutil.Range{From: 0, To: 99})

	var out []Point
	d.Add(1, 2, &out)
	d.Add(2, 4, &out)
	d.Add(3, 4, &out)
	d.Add(4, 4, &out)
	d.Add(5, 5, &out)
	d.Add(6, 5, &out)
	d.Add(7, 7, &out)
	d.Add(8, 9, &out)
	d.FlushAndFill(&out)

	require.Len(t, out, 1)
	assert.InDelta(t, 2.0, out[0].V, 0.001)
}
