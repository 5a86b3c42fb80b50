package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

func pt(ts int64, v float64) downsample.Point {
	return downsample.Point{TS: timeutil.Timestamp(ts), V: v}
}

func TestApply_SimpleGaugeRate(t *testing.T) {
	points := []downsample.Point{pt(0, 10), pt(10, 30), pt(20, 20)}
	out := Apply(points, Options{}, timeutil.ResolutionSeconds)

	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].V)
	assert.Equal(t, -1.0, out[1].V)
}

func TestApply_FewerThanTwoPointsReturnsNil(t *testing.T) {
	assert.Nil(t, Apply(nil, Options{}, timeutil.ResolutionSeconds))
	assert.Nil(t, Apply([]downsample.Point{pt(0, 1)}, Options{}, timeutil.ResolutionSeconds))
}

func TestApply_CounterWraparound(t *testing.T) {
	points := []downsample.Point{pt(0, 250), pt(10, 5)}
	opts := Options{Counter: true, CounterMax: 255}
	out := Apply(points, opts, timeutil.ResolutionSeconds)

	require.Len(t, out, 1)
	// wraps at 255: (255-250) + 5 = 10, over 10s = 1/s
	assert.Equal(t, 1.0, out[0].V)
}

func TestApply_CounterResetDroppedEmitsZero(t *testing.T) {
	points := []downsample.Point{pt(0, 100), pt(10, 5)}
	opts := Options{Counter: true, DropResets: true, CounterMax: 255}
	out := Apply(points, opts, timeutil.ResolutionSeconds)

	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].V)
}

func TestApply_ResetValueClampsSpike(t *testing.T) {
	points := []downsample.Point{pt(0, 100), pt(1, 1)}
	opts := Options{Counter: true, CounterMax: 255, ResetValue: 50}
	out := Apply(points, opts, timeutil.ResolutionSeconds)

	require.Len(t, out, 1)
	// (255-100+1)/1 = 156, exceeds resetValue=50, so clamped to 0
	assert.Equal(t, 0.0, out[0].V)
}

func TestApply_MillisecondResolutionDividesDtBy1000(t *testing.T) {
	points := []downsample.Point{pt(0, 0), pt(2000, 10)}
	out := Apply(points, Options{}, timeutil.ResolutionMillis)

	require.Len(t, out, 1)
	assert.Equal(t, 5.0, out[0].V)
}
