package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/downsample"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindAvg, ParseKind("avg"))
	assert.Equal(t, KindDev, ParseKind("dev"))
	assert.Equal(t, KindSum, ParseKind("bogus"))
	assert.Equal(t, KindNone, ParseKind("none"))
}

func series(pts ...downsample.Point) []downsample.Point { return pts }

func TestMerge_Sum(t *testing.T) {
	a := series(downsample.Point{TS: 0, V: 1}, downsample.Point{TS: 10, V: 2})
	b := series(downsample.Point{TS: 0, V: 3}, downsample.Point{TS: 10, V: 4})

	out := Merge([][]downsample.Point{a, b}, KindSum)

	require.Len(t, out, 2)
	assert.Equal(t, 4.0, out[0].V)
	assert.Equal(t, 6.0, out[1].V)
}

func TestMerge_MissingPointContributesNothing(t *testing.T) {
	a := series(downsample.Point{TS: 0, V: 1}, downsample.Point{TS: 10, V: 2})
	b := series(downsample.Point{TS: 10, V: 4})

	out := Merge([][]downsample.Point{a, b}, KindSum)

	require.Len(t, out, 2)
	assert.Equal(t, timeutil.Timestamp(0), out[0].TS)
	assert.Equal(t, 1.0, out[0].V)
	assert.Equal(t, 6.0, out[1].V)
}

func TestMerge_None(t *testing.T) {
	a := series(downsample.Point{TS: 0, V: 1})
	b := series(downsample.Point{TS: 0, V: 3})

	out := Merge([][]downsample.Point{a, b}, KindNone)
	assert.Nil(t, out)
}

func TestMerge_SingleSeriesPassthrough(t *testing.T) {
	a := series(downsample.Point{TS: 0, V: 1}, downsample.Point{TS: 10, V: 2})

	out := Merge([][]downsample.Point{a}, KindAvg)
	assert.Equal(t, a, out)
}

func TestMerge_Dev(t *testing.T) {
	a := series(downsample.Point{TS: 0, V: 2})
	b := series(downsample.Point{TS: 0, V: 4})
	c := series(downsample.Point{TS: 0, V: 4})
	d := series(downsample.Point{TS: 0, V: 4})
	e := series(downsample.Point{TS: 0, V: 5})
	f := series(downsample.Point{TS: 0, V: 5})
	g := series(downsample.Point{TS: 0, V: 7})
	h := series(downsample.Point{TS: 0, V: 9})

	out := Merge([][]downsample.Point{a, b, c, d, e, f, g, h}, KindDev)
	require.Len(t, out, 1)
	assert.InDelta(t, 2.0, out[0].V, 0.001)
}
