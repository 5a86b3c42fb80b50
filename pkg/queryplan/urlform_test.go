package queryplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/aggregate"
	"github.com/chronosdb/chronosdb/pkg/arena"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

func testRange() timeutil.Range {
	return timeutil.Range{From: 0, To: 3600}
}

func TestParseURLForm_Basic(t *testing.T) {
	a := arena.New()
	q, err := ParseURLForm("sum:sys.cpu.user", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	require.NoError(t, err)

	assert.Equal(t, aggregate.KindSum, q.Aggregate)
	assert.Equal(t, "sys.cpu.user", q.Metric)
	assert.Equal(t, 0, q.Tags.Len())
	require.NotNil(t, q.Downsample)
}

func TestParseURLForm_WithDownsampleAndTags(t *testing.T) {
	a := arena.New()
	q, err := ParseURLForm("avg:1m-avg-zero:sys.cpu.user{host=web01,dc=us-east}", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	require.NoError(t, err)

	assert.Equal(t, aggregate.KindAvg, q.Aggregate)
	assert.Equal(t, "sys.cpu.user", q.Metric)
	require.NotNil(t, q.Downsample)
	assert.Equal(t, int64(60), q.Downsample.IntervalMs)

	v, ok := q.Tags.Get("host")
	require.True(t, ok)
	assert.Equal(t, "web01", v)
	v, ok = q.Tags.Get("dc")
	require.True(t, ok)
	assert.Equal(t, "us-east", v)
}

func TestParseURLForm_WithRate(t *testing.T) {
	a := arena.New()
	q, err := ParseURLForm("sum:rate:sys.net.bytes", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	require.NoError(t, err)

	require.NotNil(t, q.Rate)
	assert.False(t, q.Rate.Counter)
}

func TestParseURLForm_WithCounterRateOptions(t *testing.T) {
	a := arena.New()
	q, err := ParseURLForm("sum:rate{true,65535,0,false}:sys.net.bytes", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	require.NoError(t, err)

	require.NotNil(t, q.Rate)
	assert.True(t, q.Rate.Counter)
	assert.Equal(t, uint64(65535), q.Rate.CounterMax)
	assert.False(t, q.Rate.DropResets)
}

func TestParseURLForm_WildcardTag(t *testing.T) {
	a := arena.New()
	q, err := ParseURLForm("sum:sys.cpu.user{host=web*}", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	require.NoError(t, err)

	v, ok := q.Tags.Get("host")
	require.True(t, ok)
	assert.Equal(t, "web*", v)
}

func TestParseURLForm_Errors(t *testing.T) {
	a := arena.New()

	_, err := ParseURLForm("", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	assert.Error(t, err)

	_, err = ParseURLForm("sum:", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	assert.Error(t, err)

	_, err = ParseURLForm("sum:sys.cpu.user{host=web01", testRange(), false, 3600, timeutil.ResolutionSeconds, a)
	assert.Error(t, err)
}
