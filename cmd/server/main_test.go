package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronosdb/chronosdb/pkg/config"
	"github.com/chronosdb/chronosdb/pkg/executor"
	"github.com/chronosdb/chronosdb/pkg/livequery"
	"github.com/chronosdb/chronosdb/pkg/querydriver"
	"github.com/chronosdb/chronosdb/pkg/server"
	"github.com/chronosdb/chronosdb/pkg/server/monitor"
	"github.com/chronosdb/chronosdb/pkg/shard/memory"
	"github.com/chronosdb/chronosdb/pkg/stats"
	"github.com/chronosdb/chronosdb/pkg/tagset"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// newTestRouter seeds a handful of points into an in-memory store and
// wires up the exact route tree main() serves, so these tests exercise
// the real query pipeline end to end rather than a mocked handler.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := memory.New(timeutil.ResolutionSeconds, 3600)
	base := timeutil.Timestamp(1_700_000_000)
	for i := 0; i < 10; i++ {
		store.Put("sys.cpu.user", tagset.New(map[string]string{"host": "web01"}), base+timeutil.Timestamp(i*60), float64(i))
		store.Put("sys.cpu.user", tagset.New(map[string]string{"host": "web02"}), base+timeutil.Timestamp(i*60), float64(i*2))
	}

	cfg := config.Config{
		Port:                "8080",
		ExecutorThreadCount: 4,
		ExecutorQueueSize:   64,
		ExecutorParallel:    true,
	}
	exec := executor.New(executor.Config{
		ThreadCount: cfg.ExecutorThreadCount,
		QueueSize:   cfg.ExecutorQueueSize,
		Parallel:    cfg.ExecutorParallel,
	})
	driver := querydriver.New(store, exec, cfg)
	live := livequery.New(driver, 5*time.Second)
	reg := stats.NewRegistry()
	retentionMonitor := &monitor.RetentionMonitor{}
	retentionMonitor.RecordSuccess()

	return setupRouter(driver, live, store, exec, reg, retentionMonitor, nil, cfg.Port)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.Retention.Healthy)
}

func TestQueryEndpoint_GET(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/query?start=1700000000&end=1700001000&m=sum:sys.cpu.user{host=web01}", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "sys.cpu.user", results[0]["metric"])
	dps, ok := results[0]["dps"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, dps)
}

func TestQueryEndpoint_POST(t *testing.T) {
	router := newTestRouter(t)

	body := `{"start":1700000000,"end":1700001000,"queries":[{"metric":"sys.cpu.user","aggregator":"avg","tags":{"host":"web02"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var results []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "sys.cpu.user", results[0]["metric"])
}

func TestQueryEndpoint_BadRequest(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/query?start=1700000000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ShardCount)
	assert.Equal(t, 2, resp.SeriesCount)
}

func TestConfigFiltersEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config/filters", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
