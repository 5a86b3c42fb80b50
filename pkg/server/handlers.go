package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chronosdb/chronosdb/pkg/executor"
	"github.com/chronosdb/chronosdb/pkg/httpx"
	"github.com/chronosdb/chronosdb/pkg/livequery"
	"github.com/chronosdb/chronosdb/pkg/querydriver"
	"github.com/chronosdb/chronosdb/pkg/server/monitor"
	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/stats"
	"github.com/chronosdb/chronosdb/pkg/tracing"
)

var startTime = time.Now()

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version"`
	Uptime    string                  `json:"uptime"`
	Retention monitor.RetentionStatus `json:"retention"`
}

// handleHealth reports process health, degraded whenever the
// retention sweep is unhealthy, the same condition the teacher's
// handleHealth used for its compaction monitor.
func handleHealth(retentionMonitor *monitor.RetentionMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := retentionMonitor.Status()
		overallStatus := "healthy"
		statusCode := http.StatusOK
		if !status.Healthy {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.RespondJSON(w, statusCode, HealthResponse{
			Status:    overallStatus,
			Version:   "1.0.0",
			Uptime:    time.Since(startTime).String(),
			Retention: status,
		})
	}
}

// StatsResponse is the GET /api/stats body: everything the teacher's
// ingest.Handler.HandleStats reported (cardinality, storage, uptime),
// adapted to this engine's shard/executor/query-pipeline model instead
// of the ingest pipeline's write-path counters.
type StatsResponse struct {
	Uptime      string                             `json:"uptime"`
	ShardCount  int                                `json:"shard_count,omitempty"`
	SeriesCount int                                `json:"series_count,omitempty"`
	Executor    ExecutorStats                      `json:"executor"`
	Requests    map[string]float64                 `json:"requests_total"`
	Latency     map[string]stats.HistogramSnapshot `json:"request_duration_seconds"`
	Runtime     stats.RuntimeSnapshot              `json:"runtime"`
	Storage     *StorageUsage                      `json:"storage,omitempty"`
}

// ExecutorStats reports the bounded worker pool's current load.
type ExecutorStats struct {
	InFlight  int `json:"in_flight"`
	QueueSize int `json:"queue_size"`
}

// StorageUsage reports on-disk usage against the configured limit.
type StorageUsage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// handleStats assembles request counters, runtime memory stats, shard
// inventory (when the store implements shard.Inspectable), executor
// load, and optional disk usage into one JSON response.
func handleStats(store shard.Store, exec *executor.Executor, reg *stats.Registry, storageMonitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatsResponse{
			Uptime: time.Since(startTime).String(),
			Executor: ExecutorStats{
				InFlight:  exec.InFlight(),
				QueueSize: exec.QueueSize(),
			},
			Requests: reg.RequestsTotal.Snapshot(),
			Latency:  reg.RequestDuration.Snapshot(),
			Runtime:  stats.CollectRuntime(),
		}

		if inspectable, ok := store.(shard.Inspectable); ok {
			if s, err := inspectable.Stats(r.Context()); err == nil {
				resp.ShardCount = s.ShardCount
				resp.SeriesCount = s.SeriesCount
			}
		}

		if storageMonitor != nil {
			if used, err := storageMonitor.GetUsage(); err == nil {
				resp.Storage = &StorageUsage{UsedBytes: used, MaxBytes: storageMonitor.GetLimit()}
			}
		}

		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// SetupRoutes wires /api/query, /api/config/filters, /api/query/live,
// /api/stats, and /health onto router, wrapping every route in CORS,
// request-metrics, and tracing middleware in the same nesting order
// the teacher applied its CORS middleware in SetupRoutes.
func SetupRoutes(
	router *mux.Router,
	driver *querydriver.Handler,
	live *livequery.Handler,
	store shard.Store,
	exec *executor.Executor,
	reg *stats.Registry,
	retentionMonitor *monitor.RetentionMonitor,
	storageMonitor *monitor.StorageMonitor,
	port string,
) {
	router.Use(corsMiddleware(port))
	router.Use(reg.Middleware)
	router.Use(tracing.Middleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/query", driver.HandleQuery).Methods("GET", "POST")
	api.HandleFunc("/config/filters", driver.HandleConfigFilters).Methods("GET")
	api.HandleFunc("/query/live", live.ServeHTTP).Methods("GET")
	api.HandleFunc("/stats", handleStats(store, exec, reg, storageMonitor)).Methods("GET")

	router.HandleFunc("/health", handleHealth(retentionMonitor)).Methods("GET")
}

// corsMiddleware restricts cross-origin access to localhost origins,
// matching the teacher's corsMiddleware.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowedOrigins := []string{
				"http://localhost:" + port,
				"http://127.0.0.1:" + port,
			}

			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
