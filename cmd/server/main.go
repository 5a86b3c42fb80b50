package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/chronosdb/chronosdb/pkg/config"
	"github.com/chronosdb/chronosdb/pkg/executor"
	"github.com/chronosdb/chronosdb/pkg/livequery"
	"github.com/chronosdb/chronosdb/pkg/querydriver"
	"github.com/chronosdb/chronosdb/pkg/retention"
	"github.com/chronosdb/chronosdb/pkg/server"
	"github.com/chronosdb/chronosdb/pkg/server/monitor"
	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/stats"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 10 * time.Second
	shutdownTimeout    = 30 * time.Second

	// SAFETY: conservative default for a self-hosted laptop deployment.
	defaultMaxStorageGB = 1
)

func main() {
	log.Println("🚀 Starting ChronosDB query server...")

	cfg := config.Load()
	maxStorageGB := getEnvInt64("CHRONO_MAX_STORAGE_GB", defaultMaxStorageGB)
	maxStorageBytes := maxStorageGB * 1024 * 1024 * 1024

	log.Printf("⚙️  Configuration: port=%s storage_limit=%.2fGB memory_limit=%dMB executor_threads=%d",
		cfg.Port, float64(maxStorageBytes)/(1024*1024*1024), cfg.MaxMemoryMB, cfg.ExecutorThreadCount)

	store, err := server.InitializeStore(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize shard store: %v", err)
	}
	defer store.Close()

	storageMonitor := monitor.NewStorageMonitor(cfg.DataDir, maxStorageBytes)
	retentionMonitor := &monitor.RetentionMonitor{}

	exec := executor.New(executor.Config{
		ThreadCount:  cfg.ExecutorThreadCount,
		QueueSize:    cfg.ExecutorQueueSize,
		Parallel:     cfg.ExecutorParallel,
		OffHourBegin: cfg.OffHourBegin,
		OffHourEnd:   cfg.OffHourEnd,
	})
	log.Printf("🧮 Executor pool ready (%d threads, queue size %d)", cfg.ExecutorThreadCount, cfg.ExecutorQueueSize)

	driver := querydriver.New(store, exec, cfg)
	live := livequery.New(driver, config.WSPushInterval)
	statsRegistry := stats.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	sweeper := retention.New(store, config.RetentionDefaultWindow, config.RetentionSweepInterval, resolutionOf(cfg), retentionMonitor)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	log.Printf("🧹 Retention sweeper started (window %v, interval %v)", config.RetentionDefaultWindow, config.RetentionSweepInterval)

	wg.Add(1)
	go func() {
		defer wg.Done()
		retention.RunGC(ctx, store, config.BadgerGCInterval)
	}()
	log.Println("🗑️  BadgerDB GC scheduler started")

	router := setupRouter(driver, live, store, exec, statsRegistry, retentionMonitor, storageMonitor, cfg.Port)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)
		log.Println("📡 API endpoints:")
		log.Println("   GET/POST /api/query          - Run a query")
		log.Println("   GET      /api/query/live      - Live-push a query over WebSocket")
		log.Println("   GET      /api/config/filters  - Supported filter types")
		log.Println("   GET      /api/stats           - Request, runtime, and shard stats")
		log.Println("   GET      /health              - Health check")
		log.Println("✅ Server ready to accept requests")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")
	log.Println("⏸️  Stopping background tasks...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	if err := exec.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Executor shutdown warning: %v", err)
	}

	log.Println("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 ChronosDB server exited cleanly")
}

// setupRouter builds the full route tree, split out from main so tests
// can exercise the real handler wiring through httptest without
// starting a listening socket.
func setupRouter(
	driver *querydriver.Handler,
	live *livequery.Handler,
	store shard.Store,
	exec *executor.Executor,
	reg *stats.Registry,
	retentionMonitor *monitor.RetentionMonitor,
	storageMonitor *monitor.StorageMonitor,
	port string,
) *mux.Router {
	router := mux.NewRouter()
	server.SetupRoutes(router, driver, live, store, exec, reg, retentionMonitor, storageMonitor, port)
	return router
}

func resolutionOf(cfg config.Config) timeutil.Resolution {
	if cfg.TimestampResolutionMs {
		return timeutil.ResolutionMillis
	}
	return timeutil.ResolutionSeconds
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}
