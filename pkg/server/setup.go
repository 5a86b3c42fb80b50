// Package server wires the process's HTTP surface together: route
// setup, CORS, and the /health and /api/stats endpoints that sit
// alongside the query/livequery handlers, following the same split
// the teacher keeps between cmd/server/main.go (process wiring) and
// pkg/server (route and handler definitions).
package server

import (
	"log"

	"github.com/chronosdb/chronosdb/pkg/config"
	"github.com/chronosdb/chronosdb/pkg/shard/badger"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// InitializeStore opens the on-disk badger-backed shard store at
// cfg.DataDir, tuned by cfg.MaxMemoryMB, the same way the teacher's
// InitializeStorage opened BadgerDB.
func InitializeStore(cfg config.Config) (*badger.Store, error) {
	res := timeutil.ResolutionSeconds
	if cfg.TimestampResolutionMs {
		res = timeutil.ResolutionMillis
	}

	log.Println("💾 Initializing BadgerDB shard store with Snappy compression...")
	store, err := badger.New(badger.Config{
		Path:        cfg.DataDir,
		MaxMemoryMB: cfg.MaxMemoryMB,
		Resolution:  res,
	})
	if err != nil {
		return nil, err
	}
	log.Println("✅ BadgerDB shard store initialized successfully")
	return store, nil
}
