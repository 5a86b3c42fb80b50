package retention

import (
	"context"
	"log"
	"time"

	"github.com/chronosdb/chronosdb/pkg/shard"
)

// gcRunner is implemented by shard.Store backends that need periodic
// value-log garbage collection (pkg/shard/badger.Store); in-memory
// stores have nothing to collect and simply don't implement it.
type gcRunner interface {
	RunGC(discardRatio float64) error
}

// RunGC runs store's value-log GC on a ticker until ctx is canceled,
// grounded on the teacher's RunBadgerGC scheduler. store that doesn't
// implement gcRunner makes this a no-op.
func RunGC(ctx context.Context, store shard.Store, interval time.Duration) {
	runner, ok := store.(gcRunner)
	if !ok {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := runner.RunGC(0.5); err != nil {
				log.Printf("retention: badger GC finished in %v without reclaiming space: %v", time.Since(start).Round(time.Millisecond), err)
				continue
			}
			log.Printf("retention: badger GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
		}
	}
}
