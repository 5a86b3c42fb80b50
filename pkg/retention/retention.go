// Package retention periodically drops data older than the configured
// retention window. It adapts pkg/compaction.Compactor's
// CompactAndCleanup scheduling idiom (run on a ticker, also once on
// startup, retried with exponential backoff, health tracked by a
// monitor) to this engine's domain: there is no on-disk downsampling
// tier to age data into here, since downsampling happens per query
// against raw points, so the sweep is pure deletion rather than
// compact-then-delete.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/chronosdb/chronosdb/pkg/server/monitor"
	"github.com/chronosdb/chronosdb/pkg/shard"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

const (
	maxRetries = 3
	baseDelay  = 30 * time.Second
)

// Sweeper periodically prunes any shard.Store that implements
// shard.Pruner. Stores that don't (small fixed test fixtures) make
// Run a no-op.
type Sweeper struct {
	store    shard.Store
	window   time.Duration
	interval time.Duration
	res      timeutil.Resolution
	monitor  *monitor.RetentionMonitor
}

// New creates a Sweeper that deletes data older than window, checking
// every interval. mon may be nil; Run skips health recording then.
func New(store shard.Store, window, interval time.Duration, res timeutil.Resolution, mon *monitor.RetentionMonitor) *Sweeper {
	return &Sweeper{store: store, window: window, interval: interval, res: res, monitor: mon}
}

// Run blocks, sweeping once immediately and then every interval, until
// ctx is canceled. Each sweep is retried with exponential backoff on
// failure, matching the teacher's compaction scheduler.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepWithRetry(ctx, true)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepWithRetry(ctx, false)
		}
	}
}

func (s *Sweeper) sweepWithRetry(ctx context.Context, isInitial bool) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<(attempt-1))
			log.Printf("retention: retrying sweep in %v (attempt %d/%d)", delay, attempt+1, maxRetries+1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		start := time.Now()
		err := s.sweepOnce(ctx)
		if err != nil {
			if s.monitor != nil {
				s.monitor.RecordFailure(err)
			}
			log.Printf("retention: sweep failed (attempt %d/%d): %v", attempt+1, maxRetries+1, err)
			continue
		}

		if s.monitor != nil {
			s.monitor.RecordSuccess()
		}
		if isInitial {
			log.Printf("retention: initial sweep completed in %v", time.Since(start).Round(time.Millisecond))
		}
		return
	}
	log.Printf("retention: sweep failed after %d attempts, will retry on next schedule", maxRetries+1)
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	pruner, ok := s.store.(shard.Pruner)
	if !ok {
		return nil
	}

	cutoff := timeutil.Now(s.res) - timeutil.Timestamp(secondsOrMillis(s.window, s.res))
	start := time.Now()
	removed, err := pruner.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("retention: pruned %d data points older than %v in %v", removed, s.window, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func secondsOrMillis(d time.Duration, res timeutil.Resolution) int64 {
	if res == timeutil.ResolutionMillis {
		return d.Milliseconds()
	}
	return int64(d.Seconds())
}
