// Package executor owns the bounded worker pool SeriesTasks run on.
// It follows the spec's execute_parallel contract: N-1 tasks submitted
// to the pool, the Nth run inline on the calling goroutine, completion
// awaited through a barrier.CountingBarrier. The pool itself is built
// on plain channels and a WaitGroup, the same concurrency primitives
// pkg/sdk/batch.Batcher and pkg/server's broadcast/compaction loops use
// throughout this codebase — no pack example reaches for a dedicated
// worker-pool library for this.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chronosdb/chronosdb/pkg/barrier"
	"github.com/chronosdb/chronosdb/pkg/timeutil"
)

// Task is anything the Executor can run: SeriesTask.Perform in
// production, a plain closure in tests.
type Task interface {
	Perform(ctx context.Context)
}

// ShutdownDrain is the maximum time Shutdown waits for in-flight jobs
// before returning, matching the spec's 5-second drain ceiling.
const ShutdownDrain = 5 * time.Second

// Config configures the pool's size and off-hour queue widening.
type Config struct {
	ThreadCount  int
	QueueSize    int
	Parallel     bool
	OffHourBegin int
	OffHourEnd   int
}

// Executor is a process-wide bounded worker pool with a per-submission
// mutex and an off-hour-aware admission limit: during the configured
// off-hour window, the effective queue capacity doubles, since
// interactive query load is assumed low and backlogged batch queries
// can be allowed to pile up deeper without risking request latency.
type Executor struct {
	mu       sync.Mutex
	jobs     chan func()
	wg       sync.WaitGroup
	cfg      Config
	inFlight int32
	closed   int32
}

// New creates an Executor and starts cfg.ThreadCount worker goroutines.
// The job channel is sized for the widest (off-hour) queue so the
// channel itself never needs to be resized; admission control, not
// channel capacity, enforces the narrower daytime limit.
func New(cfg Config) *Executor {
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 1
	}
	maxQueue := cfg.QueueSize * 2
	if maxQueue <= 0 {
		maxQueue = 1
	}

	e := &Executor{
		cfg:  cfg,
		jobs: make(chan func(), maxQueue),
	}
	for i := 0; i < cfg.ThreadCount; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	for job := range e.jobs {
		job()
	}
}

// effectiveQueueSize returns the admission limit in effect right now.
func (e *Executor) effectiveQueueSize() int {
	if timeutil.IsOffHour(time.Now(), e.cfg.OffHourBegin, e.cfg.OffHourEnd) {
		return e.cfg.QueueSize * 2
	}
	return e.cfg.QueueSize
}

// submit admits one job if the current in-flight count is within the
// effective queue size, otherwise rejects it. A rejection is never
// fatal: ExecuteParallel runs a rejected task on its own goroutine
// outside the pool.
func (e *Executor) submit(job func()) error {
	if atomic.LoadInt32(&e.closed) == 1 {
		return fmt.Errorf("executor is shutting down")
	}

	n := atomic.AddInt32(&e.inFlight, 1)
	if int(n) > e.effectiveQueueSize() {
		atomic.AddInt32(&e.inFlight, -1)
		return fmt.Errorf("executor queue full")
	}

	e.wg.Add(1)
	e.jobs <- func() {
		defer e.wg.Done()
		defer atomic.AddInt32(&e.inFlight, -1)
		job()
	}
	return nil
}

// ExecuteParallel implements the spec's fan-out contract: for one or
// zero tasks it runs inline; for N>1 it submits tasks[0:N-1] to the
// pool under the Executor mutex, then runs tasks[N-1] on the calling
// goroutine without holding the mutex, then blocks on the barrier.
func (e *Executor) ExecuteParallel(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}
	if len(tasks) == 1 {
		tasks[0].Perform(ctx)
		return
	}

	b := barrier.New(len(tasks) - 1)

	e.mu.Lock()
	for _, t := range tasks[:len(tasks)-1] {
		t := t
		if err := e.submit(func() {
			t.Perform(ctx)
			b.CountDown()
		}); err != nil {
			log.Printf("executor: pool rejected task, running it outside the pool: %v", err)
			go func() {
				t.Perform(ctx)
				b.CountDown()
			}()
		}
	}
	e.mu.Unlock()

	tasks[len(tasks)-1].Perform(ctx)
	b.Wait()
}

// ExecuteSequential runs every task on the caller, in order, used when
// the per-request parallel flag is false.
func (e *Executor) ExecuteSequential(ctx context.Context, tasks []Task) {
	for _, t := range tasks {
		t.Perform(ctx)
	}
}

// Execute dispatches to ExecuteParallel or ExecuteSequential according
// to parallel; the query driver passes its configured flag on every
// request.
func (e *Executor) Execute(ctx context.Context, tasks []Task, parallel bool) {
	if parallel {
		e.ExecuteParallel(ctx, tasks)
	} else {
		e.ExecuteSequential(ctx, tasks)
	}
}

// InFlight reports the number of tasks currently submitted to or
// running on the pool, for the /api/stats endpoint.
func (e *Executor) InFlight() int {
	return int(atomic.LoadInt32(&e.inFlight))
}

// QueueSize reports the admission limit currently in effect, for the
// /api/stats endpoint.
func (e *Executor) QueueSize() int {
	return e.effectiveQueueSize()
}

// Shutdown rejects new submissions and waits up to ShutdownDrain for
// in-flight tasks to finish; in-flight tasks are not preempted.
func (e *Executor) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&e.closed, 1)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(e.jobs)
		return nil
	case <-time.After(ShutdownDrain):
		return fmt.Errorf("executor: shutdown timed out after %s with tasks still in flight", ShutdownDrain)
	case <-ctx.Done():
		return ctx.Err()
	}
}
