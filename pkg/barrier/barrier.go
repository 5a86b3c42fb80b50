// Package barrier implements the counting completion barrier the
// Executor uses to know when a batch of fanned-out SeriesTasks has
// finished, following the same sync.Mutex-plus-condition idiom the
// rest of this codebase uses for coordination (pkg/sdk/batch.Batcher
// guards its pending batch with a plain mutex rather than reaching for
// a separate synchronization library).
package barrier

import "sync"

// CountingBarrier blocks a caller until count independent completions
// have been signaled via CountDown.
type CountingBarrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// New creates a barrier that releases its waiter once CountDown has
// been called n times. n == 0 releases immediately.
func New(n int) *CountingBarrier {
	b := &CountingBarrier{count: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// CountDown signals one completion. Calling it more than n times is a
// programming error; tasks each call it exactly once.
func (b *CountingBarrier) CountDown() {
	b.mu.Lock()
	if b.count > 0 {
		b.count--
	}
	if b.count == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// Wait blocks until the count has reached zero.
func (b *CountingBarrier) Wait() {
	b.mu.Lock()
	for b.count > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Remaining reports the outstanding completion count, mostly useful
// for tests asserting a barrier drained fully.
func (b *CountingBarrier) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
