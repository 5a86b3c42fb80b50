// Package stats instruments the query engine itself: per-endpoint
// request counters and latency histograms, plus a point-in-time Go
// runtime snapshot, all surfaced through /api/stats. It adapts
// pkg/sdk/metrics' Counter/Histogram bucketing and pkg/sdk/runtime's
// collector, stripped of the client/transport push loop those carried
// in the teacher's self-monitoring SDK: this process has no remote
// collector to push to, so observations accumulate locally and are
// read back directly by the stats handler instead of being flushed
// over the wire.
package stats

import (
	"runtime"
	"strings"
	"sync"
)

// DefaultLatencyBuckets covers 1ms to 10s, the range query handlers are
// expected to fall within.
var DefaultLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// Counter is a label-keyed monotonic counter.
type Counter struct {
	mu     sync.Mutex
	values map[string]float64
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{values: make(map[string]float64)}
}

// Inc increments the counter for labels by 1.
func (c *Counter) Inc(labels ...string) { c.Add(1, labels...) }

// Add adds value (must be non-negative) to the counter for labels.
func (c *Counter) Add(value float64, labels ...string) {
	if value < 0 {
		return
	}
	key := joinLabels(labels)
	c.mu.Lock()
	c.values[key] += value
	c.mu.Unlock()
}

// Snapshot returns a copy of every label combination's current value.
func (c *Counter) Snapshot() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// bucketSet tracks observations against a fixed set of upper bounds.
type bucketSet struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newBucketSet(buckets []float64) *bucketSet {
	return &bucketSet{buckets: buckets, counts: make([]uint64, len(buckets))}
}

func (bs *bucketSet) observe(v float64) {
	bs.count++
	bs.sum += v
	for i, bound := range bs.buckets {
		if v <= bound {
			bs.counts[i]++
		}
	}
}

// HistogramSnapshot is one label combination's bucket state at the
// moment Snapshot was called.
type HistogramSnapshot struct {
	Count   uint64    `json:"count"`
	Sum     float64   `json:"sum"`
	Buckets []float64 `json:"buckets"`
	Counts  []uint64  `json:"counts"`
}

// Histogram is a label-keyed latency histogram with fixed buckets.
type Histogram struct {
	buckets []float64
	mu      sync.Mutex
	sets    map[string]*bucketSet
}

// NewHistogram creates a Histogram using DefaultLatencyBuckets.
func NewHistogram() *Histogram {
	return &Histogram{buckets: DefaultLatencyBuckets, sets: make(map[string]*bucketSet)}
}

// Observe records value against labels.
func (h *Histogram) Observe(value float64, labels ...string) {
	key := joinLabels(labels)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sets[key] == nil {
		h.sets[key] = newBucketSet(h.buckets)
	}
	h.sets[key].observe(value)
}

// Snapshot returns the current bucket state for every label
// combination observed so far.
func (h *Histogram) Snapshot() map[string]HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]HistogramSnapshot, len(h.sets))
	for key, bs := range h.sets {
		counts := make([]uint64, len(bs.counts))
		copy(counts, bs.counts)
		out[key] = HistogramSnapshot{Count: bs.count, Sum: bs.sum, Buckets: bs.buckets, Counts: counts}
	}
	return out
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return strings.Join(labels, ",")
}

// RuntimeSnapshot is a point-in-time view of the Go runtime.
type RuntimeSnapshot struct {
	Goroutines     int    `json:"goroutines"`
	CPUCount       int    `json:"cpuCount"`
	HeapBytes      uint64 `json:"heapBytes"`
	StackBytes     uint64 `json:"stackBytes"`
	SysBytes       uint64 `json:"sysBytes"`
	GCCount        uint32 `json:"gcCount"`
	GCPauseSeconds float64 `json:"gcPauseSeconds"`
}

// CollectRuntime reads runtime.MemStats and returns a snapshot; unlike
// the teacher's periodic collector this is read synchronously by the
// stats handler rather than pushed on a ticker.
func CollectRuntime() RuntimeSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeSnapshot{
		Goroutines:     runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		HeapBytes:      m.HeapAlloc,
		StackBytes:     m.StackInuse,
		SysBytes:       m.Sys,
		GCCount:        m.NumGC,
		GCPauseSeconds: float64(m.PauseTotalNs) / 1e9,
	}
}
