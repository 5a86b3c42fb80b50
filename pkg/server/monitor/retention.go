package monitor

import (
	"sync"
	"time"
)

// RetentionMonitor tracks the retention sweep's health and failures,
// the same shape the teacher's CompactionMonitor used for its
// compaction job, adapted to a deletion-only sweep instead of a
// compact-then-delete one.
type RetentionMonitor struct {
	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a successful sweep.
func (rm *RetentionMonitor) RecordSuccess() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastSuccess = time.Now()
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors = 0
	rm.lastError = ""
}

// RecordFailure records a failed sweep.
func (rm *RetentionMonitor) RecordFailure(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors++
	if err != nil {
		rm.lastError = err.Error()
	}
}

// IsHealthy reports whether the sweep is working properly. Unhealthy
// conditions: never succeeded, no success in the last hour, or more
// than 3 consecutive failures.
func (rm *RetentionMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.lastSuccess.IsZero() {
		return false
	}
	if time.Since(rm.lastSuccess) > 1*time.Hour {
		return false
	}
	if rm.consecutiveErrors > 3 {
		return false
	}
	return true
}

// RetentionStatus is the JSON-serializable snapshot Status returns.
type RetentionStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current sweep status for health checks.
func (rm *RetentionMonitor) Status() RetentionStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RetentionStatus{
		Healthy: rm.IsHealthy(),
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).String()
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}

	return status
}
