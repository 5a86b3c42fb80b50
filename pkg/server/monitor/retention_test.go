package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestRetentionMonitor_RecordSuccess(t *testing.T) {
	rm := &RetentionMonitor{}
	rm.RecordSuccess()

	status := rm.Status()
	if !status.Healthy {
		t.Error("status should be healthy after success")
	}
	if status.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", status.ConsecutiveErrors)
	}
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
}

func TestRetentionMonitor_RecordFailure(t *testing.T) {
	rm := &RetentionMonitor{}
	rm.RecordFailure(errors.New("disk full"))

	status := rm.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "disk full" {
		t.Errorf("LastError = %q, want %q", status.LastError, "disk full")
	}
}

func TestRetentionMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*RetentionMonitor)
		expected bool
	}{
		{
			name:     "never succeeded",
			setup:    func(*RetentionMonitor) {},
			expected: false,
		},
		{
			name: "recent success",
			setup: func(rm *RetentionMonitor) {
				rm.RecordSuccess()
			},
			expected: true,
		},
		{
			name: "stale success",
			setup: func(rm *RetentionMonitor) {
				rm.mu.Lock()
				rm.lastSuccess = time.Now().Add(-2 * time.Hour)
				rm.mu.Unlock()
			},
			expected: false,
		},
		{
			name: "too many consecutive errors",
			setup: func(rm *RetentionMonitor) {
				rm.RecordSuccess()
				rm.RecordFailure(errors.New("error 1"))
				rm.RecordFailure(errors.New("error 2"))
				rm.RecordFailure(errors.New("error 3"))
				rm.RecordFailure(errors.New("error 4"))
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := &RetentionMonitor{}
			tt.setup(rm)
			if got := rm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRetentionMonitor_Status(t *testing.T) {
	rm := &RetentionMonitor{}
	rm.RecordSuccess()

	status := rm.Status()
	if !status.Healthy {
		t.Error("status should be healthy")
	}
	if status.LastSuccess == "" {
		t.Error("LastSuccess should be set")
	}
	if status.TimeSinceSuccess == "" {
		t.Error("TimeSinceSuccess should be set")
	}
}
