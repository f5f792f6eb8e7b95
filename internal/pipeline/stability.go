package pipeline

import (
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// RecoveryAction is the escalation step for an unstable pipeline.
type RecoveryAction int

const (
	RecoveryNone RecoveryAction = iota
	RecoveryClearCache
	RecoveryResetDevice
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoveryClearCache:
		return "clear_cache"
	case RecoveryResetDevice:
		return "reset_device"
	default:
		return "none"
	}
}

// StabilityMonitor tracks consecutive failures and the time since the last success.
type StabilityMonitor struct {
	mu                sync.Mutex
	consecutiveErrors int
	totalErrors       int64
	lastSuccess       time.Time
	maxErrors         int
	threshold         time.Duration
	clearCacheAfter   int
	resetDeviceAfter  int
	now               func() time.Time
}

// NewStabilityMonitor creates a monitor whose success clock starts now.
func NewStabilityMonitor(cfg config.StabilityConfig) *StabilityMonitor {
	s := &StabilityMonitor{
		maxErrors:        cfg.MaxConsecutiveErrors,
		threshold:        cfg.Threshold,
		clearCacheAfter:  cfg.ClearCacheAfter,
		resetDeviceAfter: cfg.ResetDeviceAfter,
		now:              time.Now,
	}
	if s.clearCacheAfter <= 0 {
		s.clearCacheAfter = constants.ClearCacheAfterErrors
	}
	if s.resetDeviceAfter <= 0 {
		s.resetDeviceAfter = constants.ResetDeviceAfterErrors
	}
	s.lastSuccess = s.now()
	return s
}

// RecordFailure counts one failed processing attempt.
func (s *StabilityMonitor) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	s.totalErrors++
	metrics.ConsecutiveErrors.Set(float64(s.consecutiveErrors))
}

// RecordSuccess resets the error count and the success clock.
func (s *StabilityMonitor) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
	s.lastSuccess = s.now()
	metrics.ConsecutiveErrors.Set(0)
}

// IsStable is false once the error budget is exhausted or no success happened
// within the stability threshold.
func (s *StabilityMonitor) IsStable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutiveErrors >= s.maxErrors {
		return false
	}
	return s.now().Sub(s.lastSuccess) <= s.threshold
}

// ConsecutiveErrors returns the current failure streak.
func (s *StabilityMonitor) ConsecutiveErrors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors
}

// TotalErrors returns every failure recorded since creation.
func (s *StabilityMonitor) TotalErrors() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalErrors
}

// LastSuccess returns the time of the last successful attempt.
func (s *StabilityMonitor) LastSuccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSuccess
}

// RecoveryAction returns the action matching the current failure streak.
func (s *StabilityMonitor) RecoveryAction() RecoveryAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.consecutiveErrors >= s.resetDeviceAfter:
		return RecoveryResetDevice
	case s.consecutiveErrors >= s.clearCacheAfter:
		return RecoveryClearCache
	default:
		return RecoveryNone
	}
}
