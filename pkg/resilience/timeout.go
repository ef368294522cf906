package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the application's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (60s)
//	  ↓
//	Payment commit: upload + DB transaction (45s)
//	  ↓
//	Ingestion source read, one per source (10s)
//
// Evidence cleanup runs on a fresh context after a failed commit, so it is
// not bounded by the commit deadline that may already have expired.
type TimeoutConfig struct {
	// Handler layer timeouts
	HTTPHandler time.Duration // Overall request timeout (default: 60s)
	CronJob     time.Duration // Batch recompute enqueue (default: 5 minutes)

	// Service layer timeouts
	Commit     time.Duration // Upload-then-commit sequence (default: 45s)
	SourceRead time.Duration // Single ingestion source fetch (default: 10s)

	// Compensation
	EvidenceCleanup time.Duration // All evidence delete attempts together (default: 30s)
	CleanupAttempt  time.Duration // One delete attempt (default: 5s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     60 * time.Second,
		CronJob:         5 * time.Minute,
		Commit:          45 * time.Second,
		SourceRead:      10 * time.Second,
		EvidenceCleanup: 30 * time.Second,
		CleanupAttempt:  5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:     5 * time.Second,
		CronJob:         30 * time.Second,
		Commit:          3 * time.Second,
		SourceRead:      1 * time.Second,
		EvidenceCleanup: 2 * time.Second,
		CleanupAttempt:  500 * time.Millisecond,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for cron jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// CommitContext bounds the whole upload-then-commit sequence.
func (tc *TimeoutConfig) CommitContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Commit)
}

// SourceContext bounds one ingestion source read.
func (tc *TimeoutConfig) SourceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SourceRead)
}

// CleanupContext detaches from parent's cancellation so compensation still
// runs after the commit deadline fired.
func (tc *TimeoutConfig) CleanupContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.EvidenceCleanup)
}

// AttemptContext bounds a single cleanup attempt.
func (tc *TimeoutConfig) AttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CleanupAttempt)
}
