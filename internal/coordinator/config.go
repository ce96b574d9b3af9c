package coordinator

import "time"

// Config holds every Coordinator-level operator-tunable value (spec.md §6
// "Configuration (deployment)").
type Config struct {
	// WorkerConcurrency bounds the number of jobs processed simultaneously.
	// Default: 5.
	WorkerConcurrency int

	// JobQueueSize bounds how many accepted-but-not-yet-picked-up jobs can
	// sit in the channel. Generate still succeeds (status pending) once
	// full: the job is handed to a goroutine that sends it when space
	// frees, so Generate does not block. Jobs handed off this way are not
	// picked up in FIFO order relative to one another. Default: 256.
	JobQueueSize int

	// JobDeadline is the per-job wall-clock deadline since entering
	// pending. Default: 5 minutes (spec.md §4.1).
	JobDeadline time.Duration

	// CancelPollInterval is how often the worker checks cancel_requested
	// while waiting on the AI Invoker. Default: 500ms.
	CancelPollInterval time.Duration

	// RetryDelay is the fixed backoff before the single retry of an AI
	// Invoker failure marked retryable (Failure.RetryHint: network errors,
	// rate limiting, timeouts, 5xx responses).
	// Default: 1 second.
	RetryDelay time.Duration

	// SpendWindow is the rolling window over which cost ledger entries
	// are summed against Cap. Default: 30 days.
	SpendWindow time.Duration

	// SpendCap is the maximum allowed spend within SpendWindow, in the
	// same currency-agnostic units as cost_estimate.
	SpendCap float64

	// PerCallEstimate is the conservative per-call cost used in the
	// preflight spend cap check (spec.md §4.1 step 5).
	PerCallEstimate float64

	// CircuitBreakerErrorThreshold is the failure-rate fraction (0-1) over
	// CircuitBreakerVolumeThreshold requests that trips the AI Invoker
	// circuit breaker open. Default: 0.5.
	CircuitBreakerErrorThreshold float64

	// CircuitBreakerVolumeThreshold is the minimum number of AI Invoker
	// calls in the sliding window before the error rate is evaluated.
	// Default: 10.
	CircuitBreakerVolumeThreshold int

	// CircuitBreakerSleepWindow is how long the breaker stays open before
	// allowing a half-open probe call through. Default: 30s.
	CircuitBreakerSleepWindow time.Duration
}

// DefaultConfig returns Config with the spec's stated defaults. SpendCap
// is zero (uncapped) until an operator sets one explicitly.
func DefaultConfig() Config {
	return Config{
		WorkerConcurrency:  5,
		JobQueueSize:       256,
		JobDeadline:        5 * time.Minute,
		CancelPollInterval: 500 * time.Millisecond,
		RetryDelay:         1 * time.Second,
		SpendWindow:        30 * 24 * time.Hour,
		SpendCap:           0,
		PerCallEstimate:    0.05,

		CircuitBreakerErrorThreshold:  0.5,
		CircuitBreakerVolumeThreshold: 10,
		CircuitBreakerSleepWindow:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = d.WorkerConcurrency
	}
	if c.JobQueueSize <= 0 {
		c.JobQueueSize = d.JobQueueSize
	}
	if c.JobDeadline <= 0 {
		c.JobDeadline = d.JobDeadline
	}
	if c.CancelPollInterval <= 0 {
		c.CancelPollInterval = d.CancelPollInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.SpendWindow <= 0 {
		c.SpendWindow = d.SpendWindow
	}
	if c.CircuitBreakerErrorThreshold <= 0 {
		c.CircuitBreakerErrorThreshold = d.CircuitBreakerErrorThreshold
	}
	if c.CircuitBreakerVolumeThreshold <= 0 {
		c.CircuitBreakerVolumeThreshold = d.CircuitBreakerVolumeThreshold
	}
	if c.CircuitBreakerSleepWindow <= 0 {
		c.CircuitBreakerSleepWindow = d.CircuitBreakerSleepWindow
	}
	return c
}
