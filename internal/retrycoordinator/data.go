package retrycoordinator

import "time"

/*
RetryCoordinator - classifies fetch failures and decides retry,
backoff, host-lockout, and domain-throttle policy. Also owns the
per-domain politeness token bucket independent from any component's
own error bookkeeping.
*/

// ErrorClass is the abstract failure kind a fetch error is bucketed
// into before a RetryVerdict is produced.
type ErrorClass string

const (
	ClassTransient       ErrorClass = "transient"
	ClassRateLimited     ErrorClass = "rate-limited"
	ClassServerError     ErrorClass = "server-error"
	ClassConnectionReset ErrorClass = "connection-reset"
	ClassPermanent       ErrorClass = "permanent"
	ClassUnknown         ErrorClass = "unknown"
)

// VerdictAction is what the caller (FetchPipeline / QueueManager)
// should do with the entry that just failed.
type VerdictAction string

const (
	ActionRetry     VerdictAction = "retry"
	ActionDefer     VerdictAction = "defer"
	ActionAbandon   VerdictAction = "abandon"
	ActionBlockHost VerdictAction = "block-host"
)

// RetryVerdict is RetryCoordinator's decision for one failed fetch.
type RetryVerdict struct {
	ShouldRetry bool
	Action      VerdictAction
	Delay       time.Duration
	Reason      string
}

// Params holds every threshold RetryCoordinator's policy table
// references, all independently configurable with the spec's defaults.
type Params struct {
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	JitterFactor       float64
	MaxRetries         int
	ThrottleDuration   time.Duration
	HostMaxErrors      int
	HostWindow         time.Duration
	HostLockout        time.Duration
	RequestsPerMinute  float64
	BurstSize          float64
}

// DefaultParams mirrors the spec's stated defaults verbatim.
func DefaultParams() Params {
	return Params{
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		JitterFactor:      0.2,
		MaxRetries:        3,
		ThrottleDuration:  5 * time.Second,
		HostMaxErrors:     5,
		HostWindow:        60 * time.Second,
		HostLockout:       300 * time.Second,
		RequestsPerMinute: 20,
		BurstSize:         3,
	}
}

// tokenBucket is the per-host politeness token state: tokens refill at
// RequestsPerMinute/60 per second up to BurstSize.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	resets     int
}
