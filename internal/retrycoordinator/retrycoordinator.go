package retrycoordinator

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/pkg/limiter"
	"github.com/rohmanhakim/newscrawl/pkg/timeutil"
)

// FailureInput is what the caller observed about a failed fetch. Only
// the fields relevant to classification need to be set.
type FailureInput struct {
	HTTPStatus        int
	Timeout           bool
	ConnectionReset   bool
	ConnectionRefused bool
	DNSFailure        bool
	RetryAfterHeader  string
}

// Coordinator classifies fetch failures and produces RetryVerdicts,
// applying exponential backoff (via pkg/limiter's ConcurrentRateLimiter)
// and enforcing host lockout / domain throttle thresholds against a
// shared CrawlContext. FetchPipeline's politeness wait uses the
// Coordinator's own per-domain token bucket (GetTokenWaitTime /
// AcquireToken), not the rate limiter.
type Coordinator struct {
	params Params
	ctx    *crawlcontext.CrawlContext
	rl     *limiter.ConcurrentRateLimiter

	mu          sync.Mutex
	buckets     map[string]*tokenBucket
	resetCounts map[string]int

	rng *rand.Rand
}

// NewCoordinator constructs a Coordinator bound to ctx for domain
// error/lockout bookkeeping.
func NewCoordinator(params Params, ctx *crawlcontext.CrawlContext) *Coordinator {
	rl := limiter.NewConcurrentRateLimiter()
	rl.SetBaseDelay(params.BaseDelay)
	jitter := time.Duration(float64(params.BaseDelay) * params.JitterFactor)
	rl.SetJitter(jitter)
	rl.SetBackoffParam(timeutil.NewBackoffParam(params.BaseDelay, 2.0, params.MaxDelay))

	return &Coordinator{
		params:      params,
		ctx:         ctx,
		rl:          rl,
		buckets:     make(map[string]*tokenBucket),
		resetCounts: make(map[string]int),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClassifyError buckets a failure into one of the spec's abstract
// error classes, fixed priority: rate-limited > connection-reset >
// server-error > transient > permanent > unknown.
func ClassifyError(in FailureInput) ErrorClass {
	switch {
	case in.HTTPStatus == http.StatusTooManyRequests:
		return ClassRateLimited
	case in.ConnectionReset:
		return ClassConnectionReset
	case in.HTTPStatus >= 500 && in.HTTPStatus < 600:
		return ClassServerError
	case in.ConnectionRefused:
		return ClassServerError
	case in.Timeout:
		return ClassTransient
	case in.HTTPStatus == http.StatusForbidden,
		in.HTTPStatus == http.StatusNotFound,
		in.HTTPStatus == http.StatusGone,
		in.DNSFailure:
		return ClassPermanent
	default:
		return ClassUnknown
	}
}

// HandleFailure classifies the failure and returns the verdict for
// this attempt on host.
func (c *Coordinator) HandleFailure(host string, in FailureInput, attempt int) RetryVerdict {
	class := ClassifyError(in)

	switch class {
	case ClassRateLimited:
		delay := c.parseRetryAfter(in.RetryAfterHeader)
		c.ctx.ThrottleDomain(host, delay)
		return RetryVerdict{ShouldRetry: true, Action: ActionDefer, Delay: delay, Reason: "rate-limited"}

	case ClassConnectionReset:
		c.mu.Lock()
		c.resetCounts[host]++
		resets := c.resetCounts[host]
		c.mu.Unlock()

		c.ctx.RecordDomainError(host)
		c.rl.Backoff(host)
		delay := c.rl.ResolveDelay(host) * 2

		if resets >= 3 {
			c.ctx.BlockDomain(host, "connection-reset threshold exceeded")
			return RetryVerdict{ShouldRetry: false, Action: ActionBlockHost, Delay: 0, Reason: "connection-reset-blocked"}
		}
		return RetryVerdict{ShouldRetry: true, Action: ActionRetry, Delay: delay, Reason: "connection-reset"}

	case ClassServerError:
		c.ctx.RecordDomainError(host)
		errCount := c.ctx.ErrorCountWithin(host, c.params.HostWindow)

		if errCount >= c.params.HostMaxErrors {
			c.ctx.BlockDomain(host, "host error threshold exceeded")
			return RetryVerdict{ShouldRetry: false, Action: ActionBlockHost, Delay: c.params.HostLockout, Reason: "host-lockout"}
		}

		c.rl.Backoff(host)
		delay := c.rl.ResolveDelay(host)
		if attempt >= c.params.MaxRetries {
			return RetryVerdict{ShouldRetry: false, Action: ActionAbandon, Delay: 0, Reason: "server-error-exhausted"}
		}
		return RetryVerdict{ShouldRetry: true, Action: ActionRetry, Delay: delay, Reason: "server-error"}

	case ClassTransient:
		if attempt >= c.params.MaxRetries {
			return RetryVerdict{ShouldRetry: false, Action: ActionAbandon, Delay: 0, Reason: "transient-exhausted"}
		}
		delay := timeutil.ExponentialBackoffDelay(attempt, jitterDuration(c.params), *c.rng, timeutil.NewBackoffParam(c.params.BaseDelay, 2.0, c.params.MaxDelay))
		return RetryVerdict{ShouldRetry: true, Action: ActionRetry, Delay: delay, Reason: "transient"}

	case ClassPermanent:
		return RetryVerdict{ShouldRetry: false, Action: ActionAbandon, Delay: 0, Reason: "permanent"}

	default:
		return RetryVerdict{ShouldRetry: false, Action: ActionAbandon, Delay: 0, Reason: "unknown"}
	}
}

// RecordSuccess drops one error from host's error window, letting the
// server-error/lockout threshold age out via success as well as time.
func (c *Coordinator) RecordSuccess(host string) {
	c.ctx.RecordDomainSuccess(host)
	c.rl.ResetBackoff(host)
}

func jitterDuration(p Params) time.Duration {
	return time.Duration(float64(p.BaseDelay) * p.JitterFactor)
}

// parseRetryAfter interprets a Retry-After header value as either a
// delta-seconds integer or an HTTP-date; it falls back to the
// configured ThrottleDuration when the header is absent or malformed.
func (c *Coordinator) parseRetryAfter(header string) time.Duration {
	if header == "" {
		return c.params.ThrottleDuration
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return c.params.ThrottleDuration
}

// AcquireToken reports whether host currently has a politeness token
// available, consuming one if so. Tokens refill at
// RequestsPerMinute/60 per second up to BurstSize.
func (c *Coordinator) AcquireToken(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketLocked(host)
	c.refillLocked(b)

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// GetTokenWaitTime returns how long the caller must wait until host's
// bucket has another token available.
func (c *Coordinator) GetTokenWaitTime(host string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketLocked(host)
	c.refillLocked(b)

	if b.tokens >= 1 {
		return 0
	}
	refillRate := c.params.RequestsPerMinute / 60.0
	if refillRate <= 0 {
		return time.Hour
	}
	deficit := 1 - b.tokens
	return time.Duration(deficit/refillRate*float64(time.Second))
}

func (c *Coordinator) bucketLocked(host string) *tokenBucket {
	b, ok := c.buckets[host]
	if !ok {
		b = &tokenBucket{tokens: c.params.BurstSize, lastRefill: time.Now()}
		c.buckets[host] = b
	}
	return b
}

func (c *Coordinator) refillLocked(b *tokenBucket) {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	refillRate := c.params.RequestsPerMinute / 60.0
	b.tokens += elapsed * refillRate
	if b.tokens > c.params.BurstSize {
		b.tokens = c.params.BurstSize
	}
	b.lastRefill = now
}
