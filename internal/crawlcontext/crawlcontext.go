package crawlcontext

import (
	"sync"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/frontier"
)

// maxProblemsPerKind bounds the problem log per kind so a noisy failure
// mode cannot grow memory unbounded over a long-running job.
const maxProblemsPerKind = 50

// maxMilestones bounds the append-only milestone log.
const maxMilestones = 500

// EventEmitter is the narrow capability CrawlContext uses to broadcast
// its mutations. internal/telemetry.Bus satisfies this; CrawlContext
// never imports telemetry directly, keeping the dependency pointed the
// way the rest of the crawl engine composes (context in, events out).
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

// CrawlContext is the single authoritative, mutable state container
// shared by every crawl component. All mutation goes through its named
// methods; nothing else is permitted to transition a URL's state.
type CrawlContext struct {
	mu sync.RWMutex

	status Status

	visited frontier.Set[string]
	queued  frontier.Set[string]
	decided map[string]DecisionRecord

	domains map[string]*DomainState

	problems   map[string][]ProblemRecord
	milestones []MilestoneRecord

	stats Stats

	emitter EventEmitter
}

// New creates an empty, running CrawlContext. A nil emitter is replaced
// with a no-op so callers never need a nil check.
func New(emitter EventEmitter) *CrawlContext {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &CrawlContext{
		status:   StatusRunning,
		visited:  frontier.NewSet[string](),
		queued:   frontier.NewSet[string](),
		decided:  make(map[string]DecisionRecord),
		domains:  make(map[string]*DomainState),
		problems: make(map[string][]ProblemRecord),
		emitter:  emitter,
	}
}

// MarkQueued transitions a URL from not-seen to queued. It succeeds iff
// the URL is not already visited or queued (P1: visited and queued are
// mutually exclusive).
func (c *CrawlContext) MarkQueued(u string) (bool, *CrawlContextError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusFinished || c.status == StatusAborted || c.status == StatusFailed {
		return false, &CrawlContextError{Message: u, Cause: ErrCauseAlreadyFinished}
	}

	if c.visited.Contains(u) || c.queued.Contains(u) {
		return false, nil
	}

	c.queued.Add(u)
	c.stats.Queued++
	c.emitter.Emit("url:queued", map[string]any{"url": u})
	return true, nil
}

// MarkVisited transitions queued -> visited. Idempotent: calling it
// again on an already-visited URL is a no-op success.
func (c *CrawlContext) MarkVisited(u string) (bool, *CrawlContextError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusFinished || c.status == StatusAborted || c.status == StatusFailed {
		return false, &CrawlContextError{Message: u, Cause: ErrCauseAlreadyFinished}
	}

	if c.visited.Contains(u) {
		return true, nil
	}

	c.queued.Remove(u)
	c.visited.Add(u)
	c.stats.Visited++
	c.emitter.Emit("url:visited", map[string]any{"url": u})
	return true, nil
}

// IsVisited reports whether u has already been visited.
func (c *CrawlContext) IsVisited(u string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visited.Contains(u)
}

// IsQueued reports whether u is currently queued.
func (c *CrawlContext) IsQueued(u string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queued.Contains(u)
}

// RecordDecision caches the outcome of a decision (used by
// UrlDecisionOrchestrator's state checks, not replayed here).
func (c *CrawlContext) RecordDecision(u string, action, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decided[u] = DecisionRecord{Action: action, Reason: reason, CachedAt: time.Now()}
}

// GetDecision returns the cached decision for u, if any.
func (c *CrawlContext) GetDecision(u string) (DecisionRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.decided[u]
	return rec, ok
}

func (c *CrawlContext) domainLocked(host string) *DomainState {
	d, ok := c.domains[host]
	if !ok {
		d = &DomainState{Host: host}
		c.domains[host] = d
	}
	return d
}

// RecordDomainRequest notes that a request was just issued to host,
// advancing its rolling request window.
func (c *CrawlContext) RecordDomainRequest(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.domainLocked(host)
	now := time.Now()
	if now.Sub(d.WindowStart) > time.Minute {
		d.WindowStart = now
		d.RequestsInWindow = 0
	}
	d.RequestsInWindow++
	d.LastRequestAt = now
}

// RecordDomainError appends an error timestamp to host's error window.
func (c *CrawlContext) RecordDomainError(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.domainLocked(host)
	d.ErrorTimestamps = append(d.ErrorTimestamps, time.Now())
	c.stats.Errors++
}

// RecordDomainSuccess drops the oldest error timestamp from host's
// window, letting errors age out via success as well as time.
func (c *CrawlContext) RecordDomainSuccess(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.domainLocked(host)
	if len(d.ErrorTimestamps) > 0 {
		d.ErrorTimestamps = d.ErrorTimestamps[1:]
	}
}

// ErrorCountWithin returns how many of host's recorded errors fall
// within window of now.
func (c *CrawlContext) ErrorCountWithin(host string, window time.Duration) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.domains[host]
	if !ok {
		return 0
	}
	cutoff := time.Now().Add(-window)
	count := 0
	for _, ts := range d.ErrorTimestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

// ThrottleDomain marks host as throttled until now+duration.
func (c *CrawlContext) ThrottleDomain(host string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.domainLocked(host)
	d.ThrottledUntil = time.Now().Add(duration)
	c.emitter.Emit("domain:throttled", map[string]any{"host": host, "durationMs": duration.Milliseconds()})
}

// IsDomainThrottled reports whether host is currently throttled, and
// for how much longer.
func (c *CrawlContext) IsDomainThrottled(host string) (bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.domains[host]
	if !ok {
		return false, 0
	}
	remaining := time.Until(d.ThrottledUntil)
	return remaining > 0, remaining
}

// BlockDomain locks host out of further fetches until explicitly
// cleared, recording reason for diagnostics.
func (c *CrawlContext) BlockDomain(host, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.domainLocked(host)
	d.LockedOut = true
	d.LockoutReason = reason
	c.emitter.Emit("domain:blocked", map[string]any{"host": host, "reason": reason})
}

// UnblockDomain clears a prior BlockDomain, e.g. once a lockout expires.
func (c *CrawlContext) UnblockDomain(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.domains[host]
	if !ok {
		return
	}
	d.LockedOut = false
	d.LockoutReason = ""
}

// IsDomainBlocked reports whether host is currently locked out.
func (c *CrawlContext) IsDomainBlocked(host string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.domains[host]
	return ok && d.LockedOut
}

// DomainSnapshot returns a copy of host's DomainState for read-only use
// by callers outside the package (e.g. RetryCoordinator token math).
func (c *CrawlContext) DomainSnapshot(host string) (DomainState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.domains[host]
	if !ok {
		return DomainState{}, false
	}
	return *d, true
}

// RecordProblem appends to the bounded problem log for kind, evicting
// the oldest entry once the cap is reached.
func (c *CrawlContext) RecordProblem(kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.problems[kind]
	entries = append(entries, ProblemRecord{Kind: kind, Message: message, ObservedAt: time.Now()})
	if len(entries) > maxProblemsPerKind {
		entries = entries[len(entries)-maxProblemsPerKind:]
	}
	c.problems[kind] = entries
	c.emitter.Emit("problem", map[string]any{"kind": kind, "message": message})
}

// RecordMilestone appends to the capped milestone log.
func (c *CrawlContext) RecordMilestone(kind, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.milestones = append(c.milestones, MilestoneRecord{Kind: kind, Message: message, ObservedAt: time.Now()})
	if len(c.milestones) > maxMilestones {
		c.milestones = c.milestones[len(c.milestones)-maxMilestones:]
	}
	c.emitter.Emit("milestone", map[string]any{"kind": kind, "message": message})
}

// IncrArticles, IncrBytesDownloaded, IncrCacheHit and IncrCacheMiss
// update the aggregate stats counters.
func (c *CrawlContext) IncrArticles() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Articles++
}

func (c *CrawlContext) IncrBytesDownloaded(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.BytesDownloaded += n
}

func (c *CrawlContext) IncrCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CacheHits++
}

func (c *CrawlContext) IncrCacheMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CacheMisses++
}

// Status returns the context's current lifecycle status.
func (c *CrawlContext) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Finish transitions the context to a terminal status. Any further
// mutation (MarkQueued, MarkVisited) fails with ErrCauseAlreadyFinished.
func (c *CrawlContext) Finish(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.emitter.Emit("crawl:finished", map[string]any{"status": string(status)})
}

// Pause and Resume toggle the cooperative pause flag workers poll at
// their suspension points.
func (c *CrawlContext) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		c.status = StatusPaused
	}
}

func (c *CrawlContext) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusPaused {
		c.status = StatusRunning
	}
}

// Stats returns a copy of the current aggregate counters.
func (c *CrawlContext) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// ToJSON returns a fully serializable snapshot for debugging and
// persistence. It never re-reads its own history to make decisions;
// it exists purely for observation.
func (c *CrawlContext) ToJSON() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domains := make(map[string]DomainState, len(c.domains))
	for host, d := range c.domains {
		domains[host] = *d
	}

	problems := make(map[string][]ProblemRecord, len(c.problems))
	for kind, entries := range c.problems {
		copied := make([]ProblemRecord, len(entries))
		copy(copied, entries)
		problems[kind] = copied
	}

	milestones := make([]MilestoneRecord, len(c.milestones))
	copy(milestones, c.milestones)

	return Snapshot{
		Status:     c.status,
		Stats:      c.stats,
		Domains:    domains,
		Problems:   problems,
		Milestones: milestones,
	}
}
