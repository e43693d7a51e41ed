package decision

import (
	"container/list"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/robots"
)

// Orchestrator evaluates each candidate URL against the fixed order
// syntax -> policy -> state -> resource -> cache, returning a
// structured Decision that never throws. Decisions are memoized in a
// bounded LRU with a short TTL; forceRecheck bypasses the cache.
type Orchestrator struct {
	params Params
	ctx    *crawlcontext.CrawlContext
	robot  robots.Robot

	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

// NewOrchestrator constructs an Orchestrator bound to ctx for
// state/resource checks and robot for policy checks. robot may be nil
// when RespectRobots is false.
func NewOrchestrator(params Params, ctx *crawlcontext.CrawlContext, robot robots.Robot) *Orchestrator {
	return &Orchestrator{
		params:  params,
		ctx:     ctx,
		robot:   robot,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Decide evaluates candidate against the fixed check order, returning
// the first failing check's Decision or fetch/eligible if all pass.
func (o *Orchestrator) Decide(candidate Candidate) Decision {
	if !candidate.ForceRecheck {
		if cached, ok := o.lookupCache(candidate.URL); ok {
			return cached
		}
	}

	decision := o.evaluate(candidate)
	o.storeCache(candidate.URL, decision)
	return decision
}

func (o *Orchestrator) evaluate(candidate Candidate) Decision {
	if d, ok := o.checkSyntax(candidate); !ok {
		return d
	}
	if d, ok := o.checkPolicy(candidate); !ok {
		return d
	}
	if d, ok := o.checkState(candidate); !ok {
		return d
	}
	if d, ok := o.checkResource(candidate); !ok {
		return d
	}
	if d, ok := o.checkCache(candidate); !ok {
		return d
	}
	return Decision{Action: ActionFetch, Reason: "eligible"}
}

// checkSyntax requires a parseable http(s) URL whose path extension is
// not in the blocked set.
func (o *Orchestrator) checkSyntax(candidate Candidate) (Decision, bool) {
	parsed, err := url.Parse(candidate.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Decision{Action: ActionSkip, Reason: "invalid-url"}, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Decision{Action: ActionSkip, Reason: "invalid-url"}, false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext != "" {
		if _, blocked := o.params.BlockedExtensions[ext]; blocked {
			return Decision{Action: ActionSkip, Reason: "invalid-url"}, false
		}
	}
	return Decision{}, true
}

// checkPolicy enforces stayOnDomain, maxDepth, robots, and
// skipQueryUrls.
func (o *Orchestrator) checkPolicy(candidate Candidate) (Decision, bool) {
	if o.params.StayOnDomain && !isSameOrSubdomain(candidate.Host, o.params.StartHost) {
		return Decision{Action: ActionSkip, Reason: "off-domain"}, false
	}
	if candidate.Depth > o.params.MaxDepth {
		return Decision{Action: ActionSkip, Reason: "max-depth"}, false
	}
	if o.params.RespectRobots && o.robot != nil {
		target := url.URL{Scheme: "https", Host: candidate.Host, Path: candidate.Path}
		rd, robotsErr := o.robot.Decide(target)
		if robotsErr == nil && !rd.Allowed {
			return Decision{Action: ActionSkip, Reason: "robots-disallowed"}, false
		}
	}
	if o.params.SkipQueryUrls && candidate.HasQuery {
		return Decision{Action: ActionSkip, Reason: "has-query-string"}, false
	}
	return Decision{}, true
}

// checkState enforces CrawlContext's exactly-once-visitation
// invariant.
func (o *Orchestrator) checkState(candidate Candidate) (Decision, bool) {
	if o.ctx.IsVisited(candidate.URL) {
		return Decision{Action: ActionSkip, Reason: "already-visited"}, false
	}
	if o.ctx.IsQueued(candidate.URL) {
		return Decision{Action: ActionSkip, Reason: "already-queued"}, false
	}
	return Decision{}, true
}

// checkResource enforces domain lockout, domain throttle, and the
// global page budget.
func (o *Orchestrator) checkResource(candidate Candidate) (Decision, bool) {
	if o.ctx.IsDomainBlocked(candidate.Host) {
		return Decision{Action: ActionSkip, Reason: "domain-blocked"}, false
	}
	if throttled, remaining := o.ctx.IsDomainThrottled(candidate.Host); throttled {
		retryAfter := remaining
		if retryAfter <= 0 {
			retryAfter = o.params.DefaultRetryAfter
		}
		return Decision{Action: ActionDefer, Reason: "domain-throttled", RetryAfter: retryAfter}, false
	}
	if o.params.MaxPages > 0 && o.ctx.Stats().Visited >= o.params.MaxPages {
		return Decision{Action: ActionSkip, Reason: "budget-exceeded"}, false
	}
	return Decision{}, true
}

// checkCache is a hook for an implementation-defined freshness check
// against a prior cached artifact. The orchestrator itself holds no
// content; callers supplying a fresh cached body should short-circuit
// before calling Decide. Kept as a pass-through by default.
func (o *Orchestrator) checkCache(candidate Candidate) (Decision, bool) {
	return Decision{}, true
}

func isSameOrSubdomain(host, startHost string) bool {
	if startHost == "" {
		return true
	}
	host = strings.ToLower(host)
	startHost = strings.ToLower(startHost)
	return host == startHost || strings.HasSuffix(host, "."+startHost)
}

// lookupCache returns the memoized Decision for key if present and not
// past its TTL, marking it most-recently-used.
func (o *Orchestrator) lookupCache(key string) (Decision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	el, ok := o.entries[key]
	if !ok {
		return Decision{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Since(entry.cachedAt) > o.params.CacheTTL {
		o.order.Remove(el)
		delete(o.entries, key)
		return Decision{}, false
	}
	o.order.MoveToFront(el)
	return entry.decision, true
}

// storeCache memoizes decision for key, evicting the least-recently
// used entry if the bounded cache is full.
func (o *Orchestrator) storeCache(key string, decision Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if el, ok := o.entries[key]; ok {
		el.Value.(*cacheEntry).decision = decision
		el.Value.(*cacheEntry).cachedAt = time.Now()
		o.order.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, decision: decision, cachedAt: time.Now()}
	el := o.order.PushFront(entry)
	o.entries[key] = el

	if o.params.CacheCapacity > 0 && o.order.Len() > o.params.CacheCapacity {
		oldest := o.order.Back()
		if oldest != nil {
			o.order.Remove(oldest)
			delete(o.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CacheSize reports the number of memoized decisions currently held.
func (o *Orchestrator) CacheSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.order.Len()
}
