package decision_test

import (
	"testing"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/decision"
	"github.com/stretchr/testify/assert"
)

func newOrchestrator(params decision.Params) (*decision.Orchestrator, *crawlcontext.CrawlContext) {
	ctx := crawlcontext.New(nil)
	return decision.NewOrchestrator(params, ctx, nil), ctx
}

func TestDecideInvalidURL(t *testing.T) {
	o, _ := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	d := o.Decide(decision.Candidate{URL: "::::not a url"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "invalid-url", d.Reason)
}

func TestDecideBlockedExtension(t *testing.T) {
	o, _ := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	d := o.Decide(decision.Candidate{URL: "https://base.org/image.jpg", Host: "base.org", Path: "/image.jpg"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "invalid-url", d.Reason)
}

func TestDecideOffDomain(t *testing.T) {
	o, _ := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	d := o.Decide(decision.Candidate{URL: "https://other.org/a", Host: "other.org", Path: "/a"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "off-domain", d.Reason)
}

func TestDecideMaxDepth(t *testing.T) {
	params := decision.DefaultParams("base.org", "newscrawl")
	params.MaxDepth = 1
	o, _ := newOrchestrator(params)
	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a", Depth: 2})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "max-depth", d.Reason)
}

func TestDecideSkipQueryString(t *testing.T) {
	params := decision.DefaultParams("base.org", "newscrawl")
	params.SkipQueryUrls = true
	o, _ := newOrchestrator(params)
	d := o.Decide(decision.Candidate{URL: "https://base.org/a?x=1", Host: "base.org", Path: "/a", HasQuery: true})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "has-query-string", d.Reason)
}

func TestDecideAlreadyVisited(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	ctx.MarkQueued("https://base.org/a")
	ctx.MarkVisited("https://base.org/a")

	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "already-visited", d.Reason)
}

func TestDecideAlreadyQueued(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	ctx.MarkQueued("https://base.org/a")

	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "already-queued", d.Reason)
}

func TestDecideDomainBlocked(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	ctx.BlockDomain("base.org", "test")

	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "domain-blocked", d.Reason)
}

func TestDecideDomainThrottled(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	ctx.ThrottleDomain("base.org", 5*time.Second)

	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionDefer, d.Action)
	assert.Equal(t, "domain-throttled", d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestDecideBudgetExceeded(t *testing.T) {
	params := decision.DefaultParams("base.org", "newscrawl")
	params.MaxPages = 1
	o, ctx := newOrchestrator(params)
	ctx.MarkQueued("https://base.org/seen")
	ctx.MarkVisited("https://base.org/seen")

	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionSkip, d.Action)
	assert.Equal(t, "budget-exceeded", d.Reason)
}

func TestDecideEligible(t *testing.T) {
	o, _ := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	d := o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	assert.Equal(t, decision.ActionFetch, d.Action)
	assert.Equal(t, "eligible", d.Reason)
}

func TestDecideIsMemoized(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	candidate := decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"}

	first := o.Decide(candidate)
	assert.Equal(t, decision.ActionFetch, first.Action)

	// mutate state after caching; cached decision should still be served
	ctx.MarkQueued(candidate.URL)
	second := o.Decide(candidate)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, o.CacheSize())
}

func TestDecideForceRecheckBypassesCache(t *testing.T) {
	o, ctx := newOrchestrator(decision.DefaultParams("base.org", "newscrawl"))
	candidate := decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"}

	o.Decide(candidate)
	ctx.MarkQueued(candidate.URL)

	candidate.ForceRecheck = true
	fresh := o.Decide(candidate)
	assert.Equal(t, decision.ActionSkip, fresh.Action)
	assert.Equal(t, "already-queued", fresh.Reason)
}

func TestDecideCacheRespectsCapacity(t *testing.T) {
	params := decision.DefaultParams("base.org", "newscrawl")
	params.CacheCapacity = 2
	o, _ := newOrchestrator(params)

	o.Decide(decision.Candidate{URL: "https://base.org/a", Host: "base.org", Path: "/a"})
	o.Decide(decision.Candidate{URL: "https://base.org/b", Host: "base.org", Path: "/b"})
	o.Decide(decision.Candidate{URL: "https://base.org/c", Host: "base.org", Path: "/c"})

	assert.Equal(t, 2, o.CacheSize())
}
