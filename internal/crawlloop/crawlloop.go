package crawlloop

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/decision"
	"github.com/rohmanhakim/newscrawl/internal/decisiontree"
	"github.com/rohmanhakim/newscrawl/internal/fetchpipeline"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/planner"
	"github.com/rohmanhakim/newscrawl/internal/queue"
	"github.com/rohmanhakim/newscrawl/internal/retrycoordinator"
	"github.com/rohmanhakim/newscrawl/internal/robots"
)

/*
CrawlLoop (C8) is the top-level lifecycle: init stages, plan, a worker
pool that drives QueueManager -> UrlDecisionOrchestrator ->
FetchPipeline -> (ContentStore + DecisionTree), and finish. The Planner
is consulted once, through Plan, for seed URLs; CrawlLoop does not call
Planner.Feedback after steps or Planner.LearnHeuristics at finish.
It is the composition root where every other component's
independently-defaulted Params are wired together.
*/

// EventEmitter is the narrow telemetry surface CrawlLoop broadcasts
// through; internal/telemetry.Bus satisfies it.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

type Loop struct {
	params  Params
	emitter EventEmitter

	ctx        *crawlcontext.CrawlContext
	robot      robots.Robot
	orchestrator *decision.Orchestrator
	pipeline   *fetchpipeline.Pipeline
	coord      *retrycoordinator.Coordinator
	queueMgr   *queue.Manager
	store      *contentstore.Store
	plan       *planner.Planner
	classifier *decisiontree.Classifier

	pauseMu sync.Mutex
	paused  bool
	aborted atomic.Bool
	busy    atomic.Int32

	successSinceProgress atomic.Int64
	lastProgressAt       atomic.Int64 // unix nano
}

// New wires every crawl component together for one job. robot, store,
// and plan may be constructed by the caller (they own their own
// database handles); classifier may be nil if no DecisionTree category
// is configured.
func New(
	params Params,
	emitter EventEmitter,
	robot robots.Robot,
	store *contentstore.Store,
	plan *planner.Planner,
	classifier *decisiontree.Classifier,
	metadataSink metadata.MetadataSink,
) *Loop {
	if emitter == nil {
		emitter = noopEmitter{}
	}

	ctx := crawlcontext.New(ctxEmitterAdapter{emitter})
	coord := retrycoordinator.NewCoordinator(retrycoordinator.DefaultParams(), ctx)

	decisionParams := decision.DefaultParams(params.StartURL.Hostname(), params.UserAgent)
	decisionParams.StayOnDomain = params.StayOnDomain
	decisionParams.MaxDepth = params.MaxDepth
	decisionParams.RespectRobots = params.RespectRobots
	decisionParams.SkipQueryUrls = params.SkipQueryUrls
	decisionParams.MaxPages = params.MaxPages
	orchestrator := decision.NewOrchestrator(decisionParams, ctx, robot)

	pipeline := fetchpipeline.NewPipeline(fetchpipeline.DefaultParams(), coord, metadataSink, fetchpipelineEmitterAdapter{emitter})

	return &Loop{
		params:       params,
		emitter:      emitter,
		ctx:          ctx,
		robot:        robot,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		coord:        coord,
		queueMgr:     queue.NewManager(queue.DefaultParams()),
		store:        store,
		plan:         plan,
		classifier:   classifier,
	}
}

// ctxEmitterAdapter satisfies crawlcontext.EventEmitter (a distinct,
// structurally-identical interface) from the Loop's EventEmitter.
type ctxEmitterAdapter struct{ emitter EventEmitter }

func (a ctxEmitterAdapter) Emit(event string, payload map[string]any) { a.emitter.Emit(event, payload) }

// fetchpipelineEmitterAdapter satisfies fetchpipeline.EventEmitter (a
// distinct, structurally-identical interface) from the Loop's
// EventEmitter.
type fetchpipelineEmitterAdapter struct{ emitter EventEmitter }

func (a fetchpipelineEmitterAdapter) Emit(event string, payload map[string]any) {
	a.emitter.Emit(event, payload)
}

// Run executes the full lifecycle: init, plan, worker pool, finish.
func (l *Loop) Run(parent context.Context) RunResult {
	var result RunResult
	result.InitStages = l.runInitStages()

	host := l.params.StartURL.Hostname()
	crawlPlan, perr := l.plan.Plan(host, nil, planner.Constraints{MaxPages: l.params.MaxPages, MaxDepth: l.params.MaxDepth})
	if perr == nil {
		l.seedFromPlan(crawlPlan)
	}
	if ok, _ := l.ctx.MarkQueued(l.params.StartURL.String()); ok {
		l.queueMgr.Enqueue(queue.Entry{URL: l.params.StartURL.String(), Host: host, Depth: 0, DiscoveredAt: time.Now(), Priority: 100})
	}

	l.emitter.Emit("sequence:start", map[string]any{"startUrl": l.params.StartURL.String()})

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	workers := l.params.ConcurrentWorkers
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.workerLoop(ctx)
		}()
	}
	wg.Wait()

	result.Aborted = l.aborted.Load()
	l.finish()
	return result
}

func (l *Loop) seedFromPlan(plan planner.CrawlPlan) {
	for _, seed := range plan.Seeds {
		parsed, err := url.Parse(seed)
		if err != nil {
			continue
		}
		if ok, _ := l.ctx.MarkQueued(seed); ok {
			l.queueMgr.Enqueue(queue.Entry{URL: seed, Host: parsed.Hostname(), Depth: 0, DiscoveredAt: time.Now(), Priority: 50})
		}
	}
}

// runInitStages runs the sequential init phase: the cached Robot is
// primed with the configured user agent so every worker's first
// robots lookup for a host is already warm.
func (l *Loop) runInitStages() []InitStageReport {
	var reports []InitStageReport
	reports = append(reports, l.runStage("robots-init", func() error {
		l.robot.Init(l.params.UserAgent)
		return nil
	}))
	return reports
}

func (l *Loop) runStage(name string, fn func() error) InitStageReport {
	started := time.Now()
	l.emitter.Emit("step:start", map[string]any{"stage": name})
	err := fn()
	elapsed := time.Since(started).Milliseconds()
	status := InitStatusCompleted
	message := ""
	if err != nil {
		status = InitStatusFailed
		message = err.Error()
	}
	l.emitter.Emit("step:complete", map[string]any{"stage": name, "status": string(status)})
	return InitStageReport{Name: name, Status: status, DurationMs: elapsed, Message: message}
}

// workerLoop is one worker's lifetime: pause/abort checkpoints, queue
// pop, decide, dispatch, repeat until the queue is empty and every
// worker is simultaneously idle (busy==0 at the same instant Size()==0
// is observed, so a worker mid-fetch can't be missed as it's about to
// enqueue out-links).
func (l *Loop) workerLoop(ctx context.Context) {
	idleSpins := 0
	for {
		l.waitIfPaused()
		if l.aborted.Load() || ctx.Err() != nil {
			return
		}

		entry, ok := l.queueMgr.Next()
		if !ok {
			if l.busy.Load() == 0 && l.queueMgr.Size() == 0 && l.queueMgr.DeferredSize() == 0 {
				return
			}
			idleSpins++
			time.Sleep(20 * time.Millisecond)
			if idleSpins > 3 {
				l.queueMgr.PromoteReady(time.Now())
			}
			continue
		}
		idleSpins = 0

		l.busy.Add(1)
		l.processEntry(ctx, entry)
		l.busy.Add(-1)
		l.maybeEmitProgress()
	}
}

func (l *Loop) waitIfPaused() {
	for {
		l.pauseMu.Lock()
		p := l.paused
		l.pauseMu.Unlock()
		if !p {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (l *Loop) Pause() {
	l.pauseMu.Lock()
	l.paused = true
	l.pauseMu.Unlock()
}

func (l *Loop) Resume() {
	l.pauseMu.Lock()
	l.paused = false
	l.pauseMu.Unlock()
}

func (l *Loop) Abort() {
	l.aborted.Store(true)
}

func (l *Loop) processEntry(ctx context.Context, entry queue.Entry) {
	defer l.queueMgr.Release(entry.Host)

	parsed, err := url.Parse(entry.URL)
	if err != nil {
		return
	}

	d := l.orchestrator.Decide(decision.Candidate{
		URL: entry.URL, Host: entry.Host, Path: parsed.Path,
		HasQuery: parsed.RawQuery != "", Depth: entry.Depth, Referrer: entry.Referrer,
	})

	switch d.Action {
	case decision.ActionSkip:
		// Every dequeued entry was marked queued before it was enqueued,
		// so an "already-queued" verdict refers to this entry itself.
		if d.Reason != "already-queued" {
			return
		}
		l.fetchAndExpand(ctx, entry, *parsed)
	case decision.ActionDefer:
		l.queueMgr.Defer(entry, d.RetryAfter)
		return
	case decision.ActionCache:
		l.ctx.IncrCacheHit()
		return
	case decision.ActionFetch:
		l.fetchAndExpand(ctx, entry, *parsed)
	}
}

func (l *Loop) fetchAndExpand(ctx context.Context, entry queue.Entry, target url.URL) {
	param := fetchpipeline.NewFetchParam(target, l.params.UserAgent, entry.Depth, nil, nil)
	result, verdict, ferr := l.pipeline.Fetch(ctx, param)
	if ferr != nil {
		l.handleFetchFailure(entry, verdict)
		return
	}

	l.ctx.MarkVisited(entry.URL)
	l.ctx.IncrBytesDownloaded(result.BytesDownloaded)

	facts := scanPage(result.Body, &target)
	if l.classifier != nil {
		classifications, cerr := l.classifier.EvaluateAll(decisiontree.PageContext{
			URL: entry.URL, Title: facts.Title, Description: facts.Description,
		})
		if cerr == nil {
			for _, c := range classifications {
				if c.Matched {
					l.ctx.IncrArticles()
					break
				}
			}
		}
	}

	if l.store != nil && len(result.Body) > 0 {
		l.store.Put(result.Body, contentstore.DefaultParams().DefaultUseCase)
	}

	for _, link := range facts.Links {
		linkHost, linkPath := urlHostPath(link)
		if linkHost == "" {
			continue
		}
		childDecision := l.orchestrator.Decide(decision.Candidate{
			URL: link, Host: linkHost, Path: linkPath, Depth: entry.Depth + 1, Referrer: entry.URL,
		})
		if childDecision.Action != decision.ActionFetch && childDecision.Action != decision.ActionQueue {
			continue
		}
		if ok, _ := l.ctx.MarkQueued(link); ok {
			l.queueMgr.Enqueue(queue.Entry{URL: link, Host: linkHost, Depth: entry.Depth + 1, DiscoveredAt: time.Now(), Referrer: entry.URL})
		}
	}
}

func (l *Loop) handleFetchFailure(entry queue.Entry, verdict *retrycoordinator.RetryVerdict) {
	if verdict == nil {
		return
	}
	switch verdict.Action {
	case retrycoordinator.ActionRetry:
		l.queueMgr.Defer(entry, verdict.Delay)
	case retrycoordinator.ActionDefer:
		l.queueMgr.Defer(entry, verdict.Delay)
	case retrycoordinator.ActionAbandon, retrycoordinator.ActionBlockHost:
		// dropped: no further attempts for this URL this run
	}
}

func (l *Loop) maybeEmitProgress() {
	n := l.successSinceProgress.Add(1)
	last := l.lastProgressAt.Load()
	now := time.Now().UnixNano()
	if n >= int64(l.params.ProgressEveryN) || time.Duration(now-last) >= l.params.ProgressEvery {
		l.successSinceProgress.Store(0)
		l.lastProgressAt.Store(now)
		stats := l.ctx.Stats()
		l.emitter.Emit("progress", map[string]any{
			"visited": stats.Visited, "queued": stats.Queued, "articles": stats.Articles,
		})
	}
}

func (l *Loop) finish() {
	l.ctx.Finish(crawlcontext.StatusFinished)
	l.emitter.Emit("sequence:complete", map[string]any{"aborted": l.aborted.Load()})
}

func urlHostPath(rawURL string) (host, path string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	return parsed.Hostname(), parsed.Path
}

// Context exposes the job's CrawlContext for callers (EventHandler,
// OperationsFacade) that need read access after Run returns.
func (l *Loop) Context() *crawlcontext.CrawlContext {
	return l.ctx
}
