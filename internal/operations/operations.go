package operations

import (
	"context"
	"net/url"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/crawlloop"
	"github.com/rohmanhakim/newscrawl/internal/decisiontree"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/planner"
	"github.com/rohmanhakim/newscrawl/internal/robots"
	"github.com/rohmanhakim/newscrawl/internal/sequencerunner"
)

// EventEmitter is the narrow telemetry surface Facade broadcasts
// through; internal/telemetry.Bus satisfies it.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

// Dependencies are the shared, long-lived components every operation's
// CrawlLoop invocation composes; they own their own database handles
// and persist state across operations.
type Dependencies struct {
	Robot        robots.Robot
	Store        *contentstore.Store
	Plan         *planner.Planner
	Classifier   *decisiontree.Classifier
	MetadataSink metadata.MetadataSink
	Emitter      EventEmitter
}

// Facade is the OperationsFacade: a closed catalog of named operations
// mapped onto CrawlLoop invocations with preset option bundles.
type Facade struct {
	params Params
	deps   Dependencies
}

func NewFacade(params Params, deps Dependencies) *Facade {
	if deps.Emitter == nil {
		deps.Emitter = noopEmitter{}
	}
	return &Facade{params: params, deps: deps}
}

// Resolve implements sequencerunner.OperationResolver against the
// closed catalog; unrecognized names fail the step rather than ever
// reaching CrawlLoop.
func (f *Facade) Resolve(operation string) (sequencerunner.OperationFunc, bool) {
	switch OperationName(operation) {
	case OpEnsureCountryHubs:
		return f.ensureCountryHubs, true
	case OpExploreCountryHubs:
		return f.exploreCountryHubs, true
	case OpCrawlCountryHubHistory:
		return f.crawlCountryHubHistory, true
	case OpCrawlCountryHubsHistory:
		return f.crawlCountryHubsHistory, true
	case OpFindTopicHubs:
		return f.findTopicHubs, true
	case OpFindPlaceAndTopicHubs:
		return f.findPlaceAndTopicHubs, true
	default:
		return nil, false
	}
}

// ExecuteSequence runs sequence through a fresh SequenceRunner bound to
// this facade's catalog, honoring continueOnError.
func (f *Facade) ExecuteSequence(sequence sequencerunner.Sequence, continueOnError bool, tokens []sequencerunner.TokenResolver) sequencerunner.SequenceResult {
	sequence.ContinueOnError = continueOnError
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), f, tokens, sequencerunnerEmitterAdapter{f.deps.Emitter})
	return runner.Run(sequence)
}

type sequencerunnerEmitterAdapter struct{ emitter EventEmitter }

func (a sequencerunnerEmitterAdapter) Emit(event string, payload map[string]any) {
	a.emitter.Emit(event, payload)
}

// ensureCountryHubs confirms each known hub URL (or, absent a
// configured list, startURL alone) exists and is reachable: a
// depth-zero fetch-only pass per hub.
func (f *Facade) ensureCountryHubs(startURL string, overrides map[string]any) (any, error) {
	result := OperationResult{Operation: OpEnsureCountryHubs}
	for _, hub := range f.hubSet(startURL) {
		params, oerr := f.baseParams(hub, f.params.EnsureHubsMaxDepth, true, overrides)
		if oerr != nil {
			return nil, oerr
		}
		params.ConcurrentWorkers = 1
		run, stats := f.run(params)
		result.Hubs = append(result.Hubs, HubResult{
			URL: hub, Host: params.StartURL.Hostname(),
			Reachable: stats.Visited > 0, Visited: stats.Visited, Aborted: run.Aborted,
		})
	}
	return result, nil
}

// exploreCountryHubs runs a shallow breadth-first expansion from each
// known hub to discover sub-hubs.
func (f *Facade) exploreCountryHubs(startURL string, overrides map[string]any) (any, error) {
	return f.runAcrossHubs(OpExploreCountryHubs, startURL, f.params.ExploreHubsMaxDepth, overrides)
}

// crawlCountryHubHistory runs a deeper refresh pass over one hub,
// following historical-archive links to greater depth.
func (f *Facade) crawlCountryHubHistory(startURL string, overrides map[string]any) (any, error) {
	if startURL == "" {
		return nil, &OperationsError{Message: string(OpCrawlCountryHubHistory), Cause: ErrCauseMissingStartURL}
	}
	params, oerr := f.baseParams(startURL, f.params.HistoryMaxDepth, true, overrides)
	if oerr != nil {
		return nil, oerr
	}
	run, stats := f.run(params)
	return OperationResult{
		Operation: OpCrawlCountryHubHistory, Visited: stats.Visited, Articles: stats.Articles, Aborted: run.Aborted,
	}, nil
}

// crawlCountryHubsHistory batches crawlCountryHubHistory across every
// known hub.
func (f *Facade) crawlCountryHubsHistory(startURL string, overrides map[string]any) (any, error) {
	return f.runAcrossHubs(OpCrawlCountryHubsHistory, startURL, f.params.HistoryMaxDepth, overrides)
}

// findTopicHubs runs the Planner-driven intelligent mode targeted at
// topic (not geographic) section landing pages: CrawlLoop's own
// Planner.Plan seeds the frontier, with no hub-list constraint.
func (f *Facade) findTopicHubs(startURL string, overrides map[string]any) (any, error) {
	if startURL == "" {
		return nil, &OperationsError{Message: string(OpFindTopicHubs), Cause: ErrCauseMissingStartURL}
	}
	params, oerr := f.baseParams(startURL, f.params.TopicDiscoveryMaxDepth, true, overrides)
	if oerr != nil {
		return nil, oerr
	}
	run, stats := f.run(params)
	return OperationResult{
		Operation: OpFindTopicHubs, Visited: stats.Visited, Articles: stats.Articles, Aborted: run.Aborted,
	}, nil
}

// findPlaceAndTopicHubs combines both hub families into one reported
// result: a shallow hub-exploration pass plus a topic-discovery pass.
func (f *Facade) findPlaceAndTopicHubs(startURL string, overrides map[string]any) (any, error) {
	placeResult, perr := f.exploreCountryHubs(startURL, overrides)
	if perr != nil {
		return nil, perr
	}
	topicResult, terr := f.findTopicHubs(startURL, overrides)
	if terr != nil {
		return nil, terr
	}
	place := placeResult.(OperationResult)
	topic := topicResult.(OperationResult)
	return OperationResult{
		Operation: OpFindPlaceAndTopicHubs,
		Hubs:      place.Hubs,
		Visited:   place.Visited + topic.Visited,
		Articles:  place.Articles + topic.Articles,
		Aborted:   place.Aborted || topic.Aborted,
	}, nil
}

func (f *Facade) runAcrossHubs(op OperationName, startURL string, maxDepth int, overrides map[string]any) (any, error) {
	result := OperationResult{Operation: op}
	for _, hub := range f.hubSet(startURL) {
		params, oerr := f.baseParams(hub, maxDepth, true, overrides)
		if oerr != nil {
			return nil, oerr
		}
		run, stats := f.run(params)
		result.Hubs = append(result.Hubs, HubResult{
			URL: hub, Host: params.StartURL.Hostname(), Reachable: stats.Visited > 0, Visited: stats.Visited, Aborted: run.Aborted,
		})
		result.Visited += stats.Visited
		result.Articles += stats.Articles
		if run.Aborted {
			result.Aborted = true
		}
	}
	return result, nil
}

// hubSet returns the facade's configured hub URLs, or startURL alone
// when no hub list is configured.
func (f *Facade) hubSet(startURL string) []string {
	if len(f.params.HubURLs) > 0 {
		return f.params.HubURLs
	}
	if startURL == "" {
		return nil
	}
	return []string{startURL}
}

func (f *Facade) baseParams(rawURL string, maxDepth int, stayOnDomain bool, overrides map[string]any) (crawlloop.Params, *OperationsError) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return crawlloop.Params{}, &OperationsError{Message: rawURL, Cause: ErrCauseMissingStartURL}
	}
	params := crawlloop.DefaultParams(*parsed)
	params.UserAgent = f.params.UserAgent
	params.ConcurrentWorkers = f.params.ConcurrentWorkers
	params.MaxDepth = maxDepth
	params.StayOnDomain = stayOnDomain
	applyOverrides(&params, overrides)
	return params, nil
}

// run constructs and executes a fresh CrawlLoop for one operation
// invocation, returning the run result and the job's accumulated
// stats. CrawlLoop owns all of its own per-run state; Dependencies are
// the only state shared across invocations.
func (f *Facade) run(params crawlloop.Params) (crawlloop.RunResult, crawlcontext.Stats) {
	loop := crawlloop.New(params, crawlloopEmitterAdapter{f.deps.Emitter}, f.deps.Robot, f.deps.Store, f.deps.Plan, f.deps.Classifier, f.deps.MetadataSink)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result := loop.Run(ctx)
	return result, loop.Context().Stats()
}

type crawlloopEmitterAdapter struct{ emitter EventEmitter }

func (a crawlloopEmitterAdapter) Emit(event string, payload map[string]any) {
	a.emitter.Emit(event, payload)
}

// applyOverrides mutates params in place for every recognized override
// key present. Overrides arriving from JSON/YAML decode numerics as
// float64; overrideInt tolerates both that and a plain int so the same
// map works whether it came from a file or was built in Go.
func applyOverrides(params *crawlloop.Params, overrides map[string]any) {
	if v, ok := overrideInt(overrides, "maxDepth"); ok {
		params.MaxDepth = v
	}
	if v, ok := overrideInt(overrides, "maxPages"); ok {
		params.MaxPages = v
	}
	if v, ok := overrideInt(overrides, "concurrentWorkers"); ok {
		params.ConcurrentWorkers = v
	}
	if v, ok := overrides["stayOnDomain"].(bool); ok {
		params.StayOnDomain = v
	}
	if v, ok := overrides["respectRobots"].(bool); ok {
		params.RespectRobots = v
	}
	if v, ok := overrides["skipQueryUrls"].(bool); ok {
		params.SkipQueryUrls = v
	}
	if v, ok := overrides["userAgent"].(string); ok && v != "" {
		params.UserAgent = v
	}
}

func overrideInt(overrides map[string]any, key string) (int, bool) {
	switch v := overrides[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
