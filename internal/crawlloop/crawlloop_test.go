package crawlloop_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/rohmanhakim/newscrawl/internal/crawlloop"
	"github.com/rohmanhakim/newscrawl/internal/decisiontree"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/planner"
	"github.com/rohmanhakim/newscrawl/internal/robots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allowAllRobot is a Robot that never disallows anything, so tests
// exercise queue/fetch/decision wiring without a real robots.txt fetch.
type allowAllRobot struct{}

func (allowAllRobot) Init(string) {}
func (allowAllRobot) Decide(target url.URL) (robots.Decision, *robots.RobotsError) {
	return robots.Decision{Allowed: true}, nil
}

// recordingEmitter captures every emitted event name in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T) *contentstore.Store {
	t.Helper()
	db, err := contentstore.Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return contentstore.NewStore(db, contentstore.DefaultParams())
}

func newTestPlanner(t *testing.T) *planner.Planner {
	t.Helper()
	db, err := contentstore.Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return planner.NewPlanner(db, planner.DefaultParams())
}

func startSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Home</title></head><body>
			<a href="/article-1">one</a>
			<a href="/article-2">two</a>
		</body></html>`))
	})
	mux.HandleFunc("/article-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Article One</title></head><body>no links here</body></html>`))
	})
	mux.HandleFunc("/article-2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Article Two</title></head><body>no links here</body></html>`))
	})
	return httptest.NewServer(mux)
}

func newLoopParams(t *testing.T, site *httptest.Server) crawlloop.Params {
	t.Helper()
	startURL, err := url.Parse(site.URL)
	require.Nil(t, err)
	params := crawlloop.DefaultParams(*startURL)
	params.ConcurrentWorkers = 2
	params.ProgressEveryN = 1
	params.ProgressEvery = time.Millisecond
	return params
}

func TestRunCrawlsSeedAndDiscoveredLinksThenTerminates(t *testing.T) {
	site := startSite(t)
	defer site.Close()

	emitter := &recordingEmitter{}
	store := newTestStore(t)
	plan := newTestPlanner(t)
	sink := metadata.NewRecorder("test-crawl")

	loop := crawlloop.New(newLoopParams(t, site), emitter, allowAllRobot{}, store, plan, nil, &sink)

	done := make(chan crawlloop.RunResult, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case result := <-done:
		assert.False(t, result.Aborted)
		require.Len(t, result.InitStages, 1)
		assert.Equal(t, crawlloop.InitStatusCompleted, result.InitStages[0].Status)
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate")
	}

	stats := loop.Context().Stats()
	assert.GreaterOrEqual(t, stats.Visited, 3)
	assert.True(t, emitter.has("sequence:start"))
	assert.True(t, emitter.has("sequence:complete"))
}

func TestRunClassifiesPagesWhenClassifierMatches(t *testing.T) {
	site := startSite(t)
	defer site.Close()

	tree := &decisiontree.Node{
		ID:     "root",
		Result: decisiontree.ResultMatch,
	}
	classifier := decisiontree.NewClassifier(map[string]*decisiontree.Node{"article": tree})

	emitter := &recordingEmitter{}
	store := newTestStore(t)
	plan := newTestPlanner(t)
	sink := metadata.NewRecorder("test-crawl")

	loop := crawlloop.New(newLoopParams(t, site), emitter, allowAllRobot{}, store, plan, classifier, &sink)

	done := make(chan crawlloop.RunResult, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate")
	}

	stats := loop.Context().Stats()
	assert.Greater(t, stats.Articles, 0)
}

func TestAbortStopsWorkersPromptly(t *testing.T) {
	site := startSite(t)
	defer site.Close()

	emitter := &recordingEmitter{}
	store := newTestStore(t)
	plan := newTestPlanner(t)
	sink := metadata.NewRecorder("test-crawl")

	loop := crawlloop.New(newLoopParams(t, site), emitter, allowAllRobot{}, store, plan, nil, &sink)
	loop.Abort()

	done := make(chan crawlloop.RunResult, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case result := <-done:
		assert.True(t, result.Aborted)
	case <-time.After(10 * time.Second):
		t.Fatal("aborted crawl did not terminate")
	}
}

func TestPauseResumeAllowsCrawlToCompleteAfterResuming(t *testing.T) {
	site := startSite(t)
	defer site.Close()

	emitter := &recordingEmitter{}
	store := newTestStore(t)
	plan := newTestPlanner(t)
	sink := metadata.NewRecorder("test-crawl")

	loop := crawlloop.New(newLoopParams(t, site), emitter, allowAllRobot{}, store, plan, nil, &sink)
	loop.Pause()

	done := make(chan crawlloop.RunResult, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("crawl finished while paused")
	case <-time.After(100 * time.Millisecond):
	}

	loop.Resume()

	select {
	case result := <-done:
		assert.False(t, result.Aborted)
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not terminate after resume")
	}
}
