package operations_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/newscrawl/internal/config"
	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/operations"
	"github.com/rohmanhakim/newscrawl/internal/planner"
	"github.com/rohmanhakim/newscrawl/internal/robots"
	"github.com/rohmanhakim/newscrawl/internal/sequencerunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAllRobot struct{}

func (allowAllRobot) Init(string) {}
func (allowAllRobot) Decide(target url.URL) (robots.Decision, *robots.RobotsError) {
	return robots.Decision{Allowed: true}, nil
}

func newDeps(t *testing.T) operations.Dependencies {
	t.Helper()
	db, err := contentstore.Open(":memory:")
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	store := contentstore.NewStore(db, contentstore.DefaultParams())
	plan := planner.NewPlanner(db, planner.DefaultParams())
	sink := metadata.NewRecorder("test-operations")
	return operations.Dependencies{
		Robot: allowAllRobot{}, Store: store, Plan: plan, MetadataSink: &sink,
	}
}

func buildTestConfig() (config.Config, error) {
	seed, err := url.Parse("https://news.example.com/")
	if err != nil {
		return config.Config{}, err
	}
	return config.WithDefault([]url.URL{*seed}).Build()
}

func startHubSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Hub</title></head><body><a href="/hub/sub">sub</a></body></html>`))
	})
	mux.HandleFunc("/hub/sub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Sub hub</title></head><body>no links</body></html>`))
	})
	return httptest.NewServer(mux)
}

func TestResolveKnownOperationsAll(t *testing.T) {
	facade := operations.NewFacade(operations.DefaultParams(), newDeps(t))
	for _, name := range []operations.OperationName{
		operations.OpEnsureCountryHubs, operations.OpExploreCountryHubs,
		operations.OpCrawlCountryHubHistory, operations.OpCrawlCountryHubsHistory,
		operations.OpFindTopicHubs, operations.OpFindPlaceAndTopicHubs,
	} {
		_, ok := facade.Resolve(string(name))
		assert.True(t, ok, "expected %s to resolve", name)
	}
}

func TestResolveUnknownOperationFails(t *testing.T) {
	facade := operations.NewFacade(operations.DefaultParams(), newDeps(t))
	_, ok := facade.Resolve("NotARealOperation")
	assert.False(t, ok)
}

func TestEnsureCountryHubsReportsReachability(t *testing.T) {
	site := startHubSite(t)
	defer site.Close()

	params := operations.DefaultParams()
	params.HubURLs = []string{site.URL + "/hub", site.URL + "/does-not-exist"}
	facade := operations.NewFacade(params, newDeps(t))

	fn, ok := facade.Resolve(string(operations.OpEnsureCountryHubs))
	require.True(t, ok)

	value, err := fn("", nil)
	require.Nil(t, err)
	result := value.(operations.OperationResult)
	require.Len(t, result.Hubs, 2)
	assert.True(t, result.Hubs[0].Reachable)
}

func TestExploreCountryHubsDiscoversSubHubs(t *testing.T) {
	site := startHubSite(t)
	defer site.Close()

	params := operations.DefaultParams()
	params.HubURLs = []string{site.URL + "/hub"}
	facade := operations.NewFacade(params, newDeps(t))

	fn, ok := facade.Resolve(string(operations.OpExploreCountryHubs))
	require.True(t, ok)

	value, err := fn("", nil)
	require.Nil(t, err)
	result := value.(operations.OperationResult)
	assert.GreaterOrEqual(t, result.Visited, 2)
}

func TestCrawlCountryHubHistoryRequiresStartURL(t *testing.T) {
	facade := operations.NewFacade(operations.DefaultParams(), newDeps(t))
	fn, ok := facade.Resolve(string(operations.OpCrawlCountryHubHistory))
	require.True(t, ok)

	_, err := fn("", nil)
	require.NotNil(t, err)
	opErr, ok := err.(*operations.OperationsError)
	require.True(t, ok)
	assert.Equal(t, operations.ErrCauseMissingStartURL, opErr.Cause)
}

func TestExecuteSequenceRunsOperationsInOrder(t *testing.T) {
	site := startHubSite(t)
	defer site.Close()

	facade := operations.NewFacade(operations.DefaultParams(), newDeps(t))

	sequence := sequencerunner.Sequence{
		Steps: []sequencerunner.Step{
			{ID: "1", Operation: string(operations.OpEnsureCountryHubs), StartURL: site.URL + "/hub"},
			{ID: "2", Operation: string(operations.OpCrawlCountryHubHistory), StartURL: site.URL + "/hub"},
		},
	}

	result := facade.ExecuteSequence(sequence, false, nil)
	require.Len(t, result.Outcomes, 2)
	assert.True(t, result.Outcomes[0].OK)
	assert.True(t, result.Outcomes[1].OK)
}

func TestSequenceConfigLoaderResolvesConfigToken(t *testing.T) {
	cfg, err := buildTestConfig()
	require.Nil(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "seq.yaml")
	content := `
version: "1"
steps:
  - operation: EnsureCountryHubs
    startUrl: "https://news.example.com/hub"
    overrides:
      maxDepth: "@config.maxDepth"
`
	require.Nil(t, os.WriteFile(file, []byte(content), 0o644))

	loader := operations.NewSequenceConfigLoader([]sequencerunner.TokenResolver{operations.NewConfigTokenResolver(cfg)})
	sequence, lerr := loader.Load(file)
	require.Nil(t, lerr)
	require.Len(t, sequence.Steps, 1)
	assert.Equal(t, cfg.MaxDepth(), sequence.Steps[0].Overrides["maxDepth"])
}

func TestSequenceConfigLoaderUnresolvedTokenFails(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "seq.yaml")
	content := `
version: "1"
steps:
  - operation: EnsureCountryHubs
    overrides:
      maxDepth: "@config.doesNotExist"
`
	require.Nil(t, os.WriteFile(file, []byte(content), 0o644))

	loader := operations.NewSequenceConfigLoader(nil)
	_, lerr := loader.Load(file)
	require.NotNil(t, lerr)
	assert.Equal(t, operations.ErrCauseUnresolvedToken, lerr.Cause)
}

func TestSequenceConfigLoaderRejectsEmptySteps(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "seq.yaml")
	require.Nil(t, os.WriteFile(file, []byte("version: \"1\"\nsteps: []\n"), 0o644))

	loader := operations.NewSequenceConfigLoader(nil)
	_, lerr := loader.Load(file)
	require.NotNil(t, lerr)
	assert.Equal(t, operations.ErrCauseInvalidSequenceFile, lerr.Cause)
}
