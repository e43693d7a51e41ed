package fetchpipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/fetchpipeline"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/retrycoordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline() *fetchpipeline.Pipeline {
	ctx := crawlcontext.New(nil)
	coord := retrycoordinator.NewCoordinator(retrycoordinator.DefaultParams(), ctx)
	sink := metadata.NewRecorder("test-worker")
	return fetchpipeline.NewPipeline(fetchpipeline.DefaultParams(), coord, &sink, nil)
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Etag", `"abc"`)
		w.Write([]byte("<html>hi</html>"))
	}))
	defer server.Close()

	p := newPipeline()
	target, _ := url.Parse(server.URL)
	param := fetchpipeline.NewFetchParam(*target, "newscrawl-test", 0, nil, nil)

	result, verdict, err := p.Fetch(context.Background(), param)
	require.Nil(t, err)
	require.Nil(t, verdict)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.NotEmpty(t, result.ContentSha256)
	assert.False(t, result.NotModified)
}

func TestFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	p := newPipeline()
	target, _ := url.Parse(server.URL)
	prior := []byte("<html>cached</html>")
	param := fetchpipeline.NewFetchParam(*target, "newscrawl-test", 0, &fetchpipeline.CacheValidators{ETag: `"abc"`}, prior)

	result, verdict, err := p.Fetch(context.Background(), param)
	require.Nil(t, err)
	require.Nil(t, verdict)
	assert.True(t, result.NotModified)
	assert.Equal(t, prior, result.Body)
}

func TestFetchServerErrorProducesRetryVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := newPipeline()
	target, _ := url.Parse(server.URL)
	param := fetchpipeline.NewFetchParam(*target, "newscrawl-test", 0, nil, nil)

	_, verdict, err := p.Fetch(context.Background(), param)
	require.NotNil(t, err)
	require.NotNil(t, verdict)
	assert.Equal(t, retrycoordinator.ActionRetry, verdict.Action)
}

func TestFetchForbiddenIsAbandoned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := newPipeline()
	target, _ := url.Parse(server.URL)
	param := fetchpipeline.NewFetchParam(*target, "newscrawl-test", 0, nil, nil)

	_, verdict, err := p.Fetch(context.Background(), param)
	require.NotNil(t, err)
	require.NotNil(t, verdict)
	assert.Equal(t, retrycoordinator.ActionAbandon, verdict.Action)
}
