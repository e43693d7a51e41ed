package fetchpipeline

import (
	"net/url"
	"time"
)

/*
FetchPipeline - HTTP acquisition. Waits for a politeness token, issues
the request with conditional headers and bounded timeouts, and hands
the caller a FetchResult or a RetryVerdict describing what to do next.
FetchPipeline never decides whether a URL should be fetched (that is
UrlDecisionOrchestrator's job) and never persists content (that is
ContentStore's job); it only performs the HTTP exchange.
*/

// CacheValidators are the conditional-request headers carried forward
// from a prior fetch of the same URL.
type CacheValidators struct {
	ETag         string
	LastModified string
}

// FetchParam is everything FetchPipeline needs to issue one request.
type FetchParam struct {
	URL        url.URL
	UserAgent  string
	Depth      int
	Host       string
	Validators *CacheValidators
	PriorBody  []byte
}

func NewFetchParam(target url.URL, userAgent string, depth int, validators *CacheValidators, priorBody []byte) FetchParam {
	return FetchParam{
		URL:        target,
		UserAgent:  userAgent,
		Depth:      depth,
		Host:       target.Hostname(),
		Validators: validators,
		PriorBody:  priorBody,
	}
}

// FetchResult is the outcome of a successful HTTP exchange (including
// a 304).
type FetchResult struct {
	URL             url.URL
	HTTPStatus      int
	Headers         map[string]string
	Body            []byte
	FinalURL        url.URL
	ElapsedMs       int64
	BytesDownloaded int64
	Validators      CacheValidators
	ContentSha256   string
	NotModified     bool
}

// Params configures timeouts and the conditional-header policy.
type Params struct {
	RequestTimeout    time.Duration
	MaxTokenWait      time.Duration
	MaxRedirects      int
}

func DefaultParams() Params {
	return Params{
		RequestTimeout: 15 * time.Second,
		MaxTokenWait:   10 * time.Second,
		MaxRedirects:   10,
	}
}
