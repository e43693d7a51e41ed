package fetchpipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/retrycoordinator"
	"github.com/rohmanhakim/newscrawl/pkg/hashutil"
)

// EventEmitter is the narrow telemetry surface FetchPipeline needs;
// internal/telemetry.Bus satisfies it, as does crawlcontext's own
// emitter, without either package importing this one.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

// Pipeline performs the HTTP exchange for one QueueEntry: politeness
// token wait, conditional headers, bounded timeouts, content hashing.
// It delegates failure handling to RetryCoordinator rather than
// retrying itself.
type Pipeline struct {
	params   Params
	client   *http.Client
	coord    *retrycoordinator.Coordinator
	sink     metadata.MetadataSink
	emitter  EventEmitter
}

// NewPipeline constructs a Pipeline with a reused keep-alive transport.
func NewPipeline(params Params, coord *retrycoordinator.Coordinator, sink metadata.MetadataSink, emitter EventEmitter) *Pipeline {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Pipeline{
		params: params,
		client: &http.Client{
			Timeout:   params.RequestTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= params.MaxRedirects {
					return fmt.Errorf("redirect limit exceeded")
				}
				return nil
			},
		},
		coord:   coord,
		sink:    sink,
		emitter: emitter,
	}
}

// Fetch performs steps 1-7 of the fetch pipeline. On success it
// returns a FetchResult and a nil verdict. On failure it returns a
// RetryVerdict from RetryCoordinator describing what the caller
// (QueueManager) should do next, and a non-nil error; when ctx ends
// while waiting for a politeness token, the verdict is nil.
func (p *Pipeline) Fetch(ctx context.Context, param FetchParam) (FetchResult, *retrycoordinator.RetryVerdict, *FetchPipelineError) {
	// Step 1: wait for a politeness token.
	wait := p.coord.GetTokenWaitTime(param.Host)
	if wait > p.params.MaxTokenWait {
		verdict := retrycoordinator.RetryVerdict{
			ShouldRetry: true,
			Action:      retrycoordinator.ActionDefer,
			Delay:       wait,
			Reason:      "token-wait-exceeded",
		}
		return FetchResult{}, &verdict, &FetchPipelineError{
			Message:   "token wait exceeds configured maximum",
			Retryable: true,
			Cause:     ErrCauseTokenWaitExceeded,
		}
	}
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return FetchResult{}, nil, &FetchPipelineError{Message: ctx.Err().Error(), Retryable: true, Cause: ErrCauseTimeout}
		}
	}
	p.coord.AcquireToken(param.Host)

	// Step 2
	p.emitter.Emit("request:start", map[string]any{"url": param.URL.String()})

	startTime := time.Now()
	result, fetchErr := p.performFetch(ctx, param)
	duration := time.Since(startTime)

	if fetchErr != nil {
		p.sink.RecordFetch(param.URL.String(), 0, duration, "", 0, param.Depth)
		p.sink.RecordError(
			time.Now(), "fetchpipeline", "Fetch",
			mapFetchPipelineErrorToMetadataCause(fetchErr), fetchErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, param.URL.String())},
		)

		// Step 7: consult RetryCoordinator.
		failureInput := toFailureInput(fetchErr)
		verdict := p.coord.HandleFailure(param.Host, failureInput, 1)
		return FetchResult{}, &verdict, fetchErr
	}

	p.coord.RecordSuccess(param.Host)
	p.sink.RecordFetch(param.URL.String(), result.HTTPStatus, duration, result.Headers["Content-Type"], 0, param.Depth)
	p.emitter.Emit("request:done", map[string]any{"url": param.URL.String(), "status": result.HTTPStatus})

	return result, nil, nil
}

// performFetch issues the HTTP request with conditional headers and
// classifies the response. Steps 3-6.
func (p *Pipeline) performFetch(ctx context.Context, param FetchParam) (FetchResult, *FetchPipelineError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, param.URL.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchPipelineError{Message: err.Error(), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	// Step 3: conditional headers.
	req.Header.Set("User-Agent", param.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	if param.Validators != nil {
		if param.Validators.ETag != "" {
			req.Header.Set("If-None-Match", param.Validators.ETag)
		}
		if param.Validators.LastModified != "" {
			req.Header.Set("If-Modified-Since", param.Validators.LastModified)
		}
	}

	startTime := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		cause := ErrCauseNetworkFailure
		if strings.Contains(err.Error(), "Timeout") || strings.Contains(err.Error(), "deadline exceeded") {
			cause = ErrCauseTimeout
		}
		return FetchResult{}, &FetchPipelineError{Message: err.Error(), Retryable: true, Cause: cause}
	}
	defer resp.Body.Close()

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	// Step 5: 304.
	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{
			URL:         param.URL,
			HTTPStatus:  resp.StatusCode,
			Headers:     headers,
			Body:        param.PriorBody,
			FinalURL:    *resp.Request.URL,
			ElapsedMs:   time.Since(startTime).Milliseconds(),
			NotModified: true,
			Validators: CacheValidators{
				ETag:         headers["Etag"],
				LastModified: headers["Last-Modified"],
			},
		}, nil
	}

	if resp.StatusCode >= 400 {
		return FetchResult{}, classifyStatusError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchPipelineError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}

	sha, err := hashutil.HashBytes(body, hashutil.HashAlgoSHA256)
	if err != nil {
		return FetchResult{}, &FetchPipelineError{Message: err.Error(), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	return FetchResult{
		URL:             param.URL,
		HTTPStatus:      resp.StatusCode,
		Headers:         headers,
		Body:            body,
		FinalURL:        *resp.Request.URL,
		ElapsedMs:       time.Since(startTime).Milliseconds(),
		BytesDownloaded: int64(len(body)),
		ContentSha256:   sha,
		Validators: CacheValidators{
			ETag:         headers["Etag"],
			LastModified: headers["Last-Modified"],
		},
	}, nil
}

func classifyStatusError(status int) *FetchPipelineError {
	switch {
	case status >= 500:
		return &FetchPipelineError{Message: fmt.Sprintf("server error: %d", status), Retryable: true, Cause: FetchPipelineErrorCause(fmt.Sprintf("http-%d", status))}
	case status == http.StatusTooManyRequests:
		return &FetchPipelineError{Message: "rate limited", Retryable: true, Cause: FetchPipelineErrorCause("http-429")}
	default:
		return &FetchPipelineError{Message: fmt.Sprintf("client error: %d", status), Retryable: false, Cause: FetchPipelineErrorCause(fmt.Sprintf("http-%d", status))}
	}
}

// toFailureInput reconstructs the retrycoordinator.FailureInput this
// pipeline-level error corresponds to, so a single classification
// table (retrycoordinator.ClassifyError) governs retry policy.
func toFailureInput(err *FetchPipelineError) retrycoordinator.FailureInput {
	in := retrycoordinator.FailureInput{}
	switch {
	case err.Cause == ErrCauseTimeout:
		in.Timeout = true
	case strings.HasPrefix(string(err.Cause), "http-"):
		fmt.Sscanf(string(err.Cause), "http-%d", &in.HTTPStatus)
	case err.Cause == ErrCauseNetworkFailure:
		in.Timeout = true
	}
	return in
}
