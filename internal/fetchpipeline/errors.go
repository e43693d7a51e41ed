package fetchpipeline

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type FetchPipelineErrorCause string

const (
	ErrCauseNetworkFailure        FetchPipelineErrorCause = "network issues"
	ErrCauseTimeout               FetchPipelineErrorCause = "timeout"
	ErrCauseReadResponseBodyError FetchPipelineErrorCause = "failed to read response body"
	ErrCauseRedirectLimitExceeded FetchPipelineErrorCause = "reached redirect limit"
	ErrCauseTokenWaitExceeded     FetchPipelineErrorCause = "token wait exceeded"
)

type FetchPipelineError struct {
	Message   string
	Retryable bool
	Cause     FetchPipelineErrorCause
}

func (e *FetchPipelineError) Error() string {
	return fmt.Sprintf("fetchpipeline error: %s: %s", e.Cause, e.Message)
}

func (e *FetchPipelineError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapFetchPipelineErrorToMetadataCause(err *FetchPipelineError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseNetworkFailure:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
