package crawlloop

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type CrawlLoopErrorCause string

const (
	ErrCauseInitStageFailed CrawlLoopErrorCause = "init-stage-failed"
)

type CrawlLoopError struct {
	Message string
	Cause   CrawlLoopErrorCause
}

func (e *CrawlLoopError) Error() string {
	return fmt.Sprintf("crawlloop error: %s: %s", e.Cause, e.Message)
}

func (e *CrawlLoopError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func mapCrawlLoopErrorToMetadataCause(err *CrawlLoopError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseInitStageFailed:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
