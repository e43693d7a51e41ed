package crawlcontext

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type CrawlContextErrorCause string

const (
	ErrCauseAlreadyFinished CrawlContextErrorCause = "already finished"
)

type CrawlContextError struct {
	Message string
	Cause   CrawlContextErrorCause
}

func (e *CrawlContextError) Error() string {
	return fmt.Sprintf("crawlcontext error: %s: %s", e.Cause, e.Message)
}

// CrawlContextError is always fatal: it means a caller mutated a frozen
// context, which is a programming error in the caller, not something to
// retry.
func (e *CrawlContextError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func mapCrawlContextErrorToMetadataCause(err *CrawlContextError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseAlreadyFinished:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
