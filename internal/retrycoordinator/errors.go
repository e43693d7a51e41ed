package retrycoordinator

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type RetryCoordinatorErrorCause string

const (
	ErrCauseHostLockedOut RetryCoordinatorErrorCause = "host locked out"
)

type RetryCoordinatorError struct {
	Message string
	Cause   RetryCoordinatorErrorCause
}

func (e *RetryCoordinatorError) Error() string {
	return fmt.Sprintf("retrycoordinator error: %s: %s", e.Cause, e.Message)
}

func (e *RetryCoordinatorError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapRetryCoordinatorErrorToMetadataCause(err *RetryCoordinatorError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseHostLockedOut:
		return metadata.CauseRetryFailure
	default:
		return metadata.CauseUnknown
	}
}
