package queue

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type QueueErrorCause string

const (
	ErrCauseEntryNotFound QueueErrorCause = "entry not found"
)

type QueueError struct {
	Message string
	Cause   QueueErrorCause
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue error: %s: %s", e.Cause, e.Message)
}

func (e *QueueError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapQueueErrorToMetadataCause(err *QueueError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEntryNotFound:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
