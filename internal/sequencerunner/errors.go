package sequencerunner

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type SequenceRunnerErrorCause string

const (
	ErrCauseUnresolvedToken   SequenceRunnerErrorCause = "unresolved-token"
	ErrCauseUnknownOperation  SequenceRunnerErrorCause = "unknown-operation"
	ErrCauseAborted           SequenceRunnerErrorCause = "aborted"
)

type SequenceRunnerError struct {
	Message string
	Cause   SequenceRunnerErrorCause
}

func (e *SequenceRunnerError) Error() string {
	return fmt.Sprintf("sequencerunner error: %s: %s", e.Cause, e.Message)
}

func (e *SequenceRunnerError) Severity() failure.Severity {
	if e.Cause == ErrCauseAborted {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapSequenceRunnerErrorToMetadataCause(err *SequenceRunnerError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnresolvedToken, ErrCauseUnknownOperation:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
