package operations

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type OperationsErrorCause string

const (
	ErrCauseUnknownOperation    OperationsErrorCause = "unknown-operation"
	ErrCauseInvalidSequenceFile OperationsErrorCause = "invalid-sequence-file"
	ErrCauseMissingStartURL     OperationsErrorCause = "missing-start-url"
	ErrCauseUnresolvedToken     OperationsErrorCause = "unresolved-token"
)

type OperationsError struct {
	Message string
	Cause   OperationsErrorCause
}

func (e *OperationsError) Error() string {
	return fmt.Sprintf("operations error: %s: %s", e.Cause, e.Message)
}

func (e *OperationsError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func mapOperationsErrorToMetadataCause(err *OperationsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseInvalidSequenceFile, ErrCauseUnresolvedToken:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
