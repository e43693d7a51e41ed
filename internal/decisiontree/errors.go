package decisiontree

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type DecisionTreeErrorCause string

const (
	ErrCauseUnknownCategory  DecisionTreeErrorCause = "unknown category"
	ErrCauseInvalidCondition DecisionTreeErrorCause = "invalid condition"
	ErrCauseInvalidRegex     DecisionTreeErrorCause = "invalid regex pattern"
)

type DecisionTreeError struct {
	Message string
	Cause   DecisionTreeErrorCause
}

func (e *DecisionTreeError) Error() string {
	return fmt.Sprintf("decisiontree error: %s: %s", e.Cause, e.Message)
}

func (e *DecisionTreeError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func mapDecisionTreeErrorToMetadataCause(err *DecisionTreeError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnknownCategory, ErrCauseInvalidCondition, ErrCauseInvalidRegex:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
