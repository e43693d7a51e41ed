package decision

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type DecisionErrorCause string

const (
	ErrCauseRobotsLookupFailed DecisionErrorCause = "robots lookup failed"
)

type DecisionError struct {
	Message string
	Cause   DecisionErrorCause
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision error: %s: %s", e.Cause, e.Message)
}

func (e *DecisionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapDecisionErrorToMetadataCause(err *DecisionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseRobotsLookupFailed:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
