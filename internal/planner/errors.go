package planner

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type PlannerErrorCause string

const (
	ErrCauseProfileQueryFailed    PlannerErrorCause = "profile-query-failed"
	ErrCausePersistHeuristicFailed PlannerErrorCause = "persist-heuristic-failed"
)

type PlannerError struct {
	Message string
	Cause   PlannerErrorCause
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("planner error: %s: %s", e.Cause, e.Message)
}

func (e *PlannerError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapPlannerErrorToMetadataCause(err *PlannerError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseProfileQueryFailed, ErrCausePersistHeuristicFailed:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
