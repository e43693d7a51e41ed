package eventhandler

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type EventHandlerErrorCause string

const (
	ErrCauseStructuredParseError EventHandlerErrorCause = "structured-parse-error"
)

type EventHandlerError struct {
	Message string
	Cause   EventHandlerErrorCause
}

func (e *EventHandlerError) Error() string {
	return fmt.Sprintf("eventhandler error: %s: %s", e.Cause, e.Message)
}

func (e *EventHandlerError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapEventHandlerErrorToMetadataCause(err *EventHandlerError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseStructuredParseError:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
