package contentstore

import (
	"fmt"

	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/pkg/failure"
)

type ContentStoreErrorCause string

const (
	ErrCauseDBFailure         ContentStoreErrorCause = "db failure"
	ErrCauseCompressionFailed ContentStoreErrorCause = "compression failed"
	ErrCauseNotFound          ContentStoreErrorCause = "content not found"
	ErrCauseBucketCorrupt     ContentStoreErrorCause = "bucket corrupt"
)

type ContentStoreError struct {
	Message string
	Cause   ContentStoreErrorCause
}

func (e *ContentStoreError) Error() string {
	return fmt.Sprintf("contentstore error: %s: %s", e.Cause, e.Message)
}

func (e *ContentStoreError) Severity() failure.Severity {
	if e.Cause == ErrCauseNotFound {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapContentStoreErrorToMetadataCause(err *ContentStoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDBFailure:
		return metadata.CauseStorageFailure
	case ErrCauseCompressionFailed:
		return metadata.CauseContentInvalid
	case ErrCauseBucketCorrupt:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
