package metadata

import (
	"sync"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the observability port every pipeline package writes
// through. Implementations must be safe for concurrent use and must never
// be consulted to make scheduling, retry, or termination decisions.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// CrawlFinalizer is the narrow capability the scheduler uses to record the
// terminal summary of a crawl, exactly once, after termination has already
// been decided by the scheduler itself.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// Recorder is the default MetadataSink/CrawlFinalizer implementation. It
// keeps an in-memory, mutex-guarded history of everything recorded during
// a crawl for later inspection or export; it never reads its own history
// to make decisions.
type Recorder struct {
	mu sync.Mutex

	workerName string

	fetchEvents []FetchEvent
	errors      []ErrorRecord
	artifacts   []ArtifactRecord
	finalStats  *crawlStats
}

// NewRecorder creates an empty Recorder scoped to workerName. workerName is
// carried for diagnostic labeling only; it is never used in decision logic.
func NewRecorder(workerName string) Recorder {
	return Recorder{workerName: workerName}
}

func (r *Recorder) RecordFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchEvents = append(r.fetchEvents, FetchEvent{
		fetchUrl:    fetchURL,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	})
}

func (r *Recorder) RecordAssetFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fetchEvents = append(r.fetchEvents, FetchEvent{
		fetchUrl:   fetchURL,
		httpStatus: httpStatus,
		duration:   duration,
		retryCount: retryCount,
	})
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errorString,
		observedAt:  observedAt,
		attrs:       attrs,
	})
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifacts = append(r.artifacts, ArtifactRecord{paths: path})
}

// RecordFinalCrawlStats records the terminal crawl summary. It is expected
// to be called exactly once per crawl; subsequent calls overwrite the
// previous summary rather than accumulating, since only the scheduler
// (the sole authority on termination) calls it.
func (r *Recorder) RecordFinalCrawlStats(
	totalPages int,
	totalErrors int,
	totalAssets int,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finalStats = &crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  duration.Milliseconds(),
	}
}

// FetchEventCount returns the number of fetch events recorded so far.
func (r *Recorder) FetchEventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fetchEvents)
}

// ErrorCount returns the number of error records recorded so far.
func (r *Recorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// WorkerName returns the label this Recorder was constructed with.
func (r *Recorder) WorkerName() string {
	return r.workerName
}
