package eventhandler

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
)

// EventEmitter is the narrow telemetry surface Handler broadcasts
// through; internal/telemetry.Bus satisfies it.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

// Handler parses "KIND|json" lines and fans them out to CrawlContext
// (state) and an EventEmitter (broadcast).
type Handler struct {
	params  Params
	ctx     *crawlcontext.CrawlContext
	emitter EventEmitter

	mu             sync.Mutex
	lastProgressAt time.Time
	milestoneLog   map[string][]MilestonePayload
	problemCounts  map[string]int
	queueTally     QueueTally
}

func NewHandler(params Params, ctx *crawlcontext.CrawlContext, emitter EventEmitter) *Handler {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Handler{
		params:       params,
		ctx:          ctx,
		emitter:      emitter,
		milestoneLog: make(map[string][]MilestonePayload),
		problemCounts: make(map[string]int),
	}
}

// HandleLine parses and dispatches one structured line. Malformed
// lines are recorded as a structured-parse-error problem and are
// never broadcast.
func (h *Handler) HandleLine(line string) *EventHandlerError {
	kind, payload, ok := splitLine(line)
	if !ok {
		h.recordMalformed(line)
		return &EventHandlerError{Message: line, Cause: ErrCauseStructuredParseError}
	}

	switch kind {
	case KindProgress:
		return h.handleProgress(payload)
	case KindMilestone:
		return h.handleMilestone(payload)
	case KindTelemetry:
		return h.handleTelemetry(payload)
	case KindProblem:
		return h.handleProblem(payload)
	case KindQueue:
		return h.handleQueue(payload)
	default:
		h.recordMalformed(line)
		return &EventHandlerError{Message: line, Cause: ErrCauseStructuredParseError}
	}
}

func splitLine(line string) (Kind, string, bool) {
	idx := strings.IndexByte(line, '|')
	if idx < 0 {
		return "", "", false
	}
	return Kind(line[:idx]), line[idx+1:], true
}

func (h *Handler) recordMalformed(line string) {
	h.mu.Lock()
	h.problemCounts["structured-parse-error"]++
	h.mu.Unlock()

	if h.ctx != nil {
		h.ctx.RecordProblem("structured-parse-error", line)
	}
}

func (h *Handler) handleProgress(payload string) *EventHandlerError {
	var p ProgressPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		h.recordMalformed(payload)
		return &EventHandlerError{Message: err.Error(), Cause: ErrCauseStructuredParseError}
	}

	h.mu.Lock()
	throttled := time.Since(h.lastProgressAt) < h.params.ProgressThrottle
	if !throttled {
		h.lastProgressAt = time.Now()
	}
	h.mu.Unlock()

	if throttled {
		return nil
	}
	h.emitter.Emit("progress", progressToMap(p))
	return nil
}

func (h *Handler) handleMilestone(payload string) *EventHandlerError {
	var m MilestonePayload
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		h.recordMalformed(payload)
		return &EventHandlerError{Message: err.Error(), Cause: ErrCauseStructuredParseError}
	}

	h.mu.Lock()
	log := append(h.milestoneLog[m.Kind], m)
	if len(log) > h.params.MaxMilestonesPerKind {
		log = log[len(log)-h.params.MaxMilestonesPerKind:]
	}
	h.milestoneLog[m.Kind] = log
	h.mu.Unlock()

	if h.ctx != nil {
		h.ctx.RecordMilestone(m.Kind, m.Message)
	}
	h.emitter.Emit("milestone", map[string]any{"kind": m.Kind, "message": m.Message, "details": m.Details})
	return nil
}

func (h *Handler) handleTelemetry(payload string) *EventHandlerError {
	var t TelemetryPayload
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		h.recordMalformed(payload)
		return &EventHandlerError{Message: err.Error(), Cause: ErrCauseStructuredParseError}
	}
	h.emitter.Emit("telemetry", map[string]any{"kind": t.Kind, "value": t.Value, "unit": t.Unit, "extras": t.Extras})
	return nil
}

func (h *Handler) handleProblem(payload string) *EventHandlerError {
	var p ProblemPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		h.recordMalformed(payload)
		return &EventHandlerError{Message: err.Error(), Cause: ErrCauseStructuredParseError}
	}

	h.mu.Lock()
	h.problemCounts[p.Kind]++
	h.mu.Unlock()

	if h.ctx != nil {
		h.ctx.RecordProblem(p.Kind, p.Message)
	}
	h.emitter.Emit("problem", map[string]any{"kind": p.Kind, "severity": p.Severity, "message": p.Message, "details": p.Details})
	return nil
}

func (h *Handler) handleQueue(payload string) *EventHandlerError {
	var q QueuePayload
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		h.recordMalformed(payload)
		return &EventHandlerError{Message: err.Error(), Cause: ErrCauseStructuredParseError}
	}

	h.mu.Lock()
	switch q.Operation {
	case QueueEnqueue:
		h.queueTally.Enqueued++
	case QueueDequeue:
		h.queueTally.Dequeued++
	case QueueDefer:
		h.queueTally.Deferred++
	case QueueComplete:
		h.queueTally.Completed++
	}
	h.mu.Unlock()

	h.emitter.Emit("queue", map[string]any{"operation": string(q.Operation), "url": q.URL, "depth": q.Depth})
	return nil
}

// ProblemCount returns how many problems of kind have been recorded:
// PROBLEM lines of that kind, plus malformed lines under
// "structured-parse-error".
func (h *Handler) ProblemCount(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.problemCounts[kind]
}

// Milestones returns a copy of kind's bounded milestone log.
func (h *Handler) Milestones(kind string) []MilestonePayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]MilestonePayload, len(h.milestoneLog[kind]))
	copy(out, h.milestoneLog[kind])
	return out
}

// QueueTally returns a copy of the QUEUE operation tally.
func (h *Handler) QueueTally() QueueTally {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queueTally
}

func progressToMap(p ProgressPayload) map[string]any {
	return map[string]any{
		"percent":    p.Percent,
		"current":    p.Current,
		"total":      p.Total,
		"message":    p.Message,
		"gazetteer":  p.Gazetteer,
	}
}
