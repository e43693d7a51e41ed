package eventhandler_test

import (
	"testing"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/crawlcontext"
	"github.com/rohmanhakim/newscrawl/internal/eventhandler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	events []string
}

func (r *recordingEmitter) Emit(event string, _ map[string]any) {
	r.events = append(r.events, event)
}

func TestHandleLineMalformedIsRecordedNotBroadcast(t *testing.T) {
	ctx := crawlcontext.New(nil)
	emitter := &recordingEmitter{}
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), ctx, emitter)

	err := h.HandleLine("not-a-structured-line")
	require.NotNil(t, err)
	assert.Equal(t, eventhandler.ErrCauseStructuredParseError, err.Cause)
	assert.Empty(t, emitter.events)
	assert.Equal(t, 1, h.ProblemCount("structured-parse-error"))
}

func TestHandleLineProgressThrottles(t *testing.T) {
	ctx := crawlcontext.New(nil)
	emitter := &recordingEmitter{}
	params := eventhandler.DefaultParams()
	params.ProgressThrottle = 50 * time.Millisecond
	h := eventhandler.NewHandler(params, ctx, emitter)

	line := `PROGRESS|{"percent": 10, "current": 1, "total": 10, "message": "go"}`
	require.Nil(t, h.HandleLine(line))
	require.Nil(t, h.HandleLine(line))

	assert.Equal(t, 1, len(emitter.events), "second PROGRESS within the throttle window must not broadcast")

	time.Sleep(60 * time.Millisecond)
	require.Nil(t, h.HandleLine(line))
	assert.Equal(t, 2, len(emitter.events))
}

func TestHandleLineMilestoneIsBoundedAndRecorded(t *testing.T) {
	ctx := crawlcontext.New(nil)
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), ctx, nil)

	for i := 0; i < 20; i++ {
		require.Nil(t, h.HandleLine(`MILESTONE|{"kind": "hub-found", "message": "x"}`))
	}

	assert.LessOrEqual(t, len(h.Milestones("hub-found")), 12)
}

func TestHandleLineProblemIncrementsCounter(t *testing.T) {
	ctx := crawlcontext.New(nil)
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), ctx, nil)

	require.Nil(t, h.HandleLine(`PROBLEM|{"kind": "fetch-failed", "severity": "warn", "message": "timeout"}`))
	require.Nil(t, h.HandleLine(`PROBLEM|{"kind": "fetch-failed", "severity": "warn", "message": "timeout"}`))

	assert.Equal(t, 2, h.ProblemCount("fetch-failed"))
}

func TestHandleLineQueueTallies(t *testing.T) {
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), nil, nil)

	require.Nil(t, h.HandleLine(`QUEUE|{"operation": "enqueue", "url": "https://a.test/1"}`))
	require.Nil(t, h.HandleLine(`QUEUE|{"operation": "dequeue", "url": "https://a.test/1"}`))
	require.Nil(t, h.HandleLine(`QUEUE|{"operation": "complete", "url": "https://a.test/1"}`))

	tally := h.QueueTally()
	assert.Equal(t, int64(1), tally.Enqueued)
	assert.Equal(t, int64(1), tally.Dequeued)
	assert.Equal(t, int64(1), tally.Completed)
}

func TestHandleLineTelemetryForwardsVerbatim(t *testing.T) {
	emitter := &recordingEmitter{}
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), nil, emitter)

	require.Nil(t, h.HandleLine(`TELEMETRY|{"kind": "pages-per-minute", "value": 12.5, "unit": "ppm"}`))
	assert.Equal(t, []string{"telemetry"}, emitter.events)
}

func TestHandleLineUnknownKindIsMalformed(t *testing.T) {
	h := eventhandler.NewHandler(eventhandler.DefaultParams(), nil, nil)
	err := h.HandleLine(`BOGUS|{}`)
	require.NotNil(t, err)
	assert.Equal(t, eventhandler.ErrCauseStructuredParseError, err.Cause)
}
