package sequencerunner

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

/*
SequenceRunner (C7) executes an ordered list of operation-catalog
Steps. Token resolution ("@playbook.*", "@config.*", "@cli.*") is
delegated to pluggable TokenResolvers; operation execution is
delegated to a pluggable OperationResolver (OperationsFacade in
production, a stub in tests).
*/

// OperationFunc executes one resolved operation and returns its result.
type OperationFunc func(startURL string, overrides map[string]any) (any, error)

// OperationResolver maps an operation name to an OperationFunc.
type OperationResolver interface {
	Resolve(operation string) (OperationFunc, bool)
}

// TokenResolver resolves one token namespace ("playbook", "config",
// "cli") to a value.
type TokenResolver interface {
	Resolve(namespace, key string) (any, bool)
}

// EventEmitter is the narrow telemetry surface Runner broadcasts
// through; internal/telemetry.Bus satisfies it.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]any) {}

type Runner struct {
	params    Params
	resolver  OperationResolver
	tokens    []TokenResolver
	emitter   EventEmitter

	mu      sync.Mutex
	paused  bool
	aborted atomic.Bool
}

func NewRunner(params Params, resolver OperationResolver, tokens []TokenResolver, emitter EventEmitter) *Runner {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Runner{params: params, resolver: resolver, tokens: tokens, emitter: emitter}
}

// Pause suspends the runner between steps; Resume releases it. Abort
// does not interrupt a running step: the runner checks for it before
// each step, records that step as failed with ErrCauseAborted, and returns.
func (r *Runner) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

func (r *Runner) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

func (r *Runner) Abort() {
	r.aborted.Store(true)
}

func (r *Runner) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Run executes sequence's steps in order, merging sharedOverrides with
// each step's own overrides (the step's own values win), resolving
// tokens before execution, and stopping at the first error unless
// continueOnError is set.
func (r *Runner) Run(sequence Sequence) SequenceResult {
	r.emitter.Emit("sequence:start", map[string]any{"stepCount": len(sequence.Steps)})

	var result SequenceResult
	for _, step := range sequence.Steps {
		for r.isPaused() {
			time.Sleep(r.params.PausePollInterval)
		}

		if r.aborted.Load() {
			result.Aborted = true
			result.Outcomes = append(result.Outcomes, StepOutcome{
				OK: false, StepID: step.ID, Operation: step.Operation, Error: string(ErrCauseAborted),
			})
			r.emitter.Emit("sequence:complete", map[string]any{"aborted": true})
			return result
		}

		outcome := r.runStep(step, sequence.SharedOverrides)
		result.Outcomes = append(result.Outcomes, outcome)

		if !outcome.OK && !sequence.ContinueOnError {
			break
		}
	}

	r.emitter.Emit("sequence:complete", map[string]any{"aborted": result.Aborted})
	return result
}

func (r *Runner) runStep(step Step, shared map[string]any) StepOutcome {
	r.emitter.Emit("step:start", map[string]any{"stepId": step.ID, "operation": step.Operation})
	started := time.Now()

	merged := mergeOverrides(shared, step.Overrides)
	resolved, rerr := r.resolveTokens(merged)
	if rerr != nil {
		outcome := StepOutcome{OK: false, StepID: step.ID, Operation: step.Operation, Error: rerr.Error(), ElapsedMs: elapsedMs(started)}
		r.emitter.Emit("step:error", map[string]any{"stepId": step.ID, "error": rerr.Error()})
		return outcome
	}

	fn, ok := r.resolver.Resolve(step.Operation)
	if !ok {
		err := &SequenceRunnerError{Message: step.Operation, Cause: ErrCauseUnknownOperation}
		outcome := StepOutcome{OK: false, StepID: step.ID, Operation: step.Operation, Error: err.Error(), ElapsedMs: elapsedMs(started)}
		r.emitter.Emit("step:error", map[string]any{"stepId": step.ID, "error": err.Error()})
		return outcome
	}

	value, err := fn(step.StartURL, resolved)
	elapsed := elapsedMs(started)
	if err != nil {
		r.emitter.Emit("step:error", map[string]any{"stepId": step.ID, "error": err.Error()})
		return StepOutcome{OK: false, StepID: step.ID, Operation: step.Operation, Error: err.Error(), ElapsedMs: elapsed}
	}

	r.emitter.Emit("step:complete", map[string]any{"stepId": step.ID, "elapsedMs": elapsed})
	return StepOutcome{OK: true, StepID: step.ID, Operation: step.Operation, Result: value, ElapsedMs: elapsed}
}

func elapsedMs(started time.Time) int64 {
	return time.Since(started).Milliseconds()
}

func mergeOverrides(shared, stepOverrides map[string]any) map[string]any {
	merged := make(map[string]any, len(shared)+len(stepOverrides))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range stepOverrides {
		merged[k] = v
	}
	return merged
}

// resolveTokens walks overrides' string values and replaces any
// "@namespace.key" reference with its resolver's value. Values that
// are not token references pass through unchanged.
func (r *Runner) resolveTokens(overrides map[string]any) (map[string]any, *SequenceRunnerError) {
	resolved := make(map[string]any, len(overrides))
	for k, v := range overrides {
		str, ok := v.(string)
		if !ok || !strings.HasPrefix(str, "@") {
			resolved[k] = v
			continue
		}

		namespace, key, ok := splitToken(str)
		if !ok {
			return nil, &SequenceRunnerError{Message: str, Cause: ErrCauseUnresolvedToken}
		}

		value, found := r.lookupToken(namespace, key)
		if !found {
			return nil, &SequenceRunnerError{Message: str, Cause: ErrCauseUnresolvedToken}
		}
		resolved[k] = value
	}
	return resolved, nil
}

func splitToken(token string) (namespace, key string, ok bool) {
	body := strings.TrimPrefix(token, "@")
	dot := strings.IndexByte(body, '.')
	if dot < 0 {
		return "", "", false
	}
	return body[:dot], body[dot+1:], true
}

func (r *Runner) lookupToken(namespace, key string) (any, bool) {
	for _, resolver := range r.tokens {
		if value, ok := resolver.Resolve(namespace, key); ok {
			return value, true
		}
	}
	return nil, false
}
