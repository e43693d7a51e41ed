package sequencerunner_test

import (
	"errors"
	"testing"

	"github.com/rohmanhakim/newscrawl/internal/sequencerunner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	ops map[string]sequencerunner.OperationFunc
}

func (s *stubResolver) Resolve(operation string) (sequencerunner.OperationFunc, bool) {
	fn, ok := s.ops[operation]
	return fn, ok
}

type stubTokens struct {
	values map[string]any
}

func (s *stubTokens) Resolve(namespace, key string) (any, bool) {
	v, ok := s.values[namespace+"."+key]
	return v, ok
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	var order []string
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"EnsureCountryHubs": func(startURL string, overrides map[string]any) (any, error) {
			order = append(order, "EnsureCountryHubs")
			return "ok", nil
		},
		"ExploreCountryHubs": func(startURL string, overrides map[string]any) (any, error) {
			order = append(order, "ExploreCountryHubs")
			return "ok", nil
		},
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{
			{ID: "1", Operation: "EnsureCountryHubs"},
			{ID: "2", Operation: "ExploreCountryHubs"},
		},
	})

	assert.Equal(t, []string{"EnsureCountryHubs", "ExploreCountryHubs"}, order)
	assert.Len(t, result.Outcomes, 2)
	assert.True(t, result.Outcomes[0].OK)
	assert.True(t, result.Outcomes[1].OK)
}

func TestRunStopsOnErrorWithoutContinueOnError(t *testing.T) {
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Fails":  func(string, map[string]any) (any, error) { return nil, errors.New("boom") },
		"Never":  func(string, map[string]any) (any, error) { return "unreachable", nil },
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{
			{ID: "1", Operation: "Fails"},
			{ID: "2", Operation: "Never"},
		},
	})

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].OK)
}

func TestRunContinuesOnErrorWhenSet(t *testing.T) {
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Fails": func(string, map[string]any) (any, error) { return nil, errors.New("boom") },
		"Ok":    func(string, map[string]any) (any, error) { return "done", nil },
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	result := runner.Run(sequencerunner.Sequence{
		ContinueOnError: true,
		Steps: []sequencerunner.Step{
			{ID: "1", Operation: "Fails"},
			{ID: "2", Operation: "Ok"},
		},
	})

	require.Len(t, result.Outcomes, 2)
	assert.False(t, result.Outcomes[0].OK)
	assert.True(t, result.Outcomes[1].OK)
}

func TestRunUnknownOperationFails(t *testing.T) {
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{{ID: "1", Operation: "DoesNotExist"}},
	})

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].OK)
	assert.Contains(t, result.Outcomes[0].Error, "unknown-operation")
}

func TestRunResolvesTokensBeforeExecution(t *testing.T) {
	var seenOverrides map[string]any
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Op": func(startURL string, overrides map[string]any) (any, error) {
			seenOverrides = overrides
			return nil, nil
		},
	}}
	tokens := &stubTokens{values: map[string]any{"config.maxDepth": 5}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, []sequencerunner.TokenResolver{tokens}, nil)

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{{ID: "1", Operation: "Op", Overrides: map[string]any{"maxDepth": "@config.maxDepth"}}},
	})

	require.True(t, result.Outcomes[0].OK)
	assert.Equal(t, 5, seenOverrides["maxDepth"])
}

func TestRunUnresolvedTokenFailsStep(t *testing.T) {
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Op": func(string, map[string]any) (any, error) { return nil, nil },
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{{ID: "1", Operation: "Op", Overrides: map[string]any{"maxDepth": "@config.maxDepth"}}},
	})

	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].OK)
	assert.Contains(t, result.Outcomes[0].Error, "unresolved-token")
}

func TestStepOverridesWinOverSharedOverrides(t *testing.T) {
	var seen map[string]any
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Op": func(startURL string, overrides map[string]any) (any, error) {
			seen = overrides
			return nil, nil
		},
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)

	runner.Run(sequencerunner.Sequence{
		SharedOverrides: map[string]any{"maxDepth": 3, "userAgent": "shared"},
		Steps:           []sequencerunner.Step{{ID: "1", Operation: "Op", Overrides: map[string]any{"maxDepth": 9}}},
	})

	assert.Equal(t, 9, seen["maxDepth"])
	assert.Equal(t, "shared", seen["userAgent"])
}

func TestAbortStopsBeforeNextStep(t *testing.T) {
	resolver := &stubResolver{ops: map[string]sequencerunner.OperationFunc{
		"Op": func(string, map[string]any) (any, error) { return "ok", nil },
	}}
	runner := sequencerunner.NewRunner(sequencerunner.DefaultParams(), resolver, nil, nil)
	runner.Abort()

	result := runner.Run(sequencerunner.Sequence{
		Steps: []sequencerunner.Step{{ID: "1", Operation: "Op"}},
	})

	assert.True(t, result.Aborted)
	require.Len(t, result.Outcomes, 1)
	assert.False(t, result.Outcomes[0].OK)
}
