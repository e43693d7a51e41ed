package operations

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rohmanhakim/newscrawl/internal/sequencerunner"
	"gopkg.in/yaml.v3"
)

/*
SequenceConfigLoader normalizes a declarative sequence file (JSON or
YAML, per the configured sequence directory) into the sequencerunner.Sequence
shape, resolving @token references in the sequence's startUrl and
sharedOverrides and in each step's startUrl and overrides before
SequenceRunner ever sees the sequence.
*/

// SequenceConfigLoader loads sequence files from a directory.
type SequenceConfigLoader struct {
	tokens []sequencerunner.TokenResolver
}

func NewSequenceConfigLoader(tokens []sequencerunner.TokenResolver) *SequenceConfigLoader {
	return &SequenceConfigLoader{tokens: tokens}
}

// Load parses path (.json, .yaml, or .yml), validates its structure,
// and resolves the startUrl and override tokens of the sequence and its steps.
func (l *SequenceConfigLoader) Load(path string) (sequencerunner.Sequence, *OperationsError) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sequencerunner.Sequence{}, &OperationsError{Message: err.Error(), Cause: ErrCauseInvalidSequenceFile}
	}

	var dto sequenceFileDTO
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &dto); err != nil {
			return sequencerunner.Sequence{}, &OperationsError{Message: err.Error(), Cause: ErrCauseInvalidSequenceFile}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &dto); err != nil {
			return sequencerunner.Sequence{}, &OperationsError{Message: err.Error(), Cause: ErrCauseInvalidSequenceFile}
		}
	default:
		return sequencerunner.Sequence{}, &OperationsError{Message: path, Cause: ErrCauseInvalidSequenceFile}
	}

	return l.normalize(dto)
}

func (l *SequenceConfigLoader) normalize(dto sequenceFileDTO) (sequencerunner.Sequence, *OperationsError) {
	if dto.Version != supportedSequenceVersion {
		return sequencerunner.Sequence{}, &OperationsError{Message: dto.Version, Cause: ErrCauseInvalidSequenceFile}
	}
	if len(dto.Steps) == 0 {
		return sequencerunner.Sequence{}, &OperationsError{Message: "steps cannot be empty", Cause: ErrCauseInvalidSequenceFile}
	}

	defaultStartURL, serr := l.resolveString(dto.StartURL)
	if serr != nil {
		return sequencerunner.Sequence{}, serr
	}

	sharedOverrides, serr := l.resolveOverrides(dto.SharedOverrides)
	if serr != nil {
		return sequencerunner.Sequence{}, serr
	}

	steps := make([]sequencerunner.Step, 0, len(dto.Steps))
	for i, stepDTO := range dto.Steps {
		if stepDTO.Operation == "" {
			return sequencerunner.Sequence{}, &OperationsError{Message: "step missing operation", Cause: ErrCauseInvalidSequenceFile}
		}

		startURL := defaultStartURL
		if stepDTO.StartURL != "" {
			resolved, serr := l.resolveString(stepDTO.StartURL)
			if serr != nil {
				return sequencerunner.Sequence{}, serr
			}
			startURL = resolved
		}

		overrides, serr := l.resolveOverrides(stepDTO.Overrides)
		if serr != nil {
			return sequencerunner.Sequence{}, serr
		}

		steps = append(steps, sequencerunner.Step{
			ID:        strconv.Itoa(i),
			Operation: stepDTO.Operation,
			StartURL:  startURL,
			Overrides: overrides,
		})
	}

	return sequencerunner.Sequence{
		Steps:           steps,
		SharedOverrides: sharedOverrides,
		ContinueOnError: dto.ContinueOnError,
	}, nil
}

// resolveOverrides resolves every "@namespace.key" string value in
// overrides; non-token values pass through unchanged.
func (l *SequenceConfigLoader) resolveOverrides(overrides map[string]any) (map[string]any, *OperationsError) {
	if len(overrides) == 0 {
		return overrides, nil
	}
	resolved := make(map[string]any, len(overrides))
	for k, v := range overrides {
		str, ok := v.(string)
		if !ok || !strings.HasPrefix(str, "@") {
			resolved[k] = v
			continue
		}
		value, err := l.resolveToken(str)
		if err != nil {
			return nil, err
		}
		resolved[k] = value
	}
	return resolved, nil
}

// resolveString resolves s if it is a "@namespace.key" token,
// otherwise returns it unchanged.
func (l *SequenceConfigLoader) resolveString(s string) (string, *OperationsError) {
	if s == "" || !strings.HasPrefix(s, "@") {
		return s, nil
	}
	value, err := l.resolveToken(s)
	if err != nil {
		return "", err
	}
	str, ok := value.(string)
	if !ok {
		return "", &OperationsError{Message: s, Cause: ErrCauseUnresolvedToken}
	}
	return str, nil
}

func (l *SequenceConfigLoader) resolveToken(token string) (any, *OperationsError) {
	body := strings.TrimPrefix(token, "@")
	dot := strings.IndexByte(body, '.')
	if dot < 0 {
		return nil, &OperationsError{Message: token, Cause: ErrCauseUnresolvedToken}
	}
	namespace, key := body[:dot], body[dot+1:]
	for _, resolver := range l.tokens {
		if value, ok := resolver.Resolve(namespace, key); ok {
			return value, nil
		}
	}
	return nil, &OperationsError{Message: token, Cause: ErrCauseUnresolvedToken}
}
