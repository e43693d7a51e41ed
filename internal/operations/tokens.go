package operations

import (
	"strings"

	"github.com/rohmanhakim/newscrawl/internal/config"
	"github.com/rohmanhakim/newscrawl/internal/planner"
)

// ConfigTokenResolver resolves "@config.<key>" against the static,
// already-loaded configuration for this invocation.
type ConfigTokenResolver struct {
	cfg config.Config
}

func NewConfigTokenResolver(cfg config.Config) ConfigTokenResolver {
	return ConfigTokenResolver{cfg: cfg}
}

func (r ConfigTokenResolver) Resolve(namespace, key string) (any, bool) {
	if namespace != "config" {
		return nil, false
	}
	switch key {
	case "maxDepth":
		return r.cfg.MaxDepth(), true
	case "maxPages":
		return r.cfg.MaxPages(), true
	case "concurrency":
		return r.cfg.Concurrency(), true
	case "userAgent":
		return r.cfg.UserAgent(), true
	case "requestsPerMinute":
		return r.cfg.RequestsPerMinute(), true
	case "burstSize":
		return r.cfg.BurstSize(), true
	case "sequenceDir":
		return r.cfg.SequenceDir(), true
	default:
		return nil, false
	}
}

// CliTokenResolver resolves "@cli.<key>" against the current
// invocation's parsed flag values.
type CliTokenResolver struct {
	values map[string]any
}

func NewCliTokenResolver(values map[string]any) CliTokenResolver {
	return CliTokenResolver{values: values}
}

func (r CliTokenResolver) Resolve(namespace, key string) (any, bool) {
	if namespace != "cli" {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// PlaybookTokenResolver resolves "@playbook.<host>.<field>" against
// the Planner's learned, host-specific sizing recommendations.
// Supported fields: lookahead, branches.
type PlaybookTokenResolver struct {
	plan *planner.Planner
}

func NewPlaybookTokenResolver(plan *planner.Planner) PlaybookTokenResolver {
	return PlaybookTokenResolver{plan: plan}
}

func (r PlaybookTokenResolver) Resolve(namespace, key string) (any, bool) {
	if namespace != "playbook" || r.plan == nil {
		return nil, false
	}
	dot := strings.LastIndexByte(key, '.')
	if dot < 0 {
		return nil, false
	}
	host, field := key[:dot], key[dot+1:]

	lookahead, branches, perr := r.plan.RecommendedSizing(host)
	if perr != nil {
		return nil, false
	}
	switch field {
	case "lookahead":
		return lookahead, true
	case "branches":
		return branches, true
	default:
		return nil, false
	}
}
