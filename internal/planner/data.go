package planner

import "time"

// Goal names a crawl objective a CrawlPlan is built to satisfy.
type GoalType string

const (
	GoalDiscoverArticles    GoalType = "discover-articles"
	GoalMapStructure        GoalType = "map-structure"
	GoalRefreshContent      GoalType = "refresh-content"
	GoalGeographicCoverage  GoalType = "geographic-coverage"
)

type Goal struct {
	Type   GoalType
	Target int
}

type Constraints struct {
	MaxPages  int
	MaxDepth  int
	MaxTimeMs int64
}

// StepAction is the action a planned Step represents.
type StepAction string

const (
	StepExplore StepAction = "explore"
	StepCollect StepAction = "collect"
	StepRefresh StepAction = "refresh"
	StepProbe   StepAction = "probe"
)

type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

type StepResult struct {
	Value         float64
	ExpectedValue float64
	ArticlesFound int
	ElapsedMs     int64
}

// Step is one unit of a CrawlPlan: a prioritized, pattern-scoped unit
// of exploration or collection work. Distinct from sequencerunner's
// operation-catalog Step.
type Step struct {
	ID            string
	Action        StepAction
	URLPattern    string
	ExpectedValue float64
	Priority      int
	Status        StepStatus
	Result        *StepResult
}

type CrawlPlan struct {
	Goals       []Goal
	Constraints Constraints
	Priorities  []string
	Seeds       []string
	Steps       []Step
	Recomputed  bool
}

// FeedbackInput is what a caller passes to Planner.Feedback after a Step finishes.
type FeedbackInput struct {
	StepIdx int
	Result  StepResult
}

// Profile is the persisted-history summary Planner queries before
// generating a plan for a host.
type Profile struct {
	Host         string
	PageCount    int
	HubTypeCount int
	Complexity   float64
}

// PatternEntry is one pattern inside a host's planning_heuristics row.
type PatternEntry struct {
	URLPattern string     `json:"url_pattern"`
	ActionType StepAction `json:"action_type"`
	Confidence float64    `json:"confidence"`
	SampleSize int        `json:"sample_size"`
}

// HeuristicRecord mirrors one planning_heuristics row: the persisted
// seed patterns for a host plus the sizing hints they imply.
type HeuristicRecord struct {
	Host            string
	Patterns        []PatternEntry
	Confidence      float64
	SampleSize      int
	AvgLookahead    float64
	BranchingFactor float64
	UpdatedAt       time.Time
}

// PatternPerformance mirrors one pattern_performance row: aggregate
// outcomes for a URL pattern across every host it has appeared on.
type PatternPerformance struct {
	Pattern      string
	SuccessCount int
	TotalCount   int
	AvgValue     float64
	LastUsed     *time.Time
}

func (p PatternPerformance) SuccessRate() float64 {
	if p.TotalCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.TotalCount)
}

type Params struct {
	AdaptiveSizingEnabled bool
	CrossDomainSharing    bool
	ReplanEvery           int
	ReplanMinGap          time.Duration
	MaxBacktracksBeforeReplan int
	TransferConfidencePenalty float64
	MaxTransferTargets    int
}

const ReplanDeviationThreshold = 0.4

func DefaultParams() Params {
	return Params{
		AdaptiveSizingEnabled:     true,
		CrossDomainSharing:        true,
		ReplanEvery:               100,
		ReplanMinGap:              60 * time.Second,
		MaxBacktracksBeforeReplan: 5,
		TransferConfidencePenalty: 0.7,
		MaxTransferTargets:        5,
	}
}
