package planner

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

/*
Planner (C6) has two responsibilities: generate a CrawlPlan for a host
from its persisted history, and absorb per-step feedback to reprioritize
or replan while a crawl is running. learnHeuristics persists what was
observed back into planning_heuristics/pattern_performance so the next
crawl of the same (or a structurally similar) host starts ahead.
*/

type Planner struct {
	db     *sql.DB
	params Params

	mu            sync.Mutex
	lastReplanAt  time.Time
	stepsDone     int
	backtracks    int
	ratioSum      float64
	ratioCount    int
}

func NewPlanner(db *sql.DB, params Params) *Planner {
	return &Planner{db: db, params: params}
}

// Profile queries persisted history for host and computes its
// complexity score: log10(pageCount+10) * hubTypeCount / 5.
func (p *Planner) Profile(host string) (Profile, *PlannerError) {
	var pageCount int
	err := p.db.QueryRow(`SELECT COUNT(*) FROM urls WHERE host = ?`, host).Scan(&pageCount)
	if err != nil {
		return Profile{}, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
	}

	hubTypeCount, err := p.distinctSectionCount(host)
	if err != nil {
		return Profile{}, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
	}

	complexity := math.Log10(float64(pageCount)+10) * float64(hubTypeCount) / 5
	return Profile{Host: host, PageCount: pageCount, HubTypeCount: hubTypeCount, Complexity: complexity}, nil
}

// distinctSectionCount counts distinct first-path-segments ("sections")
// seen for host, a proxy for hub-type variety.
func (p *Planner) distinctSectionCount(host string) (int, error) {
	rows, err := p.db.Query(`SELECT url FROM urls WHERE host = ?`, host)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	sections := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return 0, err
		}
		sections[firstPathSegment(u)] = struct{}{}
	}
	return len(sections), rows.Err()
}

func firstPathSegment(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	path := rawURL
	if idx >= 0 {
		path = rawURL[idx+3:]
		if slash := strings.IndexByte(path, '/'); slash >= 0 {
			path = path[slash:]
		} else {
			path = "/"
		}
	}
	path = strings.TrimPrefix(path, "/")
	if q := strings.IndexAny(path, "?#"); q >= 0 {
		path = path[:q]
	}
	if seg := strings.IndexByte(path, '/'); seg >= 0 {
		return path[:seg]
	}
	return path
}

// adaptiveSizing computes lookahead/branches per the profile's page
// count, hub-type count, and complexity, when adaptive sizing is
// enabled; otherwise returns conservative fixed defaults.
func (p *Planner) adaptiveSizing(profile Profile) (lookahead, branches int) {
	if !p.params.AdaptiveSizingEnabled {
		return 3, 5
	}
	switch {
	case profile.PageCount < 1000:
		lookahead = 3
	case profile.PageCount < 10000:
		lookahead = 5
	default:
		lookahead = 7
	}

	switch {
	case profile.HubTypeCount < 5 || profile.Complexity < 3:
		branches = 5
	case profile.HubTypeCount < 15 || profile.Complexity < 8:
		branches = 10
	default:
		branches = 15
	}
	return lookahead, branches
}

// RecommendedSizing exposes the profile-driven lookahead/branching
// recommendation for host, for callers (e.g. a @playbook token
// resolver) that want the Planner's sizing judgment without running a
// full Plan.
func (p *Planner) RecommendedSizing(host string) (lookahead, branches int, perr *PlannerError) {
	profile, perr := p.Profile(host)
	if perr != nil {
		return 0, 0, perr
	}
	lookahead, branches = p.adaptiveSizing(profile)
	return lookahead, branches, nil
}

// Plan generates a CrawlPlan for host: profile, adaptive sizing,
// pattern lookup (local or transferred), then lookahead*branches
// prioritized Steps.
func (p *Planner) Plan(host string, goals []Goal, constraints Constraints) (CrawlPlan, *PlannerError) {
	profile, perr := p.Profile(host)
	if perr != nil {
		return CrawlPlan{}, perr
	}

	lookahead, branches := p.adaptiveSizing(profile)

	heuristic, found, perr := p.lookupHeuristic(host)
	if perr != nil {
		return CrawlPlan{}, perr
	}
	if !found {
		transferred, terr := p.transferFromSimilarHost(host)
		if terr != nil {
			return CrawlPlan{}, terr
		}
		heuristic = transferred
	}

	steps := p.emitSteps(heuristic, lookahead, branches)
	return CrawlPlan{
		Goals:       goals,
		Constraints: constraints,
		Steps:       steps,
	}, nil
}

func (p *Planner) lookupHeuristic(host string) (HeuristicRecord, bool, *PlannerError) {
	var patternsJSON string
	var rec HeuristicRecord
	var updatedAt string
	err := p.db.QueryRow(
		`SELECT patterns, confidence, sample_size, avg_lookahead, branching_factor, updated_at
		 FROM planning_heuristics WHERE domain = ?`, host,
	).Scan(&patternsJSON, &rec.Confidence, &rec.SampleSize, &rec.AvgLookahead, &rec.BranchingFactor, &updatedAt)
	if err == sql.ErrNoRows {
		return HeuristicRecord{}, false, nil
	}
	if err != nil {
		return HeuristicRecord{}, false, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
	}
	rec.Host = host
	if patternsJSON != "" {
		if err := json.Unmarshal([]byte(patternsJSON), &rec.Patterns); err != nil {
			return HeuristicRecord{}, false, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
		}
	}
	return rec, true, nil
}

// transferFromSimilarHost looks for a host with no heuristic record of
// its own yet, finds a structurally similar host (shared section-path
// tokens) with a record, and copies its top patterns at a 0.7x
// confidence penalty.
func (p *Planner) transferFromSimilarHost(host string) (HeuristicRecord, *PlannerError) {
	rows, err := p.db.Query(`SELECT domain, patterns, sample_size FROM planning_heuristics`)
	if err != nil {
		return HeuristicRecord{}, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
	}
	defer rows.Close()

	var best HeuristicRecord
	var bestScore int
	for rows.Next() {
		var candidateHost, patternsJSON string
		var sampleSize int
		if err := rows.Scan(&candidateHost, &patternsJSON, &sampleSize); err != nil {
			return HeuristicRecord{}, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
		}
		score := sharedTokenCount(host, candidateHost)
		if score == 0 || score <= bestScore {
			continue
		}
		var patterns []PatternEntry
		if patternsJSON != "" {
			if err := json.Unmarshal([]byte(patternsJSON), &patterns); err != nil {
				continue
			}
		}
		bestScore = score
		best = HeuristicRecord{Host: candidateHost, Patterns: patterns, SampleSize: sampleSize}
	}
	if err := rows.Err(); err != nil {
		return HeuristicRecord{}, &PlannerError{Message: err.Error(), Cause: ErrCauseProfileQueryFailed}
	}
	if bestScore == 0 {
		return HeuristicRecord{}, nil
	}

	out := HeuristicRecord{Host: host}
	for _, pattern := range best.Patterns {
		out.Patterns = append(out.Patterns, PatternEntry{
			URLPattern: pattern.URLPattern,
			ActionType: pattern.ActionType,
			Confidence: pattern.Confidence * p.params.TransferConfidencePenalty,
			SampleSize: 0,
		})
	}
	return out, nil
}

func sharedTokenCount(a, b string) int {
	tokensA := strings.Split(a, ".")
	tokensB := make(map[string]struct{})
	for _, t := range strings.Split(b, ".") {
		tokensB[t] = struct{}{}
	}
	count := 0
	for _, t := range tokensA {
		if _, ok := tokensB[t]; ok {
			count++
		}
	}
	return count
}

// emitSteps produces lookahead*branches Steps: the heuristic's
// patterns (weighted by confidence*sampleSize) seed the highest
// priorities, then explore/probe fill the rest.
func (p *Planner) emitSteps(heuristic HeuristicRecord, lookahead, branches int) []Step {
	total := lookahead * branches
	steps := make([]Step, 0, total)

	sorted := append([]PatternEntry(nil), heuristic.Patterns...)
	sortPatternsByWeight(sorted)

	for i := 0; i < total; i++ {
		if i < len(sorted) {
			pattern := sorted[i]
			steps = append(steps, Step{
				ID:            fmt.Sprintf("step-%d", i),
				Action:        pattern.ActionType,
				URLPattern:    pattern.URLPattern,
				ExpectedValue: pattern.Confidence * float64(pattern.SampleSize+1),
				Priority:      total - i,
				Status:        StepPending,
			})
			continue
		}
		action := StepExplore
		if i%3 == 2 {
			action = StepProbe
		} else if i%3 == 1 {
			action = StepCollect
		}
		steps = append(steps, Step{
			ID:            fmt.Sprintf("step-%d", i),
			Action:        action,
			ExpectedValue: 1,
			Priority:      total - i,
			Status:        StepPending,
		})
	}
	return steps
}

func sortPatternsByWeight(patterns []PatternEntry) {
	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0; j-- {
			wj := patterns[j].Confidence * float64(patterns[j].SampleSize)
			wj1 := patterns[j-1].Confidence * float64(patterns[j-1].SampleSize)
			if wj <= wj1 {
				break
			}
			patterns[j], patterns[j-1] = patterns[j-1], patterns[j]
		}
	}
}

// Feedback absorbs one completed Step's outcome: reprioritizes similar
// future steps in plan and reports whether a replan should now occur.
func (p *Planner) Feedback(plan *CrawlPlan, input FeedbackInput) (shouldReplan bool) {
	if input.StepIdx < 0 || input.StepIdx >= len(plan.Steps) {
		return false
	}
	step := &plan.Steps[input.StepIdx]
	step.Result = &input.Result
	step.Status = StepDone

	ratio := 1.0
	if input.Result.ExpectedValue > 0 {
		ratio = input.Result.Value / input.Result.ExpectedValue
	}

	if p.params.AdaptiveSizingEnabled {
		delta := 0
		if ratio > 1.5 {
			delta = 20
		} else if ratio < 0.5 {
			delta = -15
		}
		if delta != 0 {
			for i := range plan.Steps {
				if i == input.StepIdx {
					continue
				}
				if plan.Steps[i].Action == step.Action && plan.Steps[i].URLPattern == step.URLPattern {
					plan.Steps[i].Priority += delta
				}
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepsDone++
	p.ratioSum += ratio
	p.ratioCount++
	if step.Status == StepFailed {
		p.backtracks++
	}

	meanRatio := p.ratioSum / float64(p.ratioCount)
	deviates := math.Abs(meanRatio-1.0) > ReplanDeviationThreshold
	dueByCount := p.stepsDone%p.params.ReplanEvery == 0
	dueByBacktracks := p.backtracks > p.params.MaxBacktracksBeforeReplan
	gapOK := time.Since(p.lastReplanAt) >= p.params.ReplanMinGap

	if (dueByCount || deviates || dueByBacktracks) && gapOK {
		p.lastReplanAt = time.Now()
		return true
	}
	return false
}

// Replan generates a fresh plan for the remaining (non-done) steps of
// plan and merges it in: completed steps are preserved untouched.
func (p *Planner) Replan(host string, plan CrawlPlan) (CrawlPlan, *PlannerError) {
	remainingGoals := plan.Goals
	fresh, perr := p.Plan(host, remainingGoals, plan.Constraints)
	if perr != nil {
		return CrawlPlan{}, perr
	}

	merged := CrawlPlan{
		Goals:       plan.Goals,
		Constraints: plan.Constraints,
		Priorities:  plan.Priorities,
		Seeds:       plan.Seeds,
		Recomputed:  true,
	}
	for _, step := range plan.Steps {
		if step.Status == StepDone {
			merged.Steps = append(merged.Steps, step)
		}
	}
	merged.Steps = append(merged.Steps, fresh.Steps...)
	return merged, nil
}

// Outcome is one host-level observation learnHeuristics persists.
type Outcome struct {
	URLPattern  string
	ActionType  StepAction
	Success     bool
	Value       float64
}

// LearnHeuristics persists the observed pattern outcomes for host, and,
// if cross-domain sharing is enabled, transfers them (at a confidence
// penalty, zero sample size) to up to MaxTransferTargets structurally
// similar hosts that have no heuristic record yet.
func (p *Planner) LearnHeuristics(host string, outcomes []Outcome) *PlannerError {
	if err := p.persistPatternPerformance(outcomes); err != nil {
		return err
	}

	patterns := aggregatePatterns(outcomes)
	if err := p.persistHeuristic(host, patterns); err != nil {
		return err
	}

	if !p.params.CrossDomainSharing {
		return nil
	}
	return p.transferToSimilarHosts(host, patterns)
}

func aggregatePatterns(outcomes []Outcome) []PatternEntry {
	type agg struct {
		action   StepAction
		success  int
		total    int
		valueSum float64
	}
	byPattern := make(map[string]*agg)
	order := make([]string, 0)
	for _, o := range outcomes {
		a, ok := byPattern[o.URLPattern]
		if !ok {
			a = &agg{action: o.ActionType}
			byPattern[o.URLPattern] = a
			order = append(order, o.URLPattern)
		}
		a.total++
		if o.Success {
			a.success++
		}
		a.valueSum += o.Value
	}

	patterns := make([]PatternEntry, 0, len(order))
	for _, pattern := range order {
		a := byPattern[pattern]
		confidence := float64(a.success) / float64(a.total)
		patterns = append(patterns, PatternEntry{
			URLPattern: pattern,
			ActionType: a.action,
			Confidence: confidence,
			SampleSize: a.total,
		})
	}
	return patterns
}

func (p *Planner) persistPatternPerformance(outcomes []Outcome) *PlannerError {
	now := time.Now()
	for _, o := range outcomes {
		successInc := 0
		if o.Success {
			successInc = 1
		}
		_, err := p.db.Exec(`
			INSERT INTO pattern_performance (pattern, success_count, total_count, avg_value, last_used)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(pattern) DO UPDATE SET
				success_count = success_count + ?,
				total_count = total_count + 1,
				avg_value = (avg_value * total_count + ?) / (total_count + 1),
				last_used = ?
		`, o.URLPattern, successInc, o.Value, now, successInc, o.Value, now)
		if err != nil {
			return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
		}
	}
	return nil
}

func (p *Planner) persistHeuristic(host string, patterns []PatternEntry) *PlannerError {
	patternsJSON, err := json.Marshal(patterns)
	if err != nil {
		return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
	}

	sampleSize := 0
	confidenceSum := 0.0
	for _, pattern := range patterns {
		sampleSize += pattern.SampleSize
		confidenceSum += pattern.Confidence
	}
	confidence := 0.0
	if len(patterns) > 0 {
		confidence = confidenceSum / float64(len(patterns))
	}

	_, execErr := p.db.Exec(`
		INSERT INTO planning_heuristics (domain, patterns, confidence, sample_size, avg_lookahead, branching_factor, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT(domain) DO UPDATE SET
			patterns = excluded.patterns,
			confidence = excluded.confidence,
			sample_size = excluded.sample_size,
			updated_at = excluded.updated_at
	`, host, string(patternsJSON), confidence, sampleSize, time.Now())
	if execErr != nil {
		return &PlannerError{Message: execErr.Error(), Cause: ErrCausePersistHeuristicFailed}
	}
	return nil
}

func (p *Planner) transferToSimilarHosts(sourceHost string, patterns []PatternEntry) *PlannerError {
	rows, err := p.db.Query(`SELECT DISTINCT host FROM urls WHERE host != ?`, sourceHost)
	if err != nil {
		return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
		}
		if sharedTokenCount(sourceHost, h) > 0 {
			candidates = append(candidates, h)
		}
	}
	if err := rows.Err(); err != nil {
		return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
	}

	transferred := 0
	for _, target := range candidates {
		if transferred >= p.params.MaxTransferTargets {
			break
		}
		_, _, perr := p.lookupHeuristic(target)
		if perr != nil {
			return perr
		}
		var exists bool
		if err := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM planning_heuristics WHERE domain = ?)`, target).Scan(&exists); err != nil {
			return &PlannerError{Message: err.Error(), Cause: ErrCausePersistHeuristicFailed}
		}
		if exists {
			continue
		}

		transferredPatterns := make([]PatternEntry, len(patterns))
		for i, pattern := range patterns {
			transferredPatterns[i] = PatternEntry{
				URLPattern: pattern.URLPattern,
				ActionType: pattern.ActionType,
				Confidence: pattern.Confidence * p.params.TransferConfidencePenalty,
				SampleSize: 0,
			}
		}
		if perr := p.persistHeuristic(target, transferredPatterns); perr != nil {
			return perr
		}
		transferred++
	}
	return nil
}
