package decisiontree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segmentDelimiters are the boundary characters recognized by
// matchType=segment, exposed verbatim per the spec's open question:
// hyphen and slash are both treated as segment boundaries, so the
// pattern "long-read" matches "/the-long-read/x" but not "/thelongreadx".
const segmentDelimiters = "/-?#"

// Classifier evaluates JSON-configured category trees against a
// PageContext. It holds no mutable state beyond the trees themselves,
// which are set once at construction and never mutated afterward —
// evaluation is a pure function of (tree, context).
type Classifier struct {
	trees map[string]*Node
}

// NewClassifier builds a Classifier from a set of named category trees.
func NewClassifier(trees map[string]*Node) *Classifier {
	copied := make(map[string]*Node, len(trees))
	for k, v := range trees {
		copied[k] = v
	}
	return &Classifier{trees: copied}
}

// Evaluate runs categoryId's tree against ctx.
func (c *Classifier) Evaluate(categoryID string, ctx PageContext) (Classification, *DecisionTreeError) {
	root, ok := c.trees[categoryID]
	if !ok {
		return Classification{}, &DecisionTreeError{Message: categoryID, Cause: ErrCauseUnknownCategory}
	}

	var path []AuditStep
	node := root
	for !node.isLeaf() {
		result, summary, derr := evaluateCondition(*node.Condition, ctx)
		if derr != nil {
			return Classification{}, derr
		}
		branch := "no"
		next := node.No
		if result {
			branch = "yes"
			next = node.Yes
		}
		path = append(path, AuditStep{
			NodeID:           node.ID,
			ConditionSummary: summary,
			Result:           result,
			Branch:           branch,
		})
		if next == nil {
			return Classification{}, &DecisionTreeError{
				Message: fmt.Sprintf("node %s missing %s branch", node.ID, branch),
				Cause:   ErrCauseInvalidCondition,
			}
		}
		node = next
	}

	return Classification{
		CategoryID:  categoryID,
		Matched:     node.Result == ResultMatch,
		Confidence:  node.Confidence,
		Reason:      node.Reason,
		EncodedPath: encodePath(path),
		Path:        path,
	}, nil
}

// EvaluateAll runs every configured category's tree against ctx.
func (c *Classifier) EvaluateAll(ctx PageContext) ([]Classification, *DecisionTreeError) {
	out := make([]Classification, 0, len(c.trees))
	for categoryID := range c.trees {
		cls, err := c.Evaluate(categoryID, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, cls)
	}
	return out, nil
}

// GetMatches returns only the classifications whose Matched is true.
func (c *Classifier) GetMatches(ctx PageContext) ([]Classification, *DecisionTreeError) {
	all, err := c.EvaluateAll(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Classification, 0, len(all))
	for _, cls := range all {
		if cls.Matched {
			matches = append(matches, cls)
		}
	}
	return matches, nil
}

// encodePath renders the audit trail as the compact form
// "nodeIdPrefixStripped:Y|N, ...". Because it is a pure function of
// path, replaying the same path (as produced by replaying the tree
// against the same context) always yields the same encoded string.
func encodePath(path []AuditStep) string {
	parts := make([]string, 0, len(path))
	for _, step := range path {
		mark := "N"
		if step.Result {
			mark = "Y"
		}
		parts = append(parts, fmt.Sprintf("%s:%s", step.NodeID, mark))
	}
	return strings.Join(parts, "|")
}

func evaluateCondition(cond Condition, ctx PageContext) (bool, string, *DecisionTreeError) {
	switch cond.Type {
	case ConditionURLMatches:
		return evaluateURLMatches(cond, ctx)
	case ConditionTextContains:
		return evaluateTextContains(cond, ctx)
	case ConditionCompare:
		return evaluateCompare(cond, ctx)
	case ConditionCompound:
		return evaluateCompound(cond, ctx)
	case ConditionFlag:
		val := ctx.Flags[cond.FlagName]
		return val, fmt.Sprintf("flag(%s)", cond.FlagName), nil
	default:
		return false, "", &DecisionTreeError{Message: string(cond.Type), Cause: ErrCauseInvalidCondition}
	}
}

func evaluateURLMatches(cond Condition, ctx PageContext) (bool, string, *DecisionTreeError) {
	summary := fmt.Sprintf("url_matches(%s,%v)", cond.MatchType, cond.Patterns)
	for _, pattern := range cond.Patterns {
		matched, err := matchURL(ctx.URL, pattern, cond.MatchType)
		if err != nil {
			return false, summary, err
		}
		if matched {
			return true, summary, nil
		}
	}
	return false, summary, nil
}

func matchURL(url, pattern string, matchType MatchType) (bool, *DecisionTreeError) {
	switch matchType {
	case MatchContains:
		return strings.Contains(url, pattern), nil
	case MatchRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, &DecisionTreeError{Message: pattern, Cause: ErrCauseInvalidRegex}
		}
		return re.MatchString(url), nil
	case MatchSegment, "":
		return matchesSegment(url, pattern), nil
	default:
		return false, &DecisionTreeError{Message: string(matchType), Cause: ErrCauseInvalidCondition}
	}
}

// matchesSegment reports whether pattern occurs in url as a complete
// path segment, bounded on both sides by a character in
// segmentDelimiters or by the string's start/end.
func matchesSegment(url, pattern string) bool {
	if pattern == "" {
		return false
	}
	start := 0
	for {
		idx := strings.Index(url[start:], pattern)
		if idx == -1 {
			return false
		}
		absIdx := start + idx
		before := absIdx == 0 || strings.ContainsRune(segmentDelimiters, rune(url[absIdx-1]))
		endIdx := absIdx + len(pattern)
		after := endIdx == len(url) || strings.ContainsRune(segmentDelimiters, rune(url[endIdx]))
		if before && after {
			return true
		}
		start = absIdx + 1
	}
}

func evaluateTextContains(cond Condition, ctx PageContext) (bool, string, *DecisionTreeError) {
	summary := fmt.Sprintf("text_contains(%s,%v)", cond.Field, cond.Patterns)
	var haystack string
	switch cond.Field {
	case FieldTitle:
		haystack = ctx.Title
	case FieldDescription:
		haystack = ctx.Description
	case FieldURL:
		haystack = ctx.URL
	default:
		return false, summary, &DecisionTreeError{Message: string(cond.Field), Cause: ErrCauseInvalidCondition}
	}
	lower := strings.ToLower(haystack)
	for _, pattern := range cond.Patterns {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true, summary, nil
		}
	}
	return false, summary, nil
}

func evaluateCompare(cond Condition, ctx PageContext) (bool, string, *DecisionTreeError) {
	summary := fmt.Sprintf("compare(%s,%s)", cond.LHSField, cond.Operator)

	lhs, ok := resolveNumericOrString(cond.LHSField, ctx)
	if !ok {
		return false, summary, nil
	}

	var rhs any
	if cond.RHSDynamic != nil {
		dynVal, ok := ctx.Numeric[cond.RHSDynamic.Field]
		if !ok {
			return false, summary, nil
		}
		rhs = dynVal * cond.RHSDynamic.Multiplier
	} else {
		rhs = cond.RHSLiteral
	}

	return compareValues(lhs, rhs, cond.Operator), summary, nil
}

func resolveNumericOrString(field string, ctx PageContext) (any, bool) {
	if v, ok := ctx.Numeric[field]; ok {
		return v, true
	}
	if v, ok := ctx.Flags[field]; ok {
		return v, true
	}
	switch field {
	case "url":
		return ctx.URL, true
	case "title":
		return ctx.Title, true
	case "description":
		return ctx.Description, true
	}
	return nil, false
}

func compareValues(lhs, rhs any, op CompareOperator) bool {
	lhsF, lhsOK := toFloat(lhs)
	rhsF, rhsOK := toFloat(rhs)
	if lhsOK && rhsOK {
		switch op {
		case OpEq:
			return lhsF == rhsF
		case OpNe:
			return lhsF != rhsF
		case OpGt:
			return lhsF > rhsF
		case OpGte:
			return lhsF >= rhsF
		case OpLt:
			return lhsF < rhsF
		case OpLte:
			return lhsF <= rhsF
		}
		return false
	}

	lhsS := fmt.Sprintf("%v", lhs)
	rhsS := fmt.Sprintf("%v", rhs)
	switch op {
	case OpEq:
		return lhsS == rhsS
	case OpNe:
		return lhsS != rhsS
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func evaluateCompound(cond Condition, ctx PageContext) (bool, string, *DecisionTreeError) {
	summary := fmt.Sprintf("compound(%s)", cond.CompoundOp)
	switch cond.CompoundOp {
	case OpAnd:
		for _, child := range cond.Children {
			result, _, err := evaluateCondition(child, ctx)
			if err != nil {
				return false, summary, err
			}
			if !result {
				return false, summary, nil
			}
		}
		return true, summary, nil
	case OpOr:
		for _, child := range cond.Children {
			result, _, err := evaluateCondition(child, ctx)
			if err != nil {
				return false, summary, err
			}
			if result {
				return true, summary, nil
			}
		}
		return false, summary, nil
	default:
		return false, summary, &DecisionTreeError{Message: string(cond.CompoundOp), Cause: ErrCauseInvalidCondition}
	}
}
