package decisiontree

/*
DecisionTree - a JSON-configured boolean decision tree classifier.

Each configured category owns a named tree of Nodes. A Node is either a
leaf (a verdict) or a branch (a Condition plus a yes/no sub-tree).
Evaluation is deterministic and walks nodes in declared order, recording
an audit trail sufficient to replay the exact path taken.
*/

// MatchType selects how url_matches compares a pattern against a path.
type MatchType string

const (
	MatchSegment MatchType = "segment"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// ConditionType names the kind of test a branch node performs.
type ConditionType string

const (
	ConditionURLMatches  ConditionType = "url_matches"
	ConditionTextContains ConditionType = "text_contains"
	ConditionCompare      ConditionType = "compare"
	ConditionCompound     ConditionType = "compound"
	ConditionFlag         ConditionType = "flag"
)

// CompareOperator is the RHS comparison operator for a "compare" node.
type CompareOperator string

const (
	OpEq  CompareOperator = "eq"
	OpNe  CompareOperator = "ne"
	OpGt  CompareOperator = "gt"
	OpGte CompareOperator = "gte"
	OpLt  CompareOperator = "lt"
	OpLte CompareOperator = "lte"
)

// CompoundOperator combines child conditions.
type CompoundOperator string

const (
	OpAnd CompoundOperator = "AND"
	OpOr  CompoundOperator = "OR"
)

// TextField names one of the text fields a text_contains condition can
// inspect on PageContext.
type TextField string

const (
	FieldTitle       TextField = "title"
	FieldDescription TextField = "description"
	FieldURL         TextField = "url"
)

// DynamicRHS lets a compare condition's right-hand side reference
// another PageContext numeric field, scaled by Multiplier, instead of a
// literal.
type DynamicRHS struct {
	Field      string  `json:"field"`
	Multiplier float64 `json:"multiplier"`
}

// Condition is the tagged-union test a branch node evaluates. Only the
// fields relevant to Type are populated; the rest are zero.
type Condition struct {
	Type ConditionType `json:"type"`

	// url_matches
	Patterns  []string  `json:"patterns,omitempty"`
	MatchType MatchType `json:"matchType,omitempty"`

	// text_contains
	Field TextField `json:"field,omitempty"`

	// compare
	Operator   CompareOperator `json:"operator,omitempty"`
	LHSField   string          `json:"lhsField,omitempty"`
	RHSLiteral any             `json:"rhsLiteral,omitempty"`
	RHSDynamic *DynamicRHS     `json:"rhsDynamic,omitempty"`

	// compound
	CompoundOp CompoundOperator `json:"compoundOperator,omitempty"`
	Children   []Condition      `json:"children,omitempty"`

	// flag
	FlagName string `json:"flagName,omitempty"`
}

// NodeResult is a leaf's verdict.
type NodeResult string

const (
	ResultMatch   NodeResult = "match"
	ResultNoMatch NodeResult = "no-match"
)

// Node is either a leaf (Result set) or a branch (Condition + Yes/No
// set). A tree is defined as its root Node.
type Node struct {
	ID string `json:"id"`

	// leaf fields
	Result     NodeResult `json:"result,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Reason     string     `json:"reason,omitempty"`

	// branch fields
	Condition *Condition `json:"condition,omitempty"`
	Yes       *Node      `json:"yes,omitempty"`
	No        *Node      `json:"no,omitempty"`
}

func (n *Node) isLeaf() bool {
	return n.Condition == nil
}

// PageContext is the set of fetched-page facts a tree is evaluated
// against. Numeric and Flags are open maps so configured trees can
// reference whatever fields the caller populated.
type PageContext struct {
	URL         string
	Title       string
	Description string
	Numeric     map[string]float64
	Flags       map[string]bool
}

// AuditStep is one branch decision recorded while evaluating a tree.
type AuditStep struct {
	NodeID            string `json:"nodeId"`
	ConditionSummary  string `json:"conditionSummary"`
	Result            bool   `json:"result"`
	Branch            string `json:"branch"` // "yes" | "no"
}

// Classification is the outcome of evaluating one category's tree
// against a PageContext.
type Classification struct {
	CategoryID  string
	Matched     bool
	Confidence  float64
	Reason      string
	EncodedPath string
	Path        []AuditStep
}
