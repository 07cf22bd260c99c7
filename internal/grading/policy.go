package grading

// Policy is a named strictness profile. It changes how rubric weight is
// distributed across the three scoring dimensions and which prompt
// variant the LLM receives.
type Policy string

const (
	PolicyStrict   Policy = "strict"
	PolicyBalanced Policy = "balanced"
	PolicyLenient  Policy = "lenient"
)

// DefaultPolicy is used when a caller passes an empty or unknown policy.
const DefaultPolicy = PolicyBalanced

var validPolicies = map[Policy]bool{
	PolicyStrict:   true,
	PolicyBalanced: true,
	PolicyLenient:  true,
}

// ParsePolicy maps a raw policy string to a Policy. The second return
// value is false when the input was empty or unrecognized and the
// default was substituted.
func ParsePolicy(s string) (Policy, bool) {
	p := Policy(s)
	if validPolicies[p] {
		return p, true
	}
	return DefaultPolicy, false
}

// Rubric dimension names. These are the only criterion names the engine
// emits for free-text and code grading.
const (
	DimAccuracy     = "accuracy"
	DimCompleteness = "completeness"
	DimClarity      = "clarity"
)

// Decision-family dimension names.
const (
	DimAnalysis      = "analysis"
	DimReasoning     = "reasoning"
	DimCommunication = "communication"
)

// Weights is the fractional split of a question's max score across the
// three rubric dimensions. The three fractions sum to 1.
type Weights struct {
	Names  [3]string
	Splits [3]float64
}

// RubricWeights returns the accuracy/completeness/clarity split for a
// policy.
func (p Policy) RubricWeights() Weights {
	names := [3]string{DimAccuracy, DimCompleteness, DimClarity}
	switch p {
	case PolicyStrict:
		return Weights{Names: names, Splits: [3]float64{0.7, 0.2, 0.1}}
	case PolicyLenient:
		return Weights{Names: names, Splits: [3]float64{0.4, 0.3, 0.3}}
	default:
		return Weights{Names: names, Splits: [3]float64{0.5, 0.3, 0.2}}
	}
}

// DecisionWeights returns the analysis/reasoning/communication split
// used for decision, case-study and scenario questions. Decision grading
// rewards sound reasoning over matching a reference, so the split does
// not vary by policy.
func DecisionWeights() Weights {
	return Weights{
		Names:  [3]string{DimAnalysis, DimReasoning, DimCommunication},
		Splits: [3]float64{0.4, 0.4, 0.2},
	}
}
