package model

import "strings"

// QuestionType identifies the grading strategy for a question.
type QuestionType string

const (
	TypeMultipleChoice  QuestionType = "multiple_choice"
	TypeTrueFalse       QuestionType = "true_false"
	TypeShortAnswer     QuestionType = "short_answer"
	TypeLongAnswer      QuestionType = "long_answer"
	TypeConceptual      QuestionType = "conceptual"
	TypeCodeWriting     QuestionType = "code_writing"
	TypeCodeCompletion  QuestionType = "code_completion"
	TypeCodeDebugging   QuestionType = "code_debugging"
	TypeCodeOutput      QuestionType = "code_output"
	TypeCodeExplanation QuestionType = "code_explanation"
	TypeDecisionMaking  QuestionType = "decision_making"
	TypeCaseStudy       QuestionType = "case_study"
	TypeScenario        QuestionType = "scenario"
)

var knownTypes = map[QuestionType]bool{
	TypeMultipleChoice:  true,
	TypeTrueFalse:       true,
	TypeShortAnswer:     true,
	TypeLongAnswer:      true,
	TypeConceptual:      true,
	TypeCodeWriting:     true,
	TypeCodeCompletion:  true,
	TypeCodeDebugging:   true,
	TypeCodeOutput:      true,
	TypeCodeExplanation: true,
	TypeDecisionMaking:  true,
	TypeCaseStudy:       true,
	TypeScenario:        true,
}

// Known reports whether t is a recognized question type.
// Unknown types are graded as free text rather than rejected.
func (t QuestionType) Known() bool { return knownTypes[t] }

// IsChoice reports whether t is graded by answer matching alone
// (no LLM call, no code execution).
func (t QuestionType) IsChoice() bool {
	return t == TypeMultipleChoice || t == TypeTrueFalse
}

// IsCode reports whether t accepts a code submission.
func (t QuestionType) IsCode() bool {
	switch t {
	case TypeCodeWriting, TypeCodeCompletion, TypeCodeDebugging, TypeCodeOutput, TypeCodeExplanation:
		return true
	}
	return false
}

// IsRunnableCode reports whether submissions of this type are candidates
// for execution or static structural checks. code_output and
// code_explanation test comprehension, not runnable code.
func (t QuestionType) IsRunnableCode() bool {
	switch t {
	case TypeCodeWriting, TypeCodeCompletion, TypeCodeDebugging:
		return true
	}
	return false
}

// IsDecision reports whether t is an open-ended decision/scenario type.
func (t QuestionType) IsDecision() bool {
	switch t {
	case TypeDecisionMaking, TypeCaseStudy, TypeScenario:
		return true
	}
	return false
}

// DefaultMaxScore returns the per-type default when a question does not
// declare max_score.
func (t QuestionType) DefaultMaxScore() float64 {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse:
		return 1.0
	case TypeShortAnswer:
		return 3.0
	case TypeLongAnswer, TypeConceptual:
		return 5.0
	default:
		// Code, decision and unknown types.
		return 10.0
	}
}

// Requirements lists structural constraints for code questions.
// Every present field yields exactly one pass/fail check.
type Requirements struct {
	MustHaveFunction    string   `json:"must_have_function,omitempty" yaml:"must_have_function,omitempty"`
	MustUseLoop         bool     `json:"must_use_loop,omitempty" yaml:"must_use_loop,omitempty"`
	MustHaveConditional bool     `json:"must_have_conditional,omitempty" yaml:"must_have_conditional,omitempty"`
	MaxLines            int      `json:"max_lines,omitempty" yaml:"max_lines,omitempty"`
	ForbiddenImports    []string `json:"forbidden_imports,omitempty" yaml:"forbidden_imports,omitempty"`
	RequiredKeywords    []string `json:"required_keywords,omitempty" yaml:"required_keywords,omitempty"`
}

// Empty reports whether no constraint is set. With empty requirements
// there is nothing structural to check and grading falls back to the LLM.
func (r *Requirements) Empty() bool {
	if r == nil {
		return true
	}
	return r.MustHaveFunction == "" && !r.MustUseLoop && !r.MustHaveConditional &&
		r.MaxLines == 0 && len(r.ForbiddenImports) == 0 && len(r.RequiredKeywords) == 0
}

// TestCase is one literal stdin/stdout check for code questions.
type TestCase struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expected_output" yaml:"expected_output"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Question is a single quiz question as supplied by the quiz store.
type Question struct {
	ID      string       `json:"id" yaml:"id"`
	Type    QuestionType `json:"type" yaml:"type"`
	Prompt  string       `json:"prompt" yaml:"prompt"`
	Options []string     `json:"options,omitempty" yaml:"options,omitempty"`

	// Reference answer candidates, tried in priority order by Reference.
	Answer          string `json:"answer,omitempty" yaml:"answer,omitempty"`
	ReferenceAnswer string `json:"reference_answer,omitempty" yaml:"reference_answer,omitempty"`
	ExpectedAnswer  string `json:"expected_answer,omitempty" yaml:"expected_answer,omitempty"`
	IdealAnswer     string `json:"ideal_answer,omitempty" yaml:"ideal_answer,omitempty"`
	Solution        string `json:"solution,omitempty" yaml:"solution,omitempty"`
	ModelAnswer     string `json:"model_answer,omitempty" yaml:"model_answer,omitempty"`

	MaxScore     float64       `json:"max_score,omitempty" yaml:"max_score,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	TestCases    []TestCase    `json:"test_cases,omitempty" yaml:"test_cases,omitempty"`

	// Decision/scenario context.
	Scenario          string `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	ReferenceAnalysis string `json:"reference_analysis,omitempty" yaml:"reference_analysis,omitempty"`
}

// Reference returns the canonical reference answer: the first non-blank
// candidate field in fixed priority order, or "" when none is set.
func (q *Question) Reference() string {
	for _, c := range []string{
		q.Answer,
		q.ReferenceAnswer,
		q.ExpectedAnswer,
		q.IdealAnswer,
		q.Solution,
		q.ModelAnswer,
	} {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// Max returns the effective max score for the question.
func (q *Question) Max() float64 {
	if q.MaxScore > 0 {
		return q.MaxScore
	}
	return q.Type.DefaultMaxScore()
}

// Quiz is an ordered list of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title,omitempty" yaml:"title,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// ResponseSet maps question id to the student's raw answer.
type ResponseSet map[string]string

// Verdict is a closed-vocabulary categorical summary of a score.
type Verdict string

const (
	VerdictCorrect          Verdict = "correct"
	VerdictPartiallyCorrect Verdict = "partially_correct"
	VerdictIncorrect        Verdict = "incorrect"
	VerdictUnclear          Verdict = "unclear"
	VerdictError            Verdict = "error"

	// Decision family.
	VerdictStrong     Verdict = "strong"
	VerdictAcceptable Verdict = "acceptable"
	VerdictWeak       Verdict = "weak"
)

// Criterion is one named rubric dimension with its own score ceiling.
type Criterion struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Max      float64 `json:"max"`
	Feedback string  `json:"feedback,omitempty"`
}

// GradeResult is the outcome of grading a single question.
type GradeResult struct {
	QuestionID string       `json:"question_id"`
	Type       QuestionType `json:"type"`
	Score      float64      `json:"score"`
	MaxScore   float64      `json:"max_score"`
	IsCorrect  *bool        `json:"is_correct,omitempty"`
	Verdict    Verdict      `json:"verdict,omitempty"`
	Feedback   string       `json:"feedback,omitempty"`
	Criteria   []Criterion  `json:"criteria,omitempty"`
	Expected   string       `json:"expected,omitempty"`
}

// Report aggregates per-question results for one grading run.
type Report struct {
	QuizID     string        `json:"quiz_id"`
	TotalScore float64       `json:"total_score"`
	MaxTotal   float64       `json:"max_total"`
	Percentage float64       `json:"percentage"`
	Items      []GradeResult `json:"items"`
	Warnings   []string      `json:"warnings,omitempty"`

	// Set only on structural invalidity; Items is empty in that case.
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}
