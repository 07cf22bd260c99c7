package model

import "testing"

func TestDefaultMaxScore(t *testing.T) {
	tests := []struct {
		qtype QuestionType
		want  float64
	}{
		{TypeMultipleChoice, 1.0},
		{TypeTrueFalse, 1.0},
		{TypeShortAnswer, 3.0},
		{TypeLongAnswer, 5.0},
		{TypeConceptual, 5.0},
		{TypeCodeWriting, 10.0},
		{TypeCodeOutput, 10.0},
		{TypeDecisionMaking, 10.0},
		{TypeCaseStudy, 10.0},
		{QuestionType("essay_3000_words"), 10.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.qtype), func(t *testing.T) {
			if got := tt.qtype.DefaultMaxScore(); got != tt.want {
				t.Errorf("DefaultMaxScore(%s) = %v, want %v", tt.qtype, got, tt.want)
			}
		})
	}
}

func TestMaxPrefersExplicitScore(t *testing.T) {
	q := Question{Type: TypeShortAnswer, MaxScore: 7.5}
	if got := q.Max(); got != 7.5 {
		t.Errorf("Max() = %v, want 7.5", got)
	}
	q.MaxScore = 0
	if got := q.Max(); got != 3.0 {
		t.Errorf("Max() = %v, want type default 3.0", got)
	}
}

func TestReferencePriority(t *testing.T) {
	q := Question{
		ReferenceAnswer: "second",
		Solution:        "fifth",
	}
	if got := q.Reference(); got != "second" {
		t.Errorf("Reference() = %q, want %q", got, "second")
	}

	q.Answer = "first"
	if got := q.Reference(); got != "first" {
		t.Errorf("Reference() = %q, want %q", got, "first")
	}

	// Blank candidates are skipped, not returned.
	q = Question{Answer: "   ", ModelAnswer: "last"}
	if got := q.Reference(); got != "last" {
		t.Errorf("Reference() = %q, want %q", got, "last")
	}

	q = Question{}
	if got := q.Reference(); got != "" {
		t.Errorf("Reference() = %q, want empty", got)
	}
}

func TestTypePredicates(t *testing.T) {
	if !TypeMultipleChoice.IsChoice() || !TypeTrueFalse.IsChoice() {
		t.Error("choice types not recognized")
	}
	if TypeShortAnswer.IsChoice() {
		t.Error("short_answer must not be a choice type")
	}
	if !TypeCodeWriting.IsCode() || !TypeCodeExplanation.IsCode() {
		t.Error("code types not recognized")
	}
	if TypeCodeExplanation.IsRunnableCode() || TypeCodeOutput.IsRunnableCode() {
		t.Error("comprehension code types must not be runnable")
	}
	if !TypeCodeDebugging.IsRunnableCode() {
		t.Error("code_debugging should be runnable")
	}
	if !TypeScenario.IsDecision() || !TypeCaseStudy.IsDecision() {
		t.Error("decision types not recognized")
	}
	if QuestionType("bogus").Known() {
		t.Error("unknown type reported as known")
	}
}

func TestRequirementsEmpty(t *testing.T) {
	var nilReq *Requirements
	if !nilReq.Empty() {
		t.Error("nil requirements should be empty")
	}
	if !(&Requirements{}).Empty() {
		t.Error("zero requirements should be empty")
	}
	if (&Requirements{MustUseLoop: true}).Empty() {
		t.Error("set flag should make requirements non-empty")
	}
	if (&Requirements{ForbiddenImports: []string{"os"}}).Empty() {
		t.Error("forbidden imports should make requirements non-empty")
	}
}
