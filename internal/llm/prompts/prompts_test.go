package prompts

import (
	"strings"
	"testing"
)

func rubricData() RubricData {
	return RubricData{
		MaxScore: 5,
		Dims: [3]Dim{
			{Name: "accuracy", Max: 2.5},
			{Name: "completeness", Max: 1.5},
			{Name: "clarity", Max: 1},
		},
	}
}

func TestRubricVariants(t *testing.T) {
	for _, variant := range []string{"strict", "balanced", "lenient"} {
		t.Run(variant, func(t *testing.T) {
			system, user, err := Rubric(variant, rubricData(),
				"What is a deadlock?", "Two goroutines waiting on each other.", "When things block forever.")
			if err != nil {
				t.Fatalf("Rubric(%s): %v", variant, err)
			}
			if system == "" {
				t.Error("empty system prompt")
			}
			for _, want := range []string{"What is a deadlock?", "Two goroutines waiting on each other.", "When things block forever."} {
				if !strings.Contains(user, want) {
					t.Errorf("user prompt missing %q", want)
				}
			}
		})
	}
}

func TestRubricUnknownVariant(t *testing.T) {
	_, _, err := Rubric("harsh", rubricData(), "q", "r", "a")
	if err == nil || !strings.Contains(err.Error(), "rubric_harsh") {
		t.Errorf("err = %v, want unknown template rubric_harsh", err)
	}
}

func TestRubricOmitsEmptyReference(t *testing.T) {
	_, user, err := Rubric("balanced", rubricData(), "q", "", "a")
	if err != nil {
		t.Fatalf("Rubric: %v", err)
	}
	if strings.Contains(user, "REFERENCE ANSWER") {
		t.Errorf("reference section should be omitted, got:\n%s", user)
	}
}

func TestDecision(t *testing.T) {
	system, user, err := Decision(DecisionData{MaxScore: 10, Dims: [3]Dim{
		{Name: "analysis", Max: 4},
		{Name: "reasoning", Max: 4},
		{Name: "communication", Max: 2},
	}}, "Which database would you pick?", "A startup with three engineers.", "Postgres, for operational simplicity.", "MongoDB because it is webscale.")
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if system == "" {
		t.Error("empty system prompt")
	}
	for _, want := range []string{"SCENARIO:", "A startup with three engineers.", "Which database would you pick?", "MongoDB because it is webscale."} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestChoiceLettersOptions(t *testing.T) {
	system, user, err := Choice("Pick a color.", []string{"red", "green", "blue"}, "greenish")
	if err != nil {
		t.Fatalf("Choice: %v", err)
	}
	if system == "" {
		t.Error("empty system prompt")
	}
	for _, want := range []string{"A) red", "B) green", "C) blue", "greenish"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestStyle(t *testing.T) {
	system, user, err := Style("Reverse a string.", "def rev(s):\n    return s[::-1]\n")
	if err != nil {
		t.Fatalf("Style: %v", err)
	}
	if system == "" {
		t.Error("empty system prompt")
	}
	if !strings.Contains(user, "s[::-1]") {
		t.Errorf("user prompt missing submitted code:\n%s", user)
	}
}
