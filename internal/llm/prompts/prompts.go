// Package prompts builds system and user prompts for LLM grading calls.
// System prompts live in embedded template files, one rubric variant per
// grading policy.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	loadOnce sync.Once
	loadErr  error
	tmpls    map[string]*template.Template
)

var templateNames = []string{
	"rubric_strict", "rubric_balanced", "rubric_lenient",
	"decision", "choice", "style",
}

func load() error {
	loadOnce.Do(func() {
		tmpls = make(map[string]*template.Template, len(templateNames))
		for _, name := range templateNames {
			content, err := templateFS.ReadFile("templates/" + name + ".txt")
			if err != nil {
				loadErr = fmt.Errorf("read prompt template %s: %w", name, err)
				return
			}
			t, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			tmpls[name] = t
		}
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	t, ok := tmpls[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", name, err)
	}
	return sb.String(), nil
}

// Dim is one rubric dimension passed to a template.
type Dim struct {
	Name string
	Max  float64
}

// RubricData parameterizes the rubric system prompt.
type RubricData struct {
	MaxScore float64
	Dims     [3]Dim
	IsCode   bool
}

// Rubric returns system and user prompts for rubric grading under the
// given policy variant (strict, balanced, lenient).
func Rubric(variant string, data RubricData, question, reference, answer string) (string, string, error) {
	name := "rubric_" + variant
	system, err := render(name, data)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	sb.WriteString("QUESTION:\n" + question + "\n\n")
	if reference != "" {
		sb.WriteString("REFERENCE ANSWER (not shown to the student):\n" + reference + "\n\n")
	}
	sb.WriteString("STUDENT ANSWER:\n" + answer + "\n")
	return system, sb.String(), nil
}

// DecisionData parameterizes the decision-grading system prompt.
type DecisionData struct {
	MaxScore float64
	Dims     [3]Dim
}

// Decision returns system and user prompts for open-ended
// decision/scenario grading.
func Decision(data DecisionData, question, scenario, referenceAnalysis, answer string) (string, string, error) {
	system, err := render("decision", data)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	if scenario != "" {
		sb.WriteString("SCENARIO:\n" + scenario + "\n\n")
	}
	sb.WriteString("QUESTION:\n" + question + "\n\n")
	if referenceAnalysis != "" {
		sb.WriteString("EXAMPLE OF A STRONG ANALYSIS (one possible answer, not the only one):\n" + referenceAnalysis + "\n\n")
	}
	sb.WriteString("STUDENT ANSWER:\n" + answer + "\n")
	return system, sb.String(), nil
}

// Choice returns system and user prompts for disambiguating a free-form
// multiple-choice answer into an option letter.
func Choice(question string, options []string, answer string) (string, string, error) {
	system, err := render("choice", nil)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	sb.WriteString("QUESTION:\n" + question + "\n\nOPTIONS:\n")
	for i, opt := range options {
		sb.WriteString(fmt.Sprintf("%c) %s\n", 'A'+i, opt))
	}
	sb.WriteString("\nSTUDENT ANSWER:\n" + answer + "\n")
	return system, sb.String(), nil
}

// Style returns system and user prompts for a code style/quality pass.
func Style(question, code string) (string, string, error) {
	system, err := render("style", nil)
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	sb.WriteString("TASK:\n" + question + "\n\nSUBMITTED CODE:\n" + code + "\n")
	return system, sb.String(), nil
}
