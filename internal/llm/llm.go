// Package llm sends grading requests to an external language model in a
// forced-JSON mode and parses the results. Every failure is surfaced as
// a typed, recoverable error: callers decide whether to fall back to
// heuristic grading or to report the question as ungradable.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gradekit/gradekit/internal/llm/prompts"
)

// Error kinds for boundary failures. Wrapped errors carry detail;
// callers match with errors.Is.
var (
	// ErrUnavailable covers network, auth and provider failures.
	ErrUnavailable = errors.New("llm unavailable")
	// ErrEmpty means the provider returned no usable content.
	ErrEmpty = errors.New("llm returned empty response")
	// ErrMalformed means the content did not parse as the expected JSON.
	ErrMalformed = errors.New("llm returned malformed response")
)

// Request is one chat-completion call. Implementations must ask the
// provider for a JSON-object response.
type Request struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client is a provider-agnostic chat-completion client.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

const (
	gradingTemperature = 0.1
	gradingMaxTokens   = 1024
)

// ExtractJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object. Providers do not always honor the requested
// response format.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// Number coerces a JSON-decoded value into a float64. The model may
// return numbers as strings, or garbage; the second return value is
// false when no number could be extracted.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func complete(ctx context.Context, c Client, system, user string) (string, error) {
	raw, err := c.Complete(ctx, Request{
		System:      system,
		User:        user,
		Temperature: gradingTemperature,
		MaxTokens:   gradingMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmpty
	}
	return raw, nil
}

func decode(raw string, out any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), out); err != nil {
		return fmt.Errorf("%w: %v (raw: %s)", ErrMalformed, err, snippet(raw))
	}
	return nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// RubricDim names one rubric dimension and its score ceiling.
type RubricDim struct {
	Name string
	Max  float64
}

// RubricRequest asks for rubric grading of a free-text or code answer.
type RubricRequest struct {
	Policy    string // prompt variant: strict, balanced, lenient
	Question  string
	Reference string
	Answer    string
	MaxScore  float64
	Dims      [3]RubricDim
	IsCode    bool
}

// RubricCriterion is one raw criterion as returned by the model. Score
// is deliberately untyped: the validator coerces and clamps it.
type RubricCriterion struct {
	Name     string  `json:"name"`
	Score    any     `json:"score"`
	Max      float64 `json:"max"`
	Feedback string  `json:"feedback"`
}

// RubricResult is the raw model output for a rubric grading call, prior
// to validation and repair.
type RubricResult struct {
	Score    any               `json:"score"`
	Verdict  string            `json:"verdict"`
	Feedback string            `json:"feedback"`
	Criteria []RubricCriterion `json:"criteria"`
}

// GradeRubric grades a free-text or code answer against the rubric.
func GradeRubric(ctx context.Context, c Client, req RubricRequest) (*RubricResult, error) {
	data := prompts.RubricData{MaxScore: req.MaxScore, IsCode: req.IsCode}
	for i, d := range req.Dims {
		data.Dims[i] = prompts.Dim{Name: d.Name, Max: d.Max}
	}
	system, user, err := prompts.Rubric(req.Policy, data, req.Question, req.Reference, req.Answer)
	if err != nil {
		return nil, err
	}

	raw, err := complete(ctx, c, system, user)
	if err != nil {
		return nil, err
	}
	var out RubricResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecisionRequest asks for grading of an open-ended decision answer.
type DecisionRequest struct {
	Question          string
	Scenario          string
	ReferenceAnalysis string
	Answer            string
	MaxScore          float64
	Dims              [3]RubricDim
}

// GradeDecision grades a decision/scenario answer against the
// "no single correct answer" rubric.
func GradeDecision(ctx context.Context, c Client, req DecisionRequest) (*RubricResult, error) {
	data := prompts.DecisionData{MaxScore: req.MaxScore}
	for i, d := range req.Dims {
		data.Dims[i] = prompts.Dim{Name: d.Name, Max: d.Max}
	}
	system, user, err := prompts.Decision(data, req.Question, req.Scenario, req.ReferenceAnalysis, req.Answer)
	if err != nil {
		return nil, err
	}

	raw, err := complete(ctx, c, system, user)
	if err != nil {
		return nil, err
	}
	var out RubricResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChoiceResult is the model's attempt to map a free-form answer onto an
// option letter.
type ChoiceResult struct {
	Letter     string `json:"letter"`
	Confidence any    `json:"confidence"`
}

// Conf returns the coerced confidence, 0 when absent or unparseable.
func (r *ChoiceResult) Conf() float64 {
	f, ok := Number(r.Confidence)
	if !ok || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// PickChoice asks the model which option a free-form multiple-choice
// answer refers to.
func PickChoice(ctx context.Context, c Client, question string, options []string, answer string) (*ChoiceResult, error) {
	system, user, err := prompts.Choice(question, options, answer)
	if err != nil {
		return nil, err
	}

	raw, err := complete(ctx, c, system, user)
	if err != nil {
		return nil, err
	}
	var out ChoiceResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	out.Letter = strings.ToUpper(strings.TrimSpace(out.Letter))
	return &out, nil
}

// StyleResult is the model's style/quality assessment of passing code.
type StyleResult struct {
	Quality  any    `json:"quality"`
	Feedback string `json:"feedback"`
}

// QualityScore returns the coerced quality in [0, 1].
func (r *StyleResult) QualityScore() float64 {
	f, ok := Number(r.Quality)
	if !ok || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// AssessStyle reviews code that already passed its tests.
func AssessStyle(ctx context.Context, c Client, question, code string) (*StyleResult, error) {
	system, user, err := prompts.Style(question, code)
	if err != nil {
		return nil, err
	}

	raw, err := complete(ctx, c, system, user)
	if err != nil {
		return nil, err
	}
	var out StyleResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
