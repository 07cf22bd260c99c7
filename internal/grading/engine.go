// Package grading implements the automated grading engine: per-type
// grading strategies composed behind a single orchestrator that
// validates quiz structure, routes every question, and aggregates one
// auditable report.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gradekit/gradekit/internal/i18n"
	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
	"github.com/gradekit/gradekit/internal/sandbox"
)

// Tunable defaults. Both thresholds are empirically chosen and exposed
// as engine options.
const (
	DefaultFuzzyThreshold   = 0.75
	DefaultChoiceConfidence = 0.7
	DefaultWorkers          = 3
)

// Engine grades quizzes. Configuration is fixed at construction and
// never mutated afterwards, so one Engine is safe for concurrent use.
type Engine struct {
	llm              llm.Client // nil means offline: heuristic fallbacks only
	runner           *sandbox.Runner
	policy           Policy
	fuzzyThreshold   float64
	choiceConfidence float64
	workers          int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClient wires an LLM client. Without one the engine grades with
// deterministic fallbacks only.
func WithClient(c llm.Client) Option {
	return func(e *Engine) { e.llm = c }
}

// WithRunner replaces the sandboxed code executor.
func WithRunner(r *sandbox.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithPolicy sets the default grading policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithFuzzyThreshold sets the minimum similarity for fuzzy
// multiple-choice option matching.
func WithFuzzyThreshold(v float64) Option {
	return func(e *Engine) { e.fuzzyThreshold = v }
}

// WithChoiceConfidence sets the minimum confidence for accepting an
// LLM-assisted multiple-choice disambiguation.
func WithChoiceConfidence(v float64) Option {
	return func(e *Engine) { e.choiceConfidence = v }
}

// WithWorkers sets the default worker-pool size for parallel grading.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		runner:           sandbox.New(),
		policy:           DefaultPolicy,
		fuzzyThreshold:   DefaultFuzzyThreshold,
		choiceConfidence: DefaultChoiceConfidence,
		workers:          DefaultWorkers,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// runConfig is the per-call configuration resolved from the request's
// policy and optional rubric weighting.
type runConfig struct {
	policy  Policy
	weights Weights
}

// resolveConfig parses the requested policy and rubric weighting,
// collecting soft warnings for anything unrecognized.
func (e *Engine) resolveConfig(policy string, rubricWeights map[string]float64) (runConfig, []string) {
	var warnings []string

	p := e.policy
	if strings.TrimSpace(policy) != "" {
		parsed, ok := ParsePolicy(policy)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown policy %q, using %q", policy, DefaultPolicy))
		}
		p = parsed
	}

	w := p.RubricWeights()
	if len(rubricWeights) > 0 {
		custom, err := customWeights(rubricWeights)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid rubric weighting ignored: %v", err))
		} else {
			w = custom
		}
	}
	return runConfig{policy: p, weights: w}, warnings
}

// customWeights validates and normalizes a caller-supplied
// accuracy/completeness/clarity split.
func customWeights(m map[string]float64) (Weights, error) {
	names := [3]string{DimAccuracy, DimCompleteness, DimClarity}
	var splits [3]float64
	var total float64
	for i, n := range names {
		v, ok := m[n]
		if !ok {
			return Weights{}, fmt.Errorf("missing dimension %q", n)
		}
		if v <= 0 {
			return Weights{}, fmt.Errorf("dimension %q must be positive", n)
		}
		splits[i] = v
		total += v
	}
	if len(m) != 3 {
		return Weights{}, fmt.Errorf("expected exactly the dimensions %v", names)
	}
	for i := range splits {
		splits[i] /= total
	}
	return Weights{Names: names, Splits: splits}, nil
}

// validate checks structural integrity. Hard violations abort grading;
// soft conditions become report warnings.
func validate(quiz model.Quiz, responses model.ResponseSet) (hard, warnings []string) {
	if len(quiz.Questions) == 0 {
		hard = append(hard, "quiz has no questions")
		return hard, warnings
	}

	ids := make(map[string]bool, len(quiz.Questions))
	for i, q := range quiz.Questions {
		label := fmt.Sprintf("question %d", i+1)
		if q.ID != "" {
			label = fmt.Sprintf("question %q", q.ID)
			ids[q.ID] = true
		}

		if strings.TrimSpace(string(q.Type)) == "" {
			hard = append(hard, label+": missing type")
		} else if !q.Type.Known() {
			warnings = append(warnings, fmt.Sprintf("%s: unknown type %q, grading as free text", label, q.Type))
		}
		if strings.TrimSpace(q.Prompt) == "" {
			hard = append(hard, label+": empty prompt")
		}

		switch q.Type {
		case model.TypeMultipleChoice:
			if len(q.Options) < 2 {
				hard = append(hard, label+": multiple-choice question needs at least 2 options")
			} else if len(q.Options) != 4 {
				warnings = append(warnings, fmt.Sprintf("%s: %d options instead of the conventional 4", label, len(q.Options)))
			}
		case model.TypeShortAnswer, model.TypeLongAnswer, model.TypeConceptual:
			if q.Reference() == "" {
				warnings = append(warnings, label+": no reference answer, grading confidence reduced")
			}
		}
	}

	for id := range responses {
		if !ids[id] {
			warnings = append(warnings, fmt.Sprintf("response for unknown question id %q", id))
		}
	}
	return hard, warnings
}

// invalidReport is the terminal shape for structurally unusable input.
func invalidReport(quizID string, details []string) model.Report {
	return model.Report{
		QuizID:  quizID,
		Error:   "Invalid quiz structure",
		Details: details,
		Items:   []model.GradeResult{},
	}
}

// gradeOne dispatches a question to its grading strategy, converting
// any panic into an error result so one question can never abort the
// batch.
func (e *Engine) gradeOne(ctx context.Context, cfg runConfig, q model.Question, answer string) (res model.GradeResult, warnings []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("grader panic", "question", q.ID, "panic", r)
			res = model.GradeResult{
				QuestionID: q.ID,
				Type:       q.Type,
				MaxScore:   q.Max(),
				Verdict:    model.VerdictError,
				Feedback:   i18n.Td(ctx, "FeedbackGradeFailed", map[string]any{"Error": fmt.Sprint(r)}),
			}
		}
	}()

	switch {
	case q.Type == model.TypeMultipleChoice:
		return e.gradeMultipleChoice(ctx, q, answer)
	case q.Type == model.TypeTrueFalse:
		return e.gradeTrueFalse(ctx, q, answer)
	case q.Type.IsCode():
		return e.gradeCode(ctx, cfg, q, answer)
	case q.Type.IsDecision():
		return e.gradeDecision(ctx, q, answer)
	default:
		// Known free-text types and the unknown catch-all.
		return e.gradeFreeText(ctx, cfg, q, answer)
	}
}

// GradeQuiz grades every question sequentially and returns one report.
// policy and rubricWeights may be empty; unrecognized values degrade to
// the engine defaults with a warning.
func (e *Engine) GradeQuiz(ctx context.Context, quiz model.Quiz, responses model.ResponseSet, policy string, rubricWeights map[string]float64) model.Report {
	cfg, warnings := e.resolveConfig(policy, rubricWeights)

	hard, softWarnings := validate(quiz, responses)
	if len(hard) > 0 {
		return invalidReport(quiz.ID, hard)
	}
	warnings = append(warnings, softWarnings...)

	items := make([]model.GradeResult, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		res, w, skipped := e.gradeIndexed(ctx, cfg, q, responses)
		warnings = append(warnings, w...)
		if skipped {
			continue
		}
		items = append(items, res)
	}
	return e.aggregate(quiz.ID, items, warnings)
}

// gradeIndexed handles the per-question bookkeeping shared by the
// sequential and parallel paths: id checks, missing-response warnings,
// then dispatch.
func (e *Engine) gradeIndexed(ctx context.Context, cfg runConfig, q model.Question, responses model.ResponseSet) (model.GradeResult, []string, bool) {
	if q.ID == "" {
		slog.Warn("skipping question without id", "prompt", snippetOf(q.Prompt))
		return model.GradeResult{}, []string{"skipped a question without an id"}, true
	}

	answer, ok := responses[q.ID]
	var warnings []string
	if !ok {
		warnings = append(warnings, fmt.Sprintf("no response for question %q", q.ID))
	}

	res, w := e.gradeOne(ctx, cfg, q, answer)
	warnings = append(warnings, w...)
	return res, warnings, false
}

// GradeQuizParallel grades with bounded concurrency: choice questions
// (fast, no external I/O) run sequentially first, everything else goes
// through a worker pool. Results are re-sorted into original question
// order, so
// callers never observe scheduling nondeterminism.
func (e *Engine) GradeQuizParallel(ctx context.Context, quiz model.Quiz, responses model.ResponseSet, policy string, rubricWeights map[string]float64, maxWorkers int) model.Report {
	cfg, warnings := e.resolveConfig(policy, rubricWeights)

	hard, softWarnings := validate(quiz, responses)
	if len(hard) > 0 {
		return invalidReport(quiz.ID, hard)
	}
	warnings = append(warnings, softWarnings...)

	workers := e.workers
	if maxWorkers > 0 {
		workers = maxWorkers
	}

	type indexed struct {
		idx int
		res model.GradeResult
	}
	results := make([]*model.GradeResult, len(quiz.Questions))

	var mu sync.Mutex
	addWarnings := func(w []string) {
		if len(w) == 0 {
			return
		}
		mu.Lock()
		warnings = append(warnings, w...)
		mu.Unlock()
	}

	// Fast pass: choice questions need no network or subprocess.
	var slow []int
	for i, q := range quiz.Questions {
		if !q.Type.IsChoice() {
			slow = append(slow, i)
			continue
		}
		res, w, skipped := e.gradeIndexed(ctx, cfg, q, responses)
		addWarnings(w)
		if !skipped {
			r := res
			results[i] = &r
		}
	}

	// Slow pass: LLM-backed and code-executing questions.
	jobs := make(chan int)
	done := make(chan indexed)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				q := quiz.Questions[idx]
				res, warns, skipped := e.gradeIndexed(ctx, cfg, q, responses)
				addWarnings(warns)
				if !skipped {
					done <- indexed{idx: idx, res: res}
				}
			}
		}()
	}
	go func() {
		for _, idx := range slow {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
		close(done)
	}()
	for r := range done {
		res := r.res
		results[r.idx] = &res
	}

	// Restore original question order.
	var order []int
	for i, r := range results {
		if r != nil {
			order = append(order, i)
		}
	}
	sort.Ints(order)
	items := make([]model.GradeResult, 0, len(order))
	for _, i := range order {
		items = append(items, *results[i])
	}
	return e.aggregate(quiz.ID, items, warnings)
}

// aggregate sums per-question results into the final report.
func (e *Engine) aggregate(quizID string, items []model.GradeResult, warnings []string) model.Report {
	report := model.Report{
		QuizID:   quizID,
		Items:    items,
		Warnings: warnings,
	}
	for _, it := range items {
		report.TotalScore += it.Score
		report.MaxTotal += it.MaxScore
	}
	report.TotalScore = round2(report.TotalScore)
	report.MaxTotal = round2(report.MaxTotal)
	if report.MaxTotal > 0 {
		report.Percentage = round2(report.TotalScore / report.MaxTotal * 100)
	}
	return report
}

func snippetOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
