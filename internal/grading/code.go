package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gradekit/gradekit/internal/codecheck"
	"github.com/gradekit/gradekit/internal/i18n"
	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
	"github.com/gradekit/gradekit/internal/sandbox"
)

// Weight of the functional test score versus the optional style pass
// when all tests succeed.
const (
	testWeight  = 0.7
	styleWeight = 0.3
)

// gradeCode routes a code submission to the best available strategy:
// execution against test cases, static requirement checks, or LLM
// semantic grading, in that order of preference.
func (e *Engine) gradeCode(ctx context.Context, cfg runConfig, q model.Question, answer string) (model.GradeResult, []string) {
	res := model.GradeResult{
		QuestionID: q.ID,
		Type:       q.Type,
		MaxScore:   q.Max(),
	}

	if strings.TrimSpace(answer) == "" {
		res.Verdict = model.VerdictIncorrect
		res.Feedback = i18n.T(ctx, "FeedbackEmptyAnswer")
		return res, nil
	}

	// code_output and code_explanation test comprehension; the answer
	// is prose about code, not runnable code.
	if !q.Type.IsRunnableCode() {
		return e.gradeCodeSemantic(ctx, cfg, q, answer, res)
	}

	analysis := codecheck.Analyze(answer)
	if !analysis.ValidSyntax {
		res.Verdict = model.VerdictIncorrect
		res.Feedback = i18n.Td(ctx, "FeedbackSyntaxError", map[string]any{"Error": analysis.SyntaxError})
		return res, nil
	}

	if len(q.TestCases) > 0 {
		return e.gradeCodeByTests(ctx, q, answer, res)
	}
	if !q.Requirements.Empty() {
		return e.gradeCodeByRequirements(ctx, analysis, q, answer, res)
	}
	return e.gradeCodeSemantic(ctx, cfg, q, answer, res)
}

// gradeCodeByTests executes the submission per test case. When every
// test passes and an LLM is configured, one style-only call contributes
// 30% of the final score.
func (e *Engine) gradeCodeByTests(ctx context.Context, q model.Question, answer string, res model.GradeResult) (model.GradeResult, []string) {
	sum, err := e.runner.RunTests(ctx, answer, q.TestCases)
	if err != nil {
		slog.Error("test execution failed", "question", q.ID, "error", err)
		res.Verdict = model.VerdictError
		res.Feedback = i18n.Td(ctx, "FeedbackGradeFailed", map[string]any{"Error": err.Error()})
		return res, []string{fmt.Sprintf("question %s: code execution failed", q.ID)}
	}

	testScore := res.MaxScore * float64(sum.Passed) / float64(sum.Total)
	res.IsCorrect = boolPtr(sum.Passed == sum.Total)

	feedback := i18n.Td(ctx, "FeedbackTests", map[string]any{
		"Passed": sum.Passed,
		"Total":  sum.Total,
	})
	if detail := failureDetail(sum); detail != "" {
		feedback += " " + detail
	}

	res.Score = round2(testScore)
	if sum.Passed == sum.Total && e.llm != nil {
		if style, err := llm.AssessStyle(ctx, e.llm, q.Prompt, answer); err != nil {
			// Style is a bonus pass; execution already decided correctness.
			slog.Warn("style assessment failed, keeping test score", "question", q.ID, "error", err)
		} else {
			res.Score = round2(testScore*testWeight + style.QualityScore()*res.MaxScore*styleWeight)
			feedback += " " + i18n.T(ctx, "FeedbackStyleBlend")
			if fb := strings.TrimSpace(style.Feedback); fb != "" {
				feedback += " " + fb
			}
		}
	}

	res.Verdict = verdictFromScore(res.Score, res.MaxScore, false)
	res.Feedback = feedback
	return res, nil
}

// failureDetail describes the first failing test case.
func failureDetail(sum sandbox.Summary) string {
	for _, c := range sum.Cases {
		if c.Passed {
			continue
		}
		label := fmt.Sprintf("case %d", c.Index+1)
		if c.Description != "" {
			label = fmt.Sprintf("%s (%s)", label, c.Description)
		}
		if c.TimedOut {
			return fmt.Sprintf("%s: %s.", label, c.Err)
		}
		if c.Err != "" {
			return fmt.Sprintf("%s: %s.", label, c.Err)
		}
		return fmt.Sprintf("%s: expected %q, got %q.", label, c.Expected, c.Got)
	}
	return ""
}

// gradeCodeByRequirements scores by the fraction of structural checks
// passed.
func (e *Engine) gradeCodeByRequirements(ctx context.Context, analysis codecheck.Analysis, q model.Question, answer string, res model.GradeResult) (model.GradeResult, []string) {
	checks := codecheck.Evaluate(analysis, answer, q.Requirements)
	passed := codecheck.Passed(checks)
	total := len(checks)

	res.Score = round2(res.MaxScore * float64(passed) / float64(total))
	res.IsCorrect = boolPtr(passed == total)
	res.Verdict = verdictFromScore(res.Score, res.MaxScore, false)
	res.Feedback = i18n.Td(ctx, "FeedbackChecks", map[string]any{
		"Passed":  passed,
		"Total":   total,
		"Summary": codecheck.Summary(checks),
	})
	return res, nil
}

// gradeCodeSemantic grades code meaning via the LLM rubric. There is no
// deterministic fallback for semantics; without an LLM the question is
// ungradable.
func (e *Engine) gradeCodeSemantic(ctx context.Context, cfg runConfig, q model.Question, answer string, res model.GradeResult) (model.GradeResult, []string) {
	if e.llm == nil {
		res.Verdict = model.VerdictError
		res.Feedback = i18n.T(ctx, "FeedbackLLMRequired")
		return res, nil
	}

	raw, err := llm.GradeRubric(ctx, e.llm, llm.RubricRequest{
		Policy:    string(cfg.policy),
		Question:  q.Prompt,
		Reference: q.Reference(),
		Answer:    answer,
		MaxScore:  res.MaxScore,
		Dims:      rubricDims(res.MaxScore, cfg.weights),
		IsCode:    true,
	})
	if err != nil {
		slog.Warn("llm code grading failed", "question", q.ID, "error", err)
		res.Verdict = model.VerdictError
		res.Feedback = i18n.Td(ctx, "FeedbackGradeFailed", map[string]any{"Error": err.Error()})
		return res, []string{fmt.Sprintf("question %s: llm grading failed", q.ID)}
	}

	res.Score, res.Verdict, res.Feedback, res.Criteria = repairRubric(ctx, raw, res.MaxScore, cfg.weights, false)
	res.Expected = q.Reference()
	return res, nil
}
