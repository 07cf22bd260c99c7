package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gradekit/gradekit/internal/i18n"
	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
)

// gradeFreeText grades short/long/conceptual answers, and any question
// of unknown type. The LLM rubric path is preferred; the deterministic
// token-overlap scorer covers offline operation and LLM failures.
func (e *Engine) gradeFreeText(ctx context.Context, cfg runConfig, q model.Question, answer string) (model.GradeResult, []string) {
	res := model.GradeResult{
		QuestionID: q.ID,
		Type:       q.Type,
		MaxScore:   q.Max(),
		Expected:   q.Reference(),
	}
	var warnings []string

	if strings.TrimSpace(answer) == "" {
		res.Verdict = model.VerdictIncorrect
		res.Feedback = i18n.T(ctx, "FeedbackEmptyAnswer")
		res.Criteria = splitCriteria(0, res.MaxScore, cfg.weights)
		return res, warnings
	}

	if e.llm == nil {
		e.heuristicFill(ctx, cfg, q, answer, &res)
		return res, warnings
	}

	raw, err := llm.GradeRubric(ctx, e.llm, llm.RubricRequest{
		Policy:    string(cfg.policy),
		Question:  q.Prompt,
		Reference: q.Reference(),
		Answer:    answer,
		MaxScore:  res.MaxScore,
		Dims:      rubricDims(res.MaxScore, cfg.weights),
	})
	if err != nil {
		slog.Warn("llm rubric grading failed, using heuristic fallback",
			"question", q.ID, "error", err)
		warnings = append(warnings, fmt.Sprintf("question %s: llm grading failed, heuristic fallback used", q.ID))
		e.heuristicFill(ctx, cfg, q, answer, &res)
		return res, warnings
	}

	res.Score, res.Verdict, res.Feedback, res.Criteria = repairRubric(ctx, raw, res.MaxScore, cfg.weights, false)
	return res, warnings
}

// heuristicFill scores by token overlap and fills the result in place,
// including the proportional criteria split the rubric family promises.
func (e *Engine) heuristicFill(ctx context.Context, cfg runConfig, q model.Question, answer string, res *model.GradeResult) {
	h := ScoreByOverlap(q.Reference(), answer, res.MaxScore)
	res.Score = round2(h.Score)
	res.Verdict = verdictFromScore(res.Score, res.MaxScore, false)
	res.Criteria = splitCriteria(res.Score, res.MaxScore, cfg.weights)

	if q.Reference() == "" {
		res.Feedback = i18n.T(ctx, "FeedbackNoReference")
		return
	}
	res.Feedback = i18n.Td(ctx, "FeedbackHeuristic", map[string]any{
		"Matched": h.Matched,
		"Total":   h.Total,
	})
}

// gradeDecision grades open-ended decision/case-study/scenario answers.
// There is no deterministic fallback: sound reasoning cannot be judged
// by token overlap, so without an LLM the question is ungradable.
func (e *Engine) gradeDecision(ctx context.Context, q model.Question, answer string) (model.GradeResult, []string) {
	w := DecisionWeights()
	res := model.GradeResult{
		QuestionID: q.ID,
		Type:       q.Type,
		MaxScore:   q.Max(),
	}

	if strings.TrimSpace(answer) == "" {
		res.Verdict = model.VerdictWeak
		res.Feedback = i18n.T(ctx, "FeedbackEmptyAnswer")
		res.Criteria = splitCriteria(0, res.MaxScore, w)
		return res, nil
	}

	if e.llm == nil {
		res.Verdict = model.VerdictError
		res.Feedback = i18n.T(ctx, "FeedbackLLMRequired")
		return res, nil
	}

	raw, err := llm.GradeDecision(ctx, e.llm, llm.DecisionRequest{
		Question:          q.Prompt,
		Scenario:          q.Scenario,
		ReferenceAnalysis: q.ReferenceAnalysis,
		Answer:            answer,
		MaxScore:          res.MaxScore,
		Dims:              rubricDims(res.MaxScore, w),
	})
	if err != nil {
		slog.Warn("llm decision grading failed", "question", q.ID, "error", err)
		res.Verdict = model.VerdictError
		res.Feedback = i18n.Td(ctx, "FeedbackGradeFailed", map[string]any{"Error": err.Error()})
		return res, []string{fmt.Sprintf("question %s: llm grading failed", q.ID)}
	}

	res.Score, res.Verdict, res.Feedback, res.Criteria = repairRubric(ctx, raw, res.MaxScore, w, true)
	return res, nil
}

// rubricDims turns a weight split into named per-dimension score caps.
// The last dimension absorbs rounding so the caps sum to maxScore.
func rubricDims(maxScore float64, w Weights) [3]llm.RubricDim {
	var dims [3]llm.RubricDim
	var used float64
	for i := 0; i < 3; i++ {
		m := round2(maxScore * w.Splits[i])
		if i == 2 {
			m = round2(maxScore - used)
		}
		dims[i] = llm.RubricDim{Name: w.Names[i], Max: m}
		used += m
	}
	return dims
}
