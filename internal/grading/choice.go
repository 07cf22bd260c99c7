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

func boolPtr(b bool) *bool { return &b }

// gradeMultipleChoice resolves the student's raw answer to an option
// letter and compares it with the reference. Score is binary: full or
// zero. A missing reference yields nil is_correct and no verdict;
// absence of ground truth is not evidence of wrongness.
func (e *Engine) gradeMultipleChoice(ctx context.Context, q model.Question, answer string) (model.GradeResult, []string) {
	res := model.GradeResult{
		QuestionID: q.ID,
		Type:       q.Type,
		MaxScore:   q.Max(),
	}
	var warnings []string

	refLetter, refOK := ResolveChoice(q.Reference(), q.Options, e.fuzzyThreshold)
	if refOK {
		res.Expected = refLetter
	} else if ref := q.Reference(); ref != "" {
		res.Expected = ref
	}

	if !refOK {
		res.Feedback = i18n.T(ctx, "FeedbackNoReference")
		return res, warnings
	}

	letter, ok := ResolveChoice(answer, q.Options, e.fuzzyThreshold)
	if !ok && e.llm != nil && strings.TrimSpace(answer) != "" {
		letter, ok = e.disambiguate(ctx, q, answer)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("question %s: ambiguous multiple-choice answer", q.ID))
		}
	}

	if !ok {
		res.Verdict = model.VerdictUnclear
		res.Feedback = i18n.T(ctx, "FeedbackUnclear")
		return res, warnings
	}

	if letter == refLetter {
		res.Score = res.MaxScore
		res.IsCorrect = boolPtr(true)
		res.Verdict = model.VerdictCorrect
		res.Feedback = i18n.T(ctx, "FeedbackCorrect")
	} else {
		res.IsCorrect = boolPtr(false)
		res.Verdict = model.VerdictIncorrect
		res.Feedback = i18n.Td(ctx, "FeedbackIncorrectExpected", map[string]any{"Expected": refLetter})
	}
	return res, warnings
}

// disambiguate asks the LLM which option a free-form answer refers to.
// The pick is accepted only at or above the configured confidence.
func (e *Engine) disambiguate(ctx context.Context, q model.Question, answer string) (string, bool) {
	pick, err := llm.PickChoice(ctx, e.llm, q.Prompt, q.Options, answer)
	if err != nil {
		slog.Warn("choice disambiguation failed", "question", q.ID, "error", err)
		return "", false
	}
	if pick.Letter == "" || pick.Conf() < e.choiceConfidence {
		return "", false
	}
	// The model must still name a real option.
	if len(pick.Letter) != 1 || pick.Letter[0] < 'A' || int(pick.Letter[0]-'A') >= len(q.Options) {
		return "", false
	}
	return pick.Letter, true
}

// gradeTrueFalse normalizes both sides to booleans. An unverifiable
// student answer is "unclear", never incorrect-by-default, and a
// missing reference leaves is_correct and verdict unset.
func (e *Engine) gradeTrueFalse(ctx context.Context, q model.Question, answer string) (model.GradeResult, []string) {
	res := model.GradeResult{
		QuestionID: q.ID,
		Type:       q.Type,
		MaxScore:   q.Max(),
	}

	ref := NormalizeBool(q.Reference())
	if ref == BoolUnknown {
		if r := q.Reference(); r != "" {
			res.Expected = r
		}
		res.Feedback = i18n.T(ctx, "FeedbackNoReference")
		return res, nil
	}
	res.Expected = map[Tristate]string{BoolTrue: "true", BoolFalse: "false"}[ref]

	got := NormalizeBool(answer)
	if got == BoolUnknown {
		res.Verdict = model.VerdictUnclear
		res.Feedback = i18n.T(ctx, "FeedbackUnclear")
		return res, nil
	}

	if got == ref {
		res.Score = res.MaxScore
		res.IsCorrect = boolPtr(true)
		res.Verdict = model.VerdictCorrect
		res.Feedback = i18n.T(ctx, "FeedbackCorrect")
	} else {
		res.IsCorrect = boolPtr(false)
		res.Verdict = model.VerdictIncorrect
		res.Feedback = i18n.Td(ctx, "FeedbackIncorrectExpected", map[string]any{"Expected": res.Expected})
	}
	return res, nil
}
