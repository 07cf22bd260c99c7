package grading

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/gradekit/gradekit/internal/i18n"
	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
)

// Verdict inference thresholds, as fractions of max score.
const (
	verdictHighCutoff = 0.9
	verdictLowCutoff  = 0.1
)

// minFeedbackLen is the shortest LLM feedback accepted as-is; anything
// shorter is replaced with a synthesized message.
const minFeedbackLen = 10

// criteriaTolerance absorbs rounding drift when checking that criterion
// scores sum to the total and maxima sum to the question max.
const criteriaTolerance = 0.05

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// verdictFromScore infers a verdict from the score fraction. decision
// selects the strong/acceptable/weak vocabulary.
func verdictFromScore(score, maxScore float64, decision bool) model.Verdict {
	frac := 0.0
	if maxScore > 0 {
		frac = score / maxScore
	}
	switch {
	case frac >= verdictHighCutoff:
		if decision {
			return model.VerdictStrong
		}
		return model.VerdictCorrect
	case frac <= verdictLowCutoff:
		if decision {
			return model.VerdictWeak
		}
		return model.VerdictIncorrect
	default:
		if decision {
			return model.VerdictAcceptable
		}
		return model.VerdictPartiallyCorrect
	}
}

func validVerdict(v string, decision bool) (model.Verdict, bool) {
	verdict := model.Verdict(strings.ToLower(strings.TrimSpace(v)))
	if decision {
		switch verdict {
		case model.VerdictStrong, model.VerdictAcceptable, model.VerdictWeak:
			return verdict, true
		}
		return "", false
	}
	switch verdict {
	case model.VerdictCorrect, model.VerdictPartiallyCorrect, model.VerdictIncorrect:
		return verdict, true
	}
	return "", false
}

// splitCriteria builds default criteria by splitting score and max
// proportionally across the weight dimensions. The last entry absorbs
// rounding remainders so the maxima always sum exactly to maxScore.
func splitCriteria(score, maxScore float64, w Weights) []model.Criterion {
	out := make([]model.Criterion, 3)
	var usedScore, usedMax float64
	for i := 0; i < 3; i++ {
		cs := round2(score * w.Splits[i])
		cm := round2(maxScore * w.Splits[i])
		if i == 2 {
			cs = round2(score - usedScore)
			cm = round2(maxScore - usedMax)
		}
		out[i] = model.Criterion{Name: w.Names[i], Score: cs, Max: cm}
		usedScore += cs
		usedMax += cm
	}
	return out
}

// repairRubric validates raw LLM output and repairs every deviation
// from the requested schema, so downstream consumers always receive a
// well-formed result.
func repairRubric(ctx context.Context, raw *llm.RubricResult, maxScore float64, w Weights, decision bool) (float64, model.Verdict, string, []model.Criterion) {
	score, ok := llm.Number(raw.Score)
	if !ok {
		slog.Warn("llm score not numeric, defaulting to 0", "raw", raw.Score)
		score = 0
	}
	score = round2(clamp(score, 0, maxScore))

	verdict, ok := validVerdict(raw.Verdict, decision)
	if !ok {
		verdict = verdictFromScore(score, maxScore, decision)
		slog.Debug("llm verdict repaired", "raw", raw.Verdict, "inferred", verdict)
	}

	feedback := strings.TrimSpace(raw.Feedback)
	if len(feedback) < minFeedbackLen {
		feedback = i18n.Td(ctx, "FeedbackSynthesized", map[string]any{
			"Score":   fmt.Sprintf("%.2f", score),
			"Max":     fmt.Sprintf("%.2f", maxScore),
			"Verdict": string(verdict),
		})
	}

	criteria, ok := acceptCriteria(raw.Criteria, score, maxScore, w)
	if !ok {
		slog.Debug("llm criteria repaired", "count", len(raw.Criteria))
		criteria = splitCriteria(score, maxScore, w)
	}
	return score, verdict, feedback, criteria
}

// acceptCriteria keeps the model's criteria only when the shape is
// exactly right: three entries named after the rubric dimensions, each
// score numeric and within its max, scores summing to the total and
// maxima summing to the question max.
func acceptCriteria(raw []llm.RubricCriterion, score, maxScore float64, w Weights) ([]model.Criterion, bool) {
	if len(raw) != 3 {
		return nil, false
	}
	names := map[string]bool{}
	for _, n := range w.Names {
		names[n] = true
	}

	out := make([]model.Criterion, 3)
	var sumScore, sumMax float64
	for i, rc := range raw {
		name := strings.ToLower(strings.TrimSpace(rc.Name))
		if !names[name] {
			return nil, false
		}
		cs, ok := llm.Number(rc.Score)
		if !ok || rc.Max <= 0 || cs < -criteriaTolerance || cs > rc.Max+criteriaTolerance {
			return nil, false
		}
		cs = round2(clamp(cs, 0, rc.Max))
		out[i] = model.Criterion{Name: name, Score: cs, Max: rc.Max, Feedback: strings.TrimSpace(rc.Feedback)}
		sumScore += cs
		sumMax += rc.Max
	}
	if math.Abs(sumMax-maxScore) > criteriaTolerance {
		return nil, false
	}
	if math.Abs(sumScore-score) > criteriaTolerance {
		return nil, false
	}
	return out, true
}
