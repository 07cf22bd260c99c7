package grading

import (
	"strings"
	"unicode"
)

// heuristicBoost softens the F1 score slightly: exact token overlap is
// an overly strict proxy for semantic similarity.
const heuristicBoost = 1.1

// HeuristicScore is the deterministic token-overlap fallback used when
// no LLM is configured or the LLM call failed.
type HeuristicScore struct {
	Score   float64
	F1      float64
	Matched int
	Total   int
}

// tokens lowercases and splits text into a word set.
func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// ScoreByOverlap computes an F1-style overlap between the reference and
// the student answer and scales it to maxScore. Either side tokenizing
// to nothing yields a zero score.
func ScoreByOverlap(reference, answer string, maxScore float64) HeuristicScore {
	ref := tokens(reference)
	ans := tokens(answer)
	out := HeuristicScore{Total: len(ref)}
	if len(ref) == 0 || len(ans) == 0 {
		return out
	}

	inter := 0
	for w := range ans {
		if _, ok := ref[w]; ok {
			inter++
		}
	}
	out.Matched = inter
	if inter == 0 {
		return out
	}

	recall := float64(inter) / float64(len(ref))
	precision := float64(inter) / float64(len(ans))
	out.F1 = 2 * recall * precision / (recall + precision)
	out.Score = maxScore * min(1.0, out.F1*heuristicBoost)
	return out
}
