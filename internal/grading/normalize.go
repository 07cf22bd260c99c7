package grading

import (
	"strconv"
	"strings"
	"unicode"
)

// Tristate is the result of normalizing a boolean-ish answer. Unknown is
// not an error: callers treat it as "cannot verify", never as wrong.
type Tristate int

const (
	BoolUnknown Tristate = iota
	BoolTrue
	BoolFalse
)

var boolWords = map[string]Tristate{
	"true": BoolTrue, "t": BoolTrue, "yes": BoolTrue, "y": BoolTrue, "1": BoolTrue,
	"false": BoolFalse, "f": BoolFalse, "no": BoolFalse, "n": BoolFalse, "0": BoolFalse,
}

// NormalizeBool maps a raw answer to true/false/unknown.
func NormalizeBool(raw string) Tristate {
	if v, ok := boolWords[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return v
	}
	return BoolUnknown
}

// normalizeText casefolds, strips punctuation and collapses whitespace.
func normalizeText(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein computes edit distance (insertion, deletion, substitution
// cost 1) over runes.
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			ins := dp[j] + 1
			del := dp[j-1] + 1
			sub := prev + cost
			dp[j] = min(ins, del, sub)
			prev = tmp
		}
	}
	return dp[m]
}

// Similarity returns an edit-distance-based ratio in [0, 1] after
// normalization. 1 means the normalized strings are identical.
func Similarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		return 1
	}
	longest := max(len([]rune(na)), len([]rune(nb)))
	if longest == 0 {
		return 1
	}
	d := levenshtein(na, nb)
	return 1 - float64(d)/float64(longest)
}

// letterFor returns the option letter (A, B, C, ...) for a 0-based index.
func letterFor(idx int) string {
	return string(rune('A' + idx))
}

// ResolveChoice maps a raw multiple-choice answer onto an option letter.
// It tries, in order: the raw value as a letter, a 0-based numeric
// index, an exact normalized match against option text, and finally a
// fuzzy match accepted only at or above fuzzyThreshold. The second
// return value is false when nothing resolved.
func ResolveChoice(raw string, options []string, fuzzyThreshold float64) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(options) == 0 {
		return "", false
	}

	// Single letter within range.
	if len([]rune(raw)) == 1 {
		r := unicode.ToUpper([]rune(raw)[0])
		if r >= 'A' && int(r-'A') < len(options) {
			return string(r), true
		}
	}

	// 0-based index. Out-of-range numbers fall through to text matching
	// so a literal numeric option ("4" among ["3","4","5"]) still resolves.
	if idx, err := strconv.Atoi(raw); err == nil {
		if idx >= 0 && idx < len(options) {
			return letterFor(idx), true
		}
	}

	// Exact text match, ignoring case and punctuation.
	norm := normalizeText(raw)
	for i, opt := range options {
		if normalizeText(opt) == norm {
			return letterFor(i), true
		}
	}

	// Fuzzy match: best option wins if similar enough.
	bestIdx, bestRatio := -1, 0.0
	for i, opt := range options {
		if r := Similarity(raw, opt); r > bestRatio {
			bestIdx, bestRatio = i, r
		}
	}
	if bestIdx >= 0 && bestRatio >= fuzzyThreshold {
		return letterFor(bestIdx), true
	}
	return "", false
}
