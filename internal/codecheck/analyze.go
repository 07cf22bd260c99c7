// Package codecheck inspects submitted Python source without executing
// it: a syntax plausibility pass plus a structural summary consumed by
// the requirement checker.
package codecheck

import (
	"fmt"
	"strings"
)

// Analysis is the structural summary of one submission.
type Analysis struct {
	ValidSyntax    bool
	SyntaxError    string
	Functions      []string
	Classes        []string
	HasLoop        bool
	HasConditional bool
	Imports        []string
	LineCount      int // non-blank, non-comment lines
}

// HasFunction reports whether a function with the given name is defined.
func (a *Analysis) HasFunction(name string) bool {
	for _, f := range a.Functions {
		if f == name {
			return true
		}
	}
	return false
}

var blockKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "try": true, "except": true,
	"finally": true, "with": true,
}

// Analyze summarizes the source in one linear pass. A failed syntax
// check short-circuits the structural summary: a syntactically broken
// submission cannot be meaningfully analyzed further.
func Analyze(source string) Analysis {
	a := Analysis{ValidSyntax: true}

	skeleton, err := blankStrings(source)
	if err == nil {
		err = checkBrackets(skeleton)
	}
	if err != nil {
		a.ValidSyntax = false
		a.SyntaxError = err.Error()
		return a
	}

	for _, line := range strings.Split(skeleton, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		a.LineCount++

		fields := strings.Fields(trimmed)
		switch fields[0] {
		case "def":
			if name := defName(trimmed, "def"); name != "" {
				a.Functions = append(a.Functions, name)
			}
		case "class":
			if name := defName(trimmed, "class"); name != "" {
				a.Classes = append(a.Classes, name)
			}
		case "for", "while":
			a.HasLoop = true
		case "if", "elif":
			a.HasConditional = true
		case "import":
			for _, mod := range strings.Split(strings.TrimPrefix(trimmed, "import "), ",") {
				mod = strings.TrimSpace(mod)
				// "import a.b as c" -> a
				mod = strings.SplitN(mod, " ", 2)[0]
				mod = strings.SplitN(mod, ".", 2)[0]
				if mod != "" {
					a.Imports = append(a.Imports, mod)
				}
			}
		case "from":
			if len(fields) >= 2 {
				mod := strings.SplitN(fields[1], ".", 2)[0]
				if mod != "" {
					a.Imports = append(a.Imports, mod)
				}
			}
		}
	}
	return a
}

// defName extracts the identifier following a def/class keyword.
func defName(line, keyword string) string {
	rest := strings.TrimSpace(strings.TrimPrefix(line, keyword))
	end := strings.IndexAny(rest, "(: ")
	if end == -1 {
		return rest
	}
	return rest[:end]
}

// blankStrings replaces string literals (including triple-quoted) and
// comments with spaces so later passes can scan structure without
// tracking quoting. An unterminated literal is a syntax error.
func blankStrings(source string) (string, error) {
	src := []byte(source)
	out := make([]byte, len(src))
	copy(out, src)

	var quote string // active delimiter: `'`, `"`, `'''` or `"""`
	openLine := 0
	line := 1

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
			if len(quote) == 1 {
				return "", fmt.Errorf("line %d: unterminated string literal", openLine)
			}
			continue
		}

		if quote != "" {
			if c == '\\' && len(quote) == 1 {
				blank(out, i, 2)
				i++
				continue
			}
			if strings.HasPrefix(string(src[i:]), quote) {
				blank(out, i, len(quote))
				i += len(quote) - 1
				quote = ""
			} else {
				blank(out, i, 1)
			}
			continue
		}

		switch c {
		case '\'', '"':
			if strings.HasPrefix(string(src[i:]), strings.Repeat(string(c), 3)) {
				quote = strings.Repeat(string(c), 3)
				blank(out, i, 3)
				i += 2
			} else {
				quote = string(c)
				blank(out, i, 1)
			}
			openLine = line
		case '#':
			for i < len(src) && src[i] != '\n' {
				out[i] = ' '
				i++
			}
			i-- // let the loop handle the newline
		}
	}
	if quote != "" && len(quote) == 1 {
		return "", fmt.Errorf("line %d: unterminated string literal", openLine)
	}
	if quote != "" {
		return "", fmt.Errorf("line %d: unterminated triple-quoted string", openLine)
	}
	return string(out), nil
}

func blank(b []byte, at, n int) {
	for i := at; i < at+n && i < len(b); i++ {
		if b[i] != '\n' {
			b[i] = ' '
		}
	}
}

// checkBrackets verifies bracket balance and that block headers carry a
// top-level colon. This is a plausibility check, not a full parser: the
// interpreter remains the authority at execution time. It exists so
// static grading can reject obviously broken submissions with a
// concrete error.
func checkBrackets(skeleton string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for lineNo, line := range strings.Split(skeleton, "\n") {
		depthAtStart := len(stack)
		sawColon := false

		for i := 0; i < len(line); i++ {
			switch c := line[i]; c {
			case '(', '[', '{':
				stack = append(stack, c)
			case ')', ']', '}':
				if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
					return fmt.Errorf("line %d: unmatched %q", lineNo+1, string(c))
				}
				stack = stack[:len(stack)-1]
			case ':':
				if len(stack) == 0 {
					sawColon = true
				}
			}
		}

		// A block header must carry a top-level colon somewhere on the
		// line ("if x:" and "if x: y = 1" both qualify). Lines starting
		// inside brackets are continuations and are skipped.
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || depthAtStart > 0 || len(stack) > 0 {
			continue
		}
		fields := strings.Fields(trimmed)
		if blockKeywords[fields[0]] && !sawColon {
			return fmt.Errorf("line %d: expected ':' in %q statement", lineNo+1, fields[0])
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", string(stack[len(stack)-1]))
	}
	return nil
}
