package codecheck

import (
	"fmt"
	"strings"

	"github.com/gradekit/gradekit/internal/model"
)

// Check is one structural pass/fail verdict with its message.
type Check struct {
	Name    string
	Passed  bool
	Message string
}

// Evaluate runs every constraint present in req against the analysis.
// Absent constraints yield no check, so an empty requirements object
// returns nil and the caller must grade some other way.
func Evaluate(a Analysis, source string, req *model.Requirements) []Check {
	if req.Empty() {
		return nil
	}

	var checks []Check
	add := func(name string, passed bool, ok, fail string) {
		msg := ok
		if !passed {
			msg = fail
		}
		checks = append(checks, Check{Name: name, Passed: passed, Message: msg})
	}

	if req.MustHaveFunction != "" {
		passed := a.HasFunction(req.MustHaveFunction)
		add("function",
			passed,
			fmt.Sprintf("function %q is defined", req.MustHaveFunction),
			fmt.Sprintf("missing required function %q", req.MustHaveFunction))
	}
	if req.MustUseLoop {
		add("loop", a.HasLoop,
			"uses a loop",
			"no loop found; a for or while loop is required")
	}
	if req.MustHaveConditional {
		add("conditional", a.HasConditional,
			"uses a conditional",
			"no conditional found; an if statement is required")
	}
	if req.MaxLines > 0 {
		passed := a.LineCount <= req.MaxLines
		add("max_lines", passed,
			fmt.Sprintf("%d lines, within the limit of %d", a.LineCount, req.MaxLines),
			fmt.Sprintf("%d lines exceeds the limit of %d", a.LineCount, req.MaxLines))
	}
	if len(req.ForbiddenImports) > 0 {
		used := make(map[string]bool, len(a.Imports))
		for _, imp := range a.Imports {
			used[strings.ToLower(imp)] = true
		}
		var hits []string
		for _, f := range req.ForbiddenImports {
			if used[strings.ToLower(f)] {
				hits = append(hits, f)
			}
		}
		add("forbidden_imports", len(hits) == 0,
			"no forbidden imports used",
			fmt.Sprintf("forbidden imports used: %s", strings.Join(hits, ", ")))
	}
	if len(req.RequiredKeywords) > 0 {
		low := strings.ToLower(source)
		var missing []string
		for _, kw := range req.RequiredKeywords {
			if !strings.Contains(low, strings.ToLower(kw)) {
				missing = append(missing, kw)
			}
		}
		add("required_keywords", len(missing) == 0,
			"all required keywords present",
			fmt.Sprintf("missing required keywords: %s", strings.Join(missing, ", ")))
	}
	return checks
}

// Passed counts the checks that passed.
func Passed(checks []Check) int {
	n := 0
	for _, c := range checks {
		if c.Passed {
			n++
		}
	}
	return n
}

// Summary joins check messages into one feedback string.
func Summary(checks []Check) string {
	parts := make([]string, 0, len(checks))
	for _, c := range checks {
		mark := "PASS"
		if !c.Passed {
			mark = "FAIL"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", mark, c.Message))
	}
	return strings.Join(parts, "; ")
}
