// Package sandbox executes untrusted student code in a separate process
// with a per-test wall-clock timeout. Submissions are untrusted input;
// isolation in a fresh process is the safety boundary here, stronger
// confinement belongs to deployment (container, seccomp).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gradekit/gradekit/internal/model"
)

// DefaultTimeout bounds a single test-case execution.
const DefaultTimeout = 5 * time.Second

// Runner executes submissions against literal stdin/stdout test cases.
type Runner struct {
	interpreter string
	timeout     time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterpreter sets the interpreter binary (default python3).
func WithInterpreter(bin string) Option {
	return func(r *Runner) { r.interpreter = bin }
}

// WithTimeout sets the per-test wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{interpreter: "python3", timeout: DefaultTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Index       int
	Description string
	Passed      bool
	TimedOut    bool
	Expected    string
	Got         string
	Stderr      string
	Err         string
}

// Summary aggregates a full test run.
type Summary struct {
	Passed int
	Total  int
	Cases  []CaseResult
}

// RunTests executes the submission once per test case. A timeout or
// crash fails that case only, never the whole run. The returned error
// is reserved for infrastructure failures (temp file creation), not for
// failing tests.
func (r *Runner) RunTests(ctx context.Context, source string, cases []model.TestCase) (Summary, error) {
	sum := Summary{Total: len(cases)}
	for i, tc := range cases {
		res, err := r.runCase(ctx, source, i, tc)
		if err != nil {
			return sum, err
		}
		if res.Passed {
			sum.Passed++
		}
		sum.Cases = append(sum.Cases, res)
	}
	return sum, nil
}

// runCase writes the submission to its own temp file, runs it in a
// fresh process and compares trimmed stdout with the expected output.
// The temp file is removed on every exit path.
func (r *Runner) runCase(ctx context.Context, source string, idx int, tc model.TestCase) (CaseResult, error) {
	res := CaseResult{
		Index:       idx,
		Description: tc.Description,
		Expected:    strings.TrimSpace(tc.ExpectedOutput),
	}

	f, err := os.CreateTemp("", "gradekit-sub-*.py")
	if err != nil {
		return res, fmt.Errorf("write submission: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(source); err != nil {
		f.Close()
		return res, fmt.Errorf("write submission: %w", err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("write submission: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.interpreter, path)
	cmd.Stdin = strings.NewReader(tc.Input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res.Got = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Err = fmt.Sprintf("execution timed out after %s", r.timeout)
		slog.Debug("test case timed out", "case", idx, "timeout", r.timeout)
		return res, nil
	}
	if runErr != nil {
		res.Err = fmt.Sprintf("process error: %v", runErr)
		return res, nil
	}

	res.Passed = res.Got == res.Expected
	return res, nil
}
