package grading

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
)

// stubClient returns a canned reply, or an error, for every call. The
// counter is shared across worker goroutines in parallel grading, so it
// is mutex-guarded.
type stubClient struct {
	reply string
	err   error

	mu    sync.Mutex
	calls int
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func mcq(id, answer string, options ...string) model.Question {
	return model.Question{
		ID:      id,
		Type:    model.TypeMultipleChoice,
		Prompt:  "What is 2 + 2?",
		Options: options,
		Answer:  answer,
	}
}

func findItem(t *testing.T, report model.Report, id string) model.GradeResult {
	t.Helper()
	for _, it := range report.Items {
		if it.QuestionID == id {
			return it
		}
	}
	t.Fatalf("no result for question %q in %+v", id, report.Items)
	return model.GradeResult{}
}

func TestGradeQuizInvalidStructure(t *testing.T) {
	e := New()
	tests := []struct {
		name string
		quiz model.Quiz
	}{
		{"no questions", model.Quiz{ID: "q"}},
		{"missing type", model.Quiz{Questions: []model.Question{
			{ID: "q1", Prompt: "Why?"},
		}}},
		{"empty prompt", model.Quiz{Questions: []model.Question{
			{ID: "q1", Type: model.TypeShortAnswer, Prompt: "   "},
		}}},
		{"single option mcq", model.Quiz{Questions: []model.Question{
			{ID: "q1", Type: model.TypeMultipleChoice, Prompt: "Pick", Options: []string{"only"}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := e.GradeQuiz(context.Background(), tt.quiz, nil, "", nil)
			if report.Error != "Invalid quiz structure" {
				t.Errorf("Error = %q, want Invalid quiz structure", report.Error)
			}
			if len(report.Details) == 0 {
				t.Error("expected details explaining the violation")
			}
			if len(report.Items) != 0 || report.TotalScore != 0 {
				t.Error("invalid report must carry no results")
			}
		})
	}
}

func TestGradeQuizMultipleChoice(t *testing.T) {
	e := New()
	quiz := model.Quiz{
		ID: "mcq-quiz",
		Questions: []model.Question{
			mcq("q1", "4", "3", "4", "5", "6"),
			mcq("q2", "B", "red", "green", "blue", "white"),
			mcq("q3", "A", "alpha", "beta", "gamma", "delta"),
		},
	}
	responses := model.ResponseSet{
		"q1": "4",     // literal option text, resolves to B
		"q2": "green", // option text, correct
		"q3": "gamma", // wrong option
	}
	report := e.GradeQuiz(context.Background(), quiz, responses, "", nil)
	if report.Error != "" {
		t.Fatalf("unexpected error: %q %v", report.Error, report.Details)
	}

	q1 := findItem(t, report, "q1")
	if q1.Score != 1 || q1.IsCorrect == nil || !*q1.IsCorrect || q1.Expected != "B" {
		t.Errorf("q1 = %+v, want correct with expected B", q1)
	}
	q2 := findItem(t, report, "q2")
	if q2.Verdict != model.VerdictCorrect {
		t.Errorf("q2 verdict = %q", q2.Verdict)
	}
	q3 := findItem(t, report, "q3")
	if q3.Score != 0 || q3.IsCorrect == nil || *q3.IsCorrect {
		t.Errorf("q3 = %+v, want incorrect", q3)
	}
	if report.TotalScore != 2 || report.MaxTotal != 3 {
		t.Errorf("totals = %v/%v, want 2/3", report.TotalScore, report.MaxTotal)
	}
}

func TestGradeQuizTrueFalse(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{
		{ID: "t1", Type: model.TypeTrueFalse, Prompt: "The sky is green.", Answer: "false"},
		{ID: "t2", Type: model.TypeTrueFalse, Prompt: "Water boils at 100C.", Answer: "yes"},
		{ID: "t3", Type: model.TypeTrueFalse, Prompt: "Go has classes.", Answer: "no"},
		{ID: "t4", Type: model.TypeTrueFalse, Prompt: "No ground truth here."},
	}}
	responses := model.ResponseSet{
		"t1": "no",      // normalized match
		"t2": "true",    // word-form mismatch still compares equal
		"t3": "perhaps", // unverifiable
		"t4": "true",
	}
	report := e.GradeQuiz(context.Background(), quiz, responses, "", nil)

	if it := findItem(t, report, "t1"); it.Score != 1 || it.Verdict != model.VerdictCorrect {
		t.Errorf("t1 = %+v", it)
	}
	if it := findItem(t, report, "t2"); it.Verdict != model.VerdictCorrect {
		t.Errorf("t2 = %+v", it)
	}
	if it := findItem(t, report, "t3"); it.Verdict != model.VerdictUnclear || it.IsCorrect != nil {
		t.Errorf("t3 = %+v, want unclear with nil is_correct", it)
	}
	if it := findItem(t, report, "t4"); it.Verdict != "" || it.IsCorrect != nil || it.Score != 0 {
		t.Errorf("t4 = %+v, want unverifiable zero result", it)
	}
}

func TestGradeQuizFreeTextHeuristic(t *testing.T) {
	e := New() // no LLM
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "f1", Type: model.TypeShortAnswer,
		Prompt: "What does photosynthesis produce?",
		Answer: "glucose and oxygen",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"f1": "it produces oxygen"}, "", nil)

	it := findItem(t, report, "f1")
	if it.Score <= 0 || it.Score >= it.MaxScore {
		t.Errorf("heuristic score = %v, want partial of %v", it.Score, it.MaxScore)
	}
	if len(it.Criteria) != 3 {
		t.Errorf("criteria = %+v, want 3 entries", it.Criteria)
	}
	if it.Verdict != model.VerdictPartiallyCorrect {
		t.Errorf("verdict = %q", it.Verdict)
	}
}

func TestGradeQuizEmptyAnswer(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "f1", Type: model.TypeLongAnswer, Prompt: "Explain.", Answer: "because",
	}}}
	report := e.GradeQuiz(context.Background(), quiz, model.ResponseSet{"f1": "   "}, "", nil)
	it := findItem(t, report, "f1")
	if it.Score != 0 || it.Verdict != model.VerdictIncorrect {
		t.Errorf("empty answer = %+v, want zero incorrect", it)
	}
}

func TestGradeQuizLLMRubric(t *testing.T) {
	client := &stubClient{reply: `{"score": 4.5, "verdict": "partially_correct",
		"feedback": "Good coverage of light reactions, missing the Calvin cycle.",
		"criteria": [
			{"name": "accuracy", "score": 2.5, "max": 2.5, "feedback": ""},
			{"name": "completeness", "score": 1.2, "max": 1.5, "feedback": ""},
			{"name": "clarity", "score": 0.8, "max": 1.0, "feedback": ""}
		]}`}
	e := New(WithClient(client))
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "c1", Type: model.TypeConceptual, Prompt: "Explain photosynthesis.",
		Answer: "plants convert light to chemical energy",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"c1": "Plants use light to make sugar."}, "strict", nil)

	it := findItem(t, report, "c1")
	if it.Score != 4.5 {
		t.Errorf("score = %v, want 4.5", it.Score)
	}
	if it.Verdict != model.VerdictPartiallyCorrect {
		t.Errorf("verdict = %q", it.Verdict)
	}
	if client.callCount() != 1 {
		t.Errorf("llm calls = %d, want 1", client.callCount())
	}
}

func TestGradeQuizLLMFailureFallsBack(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	e := New(WithClient(client))
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "f1", Type: model.TypeShortAnswer, Prompt: "Name the capital of France.",
		Answer: "Paris",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"f1": "Paris"}, "", nil)

	it := findItem(t, report, "f1")
	if it.Score != it.MaxScore {
		t.Errorf("fallback exact-overlap score = %v, want %v", it.Score, it.MaxScore)
	}
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "heuristic fallback") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want heuristic fallback notice", report.Warnings)
	}
}

func TestGradeQuizDecisionWithoutLLM(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "d1", Type: model.TypeDecisionMaking,
		Prompt:   "Choose a database for this workload.",
		Scenario: "Write-heavy time series, single region.",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"d1": "I would pick a log-structured store."}, "", nil)
	it := findItem(t, report, "d1")
	if it.Verdict != model.VerdictError || it.Score != 0 {
		t.Errorf("decision without llm = %+v, want error verdict", it)
	}
}

func TestGradeQuizWarnings(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{
		{ID: "q1", Type: model.TypeShortAnswer, Prompt: "No reference set."},
		{ID: "q2", Type: model.QuestionType("weird_type"), Prompt: "Mystery.", Answer: "hm"},
	}}
	responses := model.ResponseSet{"q2": "answer", "ghost": "who am I answering"}
	report := e.GradeQuiz(context.Background(), quiz, responses, "mean", nil)

	wantFragments := []string{
		"unknown policy",
		"no reference answer",
		"unknown type",
		"unknown question id",
		`no response for question "q1"`,
	}
	for _, frag := range wantFragments {
		found := false
		for _, w := range report.Warnings {
			if strings.Contains(w, frag) {
				found = true
			}
		}
		if !found {
			t.Errorf("warnings %v miss %q", report.Warnings, frag)
		}
	}
	// Both questions still graded.
	if len(report.Items) != 2 {
		t.Errorf("items = %d, want 2", len(report.Items))
	}
}

func TestGradeQuizCustomWeights(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID: "f1", Type: model.TypeShortAnswer, Prompt: "Define entropy.", Answer: "disorder measure",
	}}}

	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"f1": "a measure of disorder"}, "",
		map[string]float64{"accuracy": 8, "completeness": 1, "clarity": 1})
	it := findItem(t, report, "f1")
	if len(it.Criteria) != 3 {
		t.Fatalf("criteria = %+v", it.Criteria)
	}
	// accuracy carries 80% of the max after normalization.
	if it.Criteria[0].Name != DimAccuracy || it.Criteria[0].Max != round2(it.MaxScore*0.8) {
		t.Errorf("criteria[0] = %+v, want accuracy at 80%% weight", it.Criteria[0])
	}

	// Invalid weighting degrades to the policy split with a warning.
	report = e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"f1": "a measure of disorder"}, "",
		map[string]float64{"accuracy": 1})
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "invalid rubric weighting") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want invalid weighting notice", report.Warnings)
	}
}

func TestGradeQuizParallelPreservesOrder(t *testing.T) {
	client := &stubClient{reply: `{"score": 3, "verdict": "partially_correct",
		"feedback": "A reasonable attempt with some gaps."}`}
	e := New(WithClient(client), WithWorkers(4))

	quiz := model.Quiz{ID: "mixed", Questions: []model.Question{
		mcq("q1", "A", "a", "b", "c", "d"),
		{ID: "q2", Type: model.TypeShortAnswer, Prompt: "Explain A.", Answer: "because a"},
		{ID: "q3", Type: model.TypeTrueFalse, Prompt: "A is first.", Answer: "true"},
		{ID: "q4", Type: model.TypeConceptual, Prompt: "Explain B.", Answer: "because b"},
		{ID: "q5", Type: model.TypeShortAnswer, Prompt: "Explain C.", Answer: "because c"},
	}}
	responses := model.ResponseSet{
		"q1": "a", "q2": "words", "q3": "true", "q4": "words", "q5": "words",
	}

	report := e.GradeQuizParallel(context.Background(), quiz, responses, "", nil, 3)
	if report.Error != "" {
		t.Fatalf("unexpected error: %q", report.Error)
	}
	if len(report.Items) != 5 {
		t.Fatalf("items = %d, want 5", len(report.Items))
	}
	for i, want := range []string{"q1", "q2", "q3", "q4", "q5"} {
		if report.Items[i].QuestionID != want {
			t.Errorf("items[%d] = %q, want %q", i, report.Items[i].QuestionID, want)
		}
	}
	// Same totals as the sequential path.
	seq := e.GradeQuiz(context.Background(), quiz, responses, "", nil)
	if report.TotalScore != seq.TotalScore || report.MaxTotal != seq.MaxTotal {
		t.Errorf("parallel totals %v/%v differ from sequential %v/%v",
			report.TotalScore, report.MaxTotal, seq.TotalScore, seq.MaxTotal)
	}
	// Three free-text questions per run: the parallel workers and the
	// sequential pass each made three calls.
	if got := client.callCount(); got != 6 {
		t.Errorf("llm calls = %d, want 6", got)
	}
}

func TestGradeQuizParallelInvalidStructure(t *testing.T) {
	e := New()
	report := e.GradeQuizParallel(context.Background(), model.Quiz{}, nil, "", nil, 2)
	if report.Error != "Invalid quiz structure" {
		t.Errorf("Error = %q", report.Error)
	}
}

func TestGradeQuizPercentage(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{
		mcq("q1", "A", "a", "b"),
		mcq("q2", "B", "a", "b"),
	}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"q1": "A", "q2": "A"}, "", nil)
	if report.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", report.Percentage)
	}
}

func TestGradeQuizCodeSyntaxError(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID:     "c1",
		Type:   model.TypeCodeWriting,
		Prompt: "Write a doubling function.",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"c1": "def double(n)\n    return n * 2\n"}, "", nil)
	item := findItem(t, report, "c1")
	if item.Score != 0 || item.Verdict != model.VerdictIncorrect {
		t.Errorf("item = %+v", item)
	}
	if !strings.Contains(item.Feedback, "syntax error") {
		t.Errorf("feedback = %q", item.Feedback)
	}
}

func TestGradeQuizCodeRequirements(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID:     "c1",
		Type:   model.TypeCodeWriting,
		Prompt: "Sum the numbers with a loop.",
		Requirements: &model.Requirements{
			MustHaveFunction: "total",
			MustUseLoop:      true,
		},
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"c1": "def total(nums):\n    return sum(nums)\n"}, "", nil)

	item := findItem(t, report, "c1")
	// Function check passes, loop check fails: half the points.
	if item.Score != 5 || item.MaxScore != 10 {
		t.Errorf("score = %v/%v, want 5/10", item.Score, item.MaxScore)
	}
	if item.IsCorrect == nil || *item.IsCorrect {
		t.Errorf("IsCorrect = %v, want false", item.IsCorrect)
	}
	if !strings.Contains(item.Feedback, "[FAIL]") {
		t.Errorf("feedback = %q", item.Feedback)
	}
}

func TestGradeQuizCodeByTests(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID:     "c1",
		Type:   model.TypeCodeWriting,
		Prompt: "Read a number and print its double.",
		TestCases: []model.TestCase{
			{Input: "2", ExpectedOutput: "4"},
			{Input: "10", ExpectedOutput: "20"},
		},
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"c1": "n = int(input())\nprint(n * 2)\n"}, "", nil)

	item := findItem(t, report, "c1")
	if item.Score != 10 || item.Verdict != model.VerdictCorrect {
		t.Errorf("item = %+v", item)
	}
	if item.IsCorrect == nil || !*item.IsCorrect {
		t.Errorf("IsCorrect = %v, want true", item.IsCorrect)
	}
}

func TestGradeQuizCodeWithoutSignalsNeedsLLM(t *testing.T) {
	e := New()
	quiz := model.Quiz{Questions: []model.Question{{
		ID:     "c1",
		Type:   model.TypeCodeExplanation,
		Prompt: "Explain what this loop does.",
	}}}
	report := e.GradeQuiz(context.Background(), quiz,
		model.ResponseSet{"c1": "It iterates over the list."}, "", nil)
	item := findItem(t, report, "c1")
	if item.Verdict != model.VerdictError || item.Score != 0 {
		t.Errorf("item = %+v", item)
	}
}
