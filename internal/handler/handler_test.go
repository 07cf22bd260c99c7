package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gradekit/gradekit/internal/grading"
	"github.com/gradekit/gradekit/internal/model"
	"github.com/gradekit/gradekit/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, grading.New(), Config{JWTSecret: "test-secret"})
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func seedUser(t *testing.T, s *store.Store, username, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := s.CreateUser(context.Background(), model.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         model.RoleTeacher,
		Active:       active,
	}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if out["access_token"] == "" {
		t.Fatal("empty access token")
	}
	return out["access_token"]
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func choiceQuiz() model.Quiz {
	return model.Quiz{
		Title: "Basics",
		Questions: []model.Question{
			{ID: "q1", Type: model.TypeMultipleChoice, Prompt: "Which color is a primary color?",
				Options: []string{"green", "red", "purple", "orange"}, Answer: "B"},
			{ID: "q2", Type: model.TypeTrueFalse, Prompt: "The sky is green.", Answer: "false"},
		},
	}
}

func TestHealthzIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/quizzes", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quizzes", "not-a-jwt", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRejectsUnsignedToken(t *testing.T) {
	srv, _ := newTestServer(t)

	// A well-formed token claiming alg "none" must not pass; only HS256
	// is accepted.
	claims := &Claims{
		Username: "teacher",
		Role:     string(model.RoleTeacher),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gradekit",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/quizzes", unsigned, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unsigned token: status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "teacher", "correct-horse", true)
	seedUser(t, s, "retired", "whatever", false)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "teacher", "wrong"},
		{"unknown user", "nobody", "correct-horse"},
		{"inactive user", "retired", "whatever"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"username": tt.username, "password": tt.password})
			resp, err := http.Post(srv.URL+"/api/login", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestQuizLifecycleAndGrading(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "teacher", "correct-horse", true)
	token := login(t, srv, "teacher", "correct-horse")

	// Create.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/quizzes", token, choiceQuiz())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created map[string]string
	decodeBody(t, resp, &created)
	quizID := created["id"]
	if quizID == "" {
		t.Fatal("create returned empty id")
	}

	// Fetch.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quizzes/"+quizID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var quiz model.Quiz
	decodeBody(t, resp, &quiz)
	if len(quiz.Questions) != 2 {
		t.Fatalf("quiz = %+v", quiz)
	}

	// Grade: one right, one wrong.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/quizzes/"+quizID+"/grade", token, map[string]any{
		"responses": map[string]string{"q1": "red", "q2": "yes"},
		"policy":    "balanced",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grade status = %d", resp.StatusCode)
	}
	var graded struct {
		ReportID string `json:"report_id"`
		model.Report
	}
	decodeBody(t, resp, &graded)
	if graded.ReportID == "" {
		t.Fatal("grade response has no report_id")
	}
	if graded.TotalScore != 1 || graded.MaxTotal != 2 || graded.Percentage != 50 {
		t.Errorf("report = %+v", graded.Report)
	}

	// The report is retrievable afterwards.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/reports/"+graded.ReportID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get report status = %d", resp.StatusCode)
	}
	var report model.Report
	decodeBody(t, resp, &report)
	if len(report.Items) != 2 || report.QuizID != quizID {
		t.Errorf("stored report = %+v", report)
	}

	// Listing includes it.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/reports?quiz_id="+quizID, token, nil)
	var infos []store.ReportInfo
	decodeBody(t, resp, &infos)
	if len(infos) != 1 || infos[0].Policy != "balanced" {
		t.Errorf("report list = %+v", infos)
	}

	// Delete.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/quizzes/"+quizID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quizzes/"+quizID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestGradeAdHoc(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "teacher", "correct-horse", true)
	token := login(t, srv, "teacher", "correct-horse")

	quiz := choiceQuiz()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/grade", token, map[string]any{
		"quiz":      quiz,
		"responses": map[string]string{"q1": "B", "q2": "false"},
		"parallel":  true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var report model.Report
	decodeBody(t, resp, &report)
	if report.TotalScore != 2 || report.MaxTotal != 2 {
		t.Errorf("report = %+v", report)
	}

	// No quiz in the body.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/grade", token, map[string]any{
		"responses": map[string]string{"q1": "B"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing quiz status = %d, want 400", resp.StatusCode)
	}
}

func TestGradeQuizNotFound(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "teacher", "correct-horse", true)
	token := login(t, srv, "teacher", "correct-horse")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/quizzes/nope/grade", token, map[string]any{
		"responses": map[string]string{},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateQuizRejectsEmpty(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "teacher", "correct-horse", true)
	token := login(t, srv, "teacher", "correct-horse")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/quizzes", token, model.Quiz{Title: "empty"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
