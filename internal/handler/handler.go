// Package handler exposes the grading engine and quiz store over a JSON
// HTTP API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gradekit/gradekit/internal/grading"
	"github.com/gradekit/gradekit/internal/model"
	"github.com/gradekit/gradekit/internal/store"
)

// Config holds handler-level settings.
type Config struct {
	JWTSecret string
	// TokenTTLHours bounds issued token lifetime. Zero means 8 hours.
	TokenTTLHours int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	engine *grading.Engine
	config Config
}

// New creates a new Handler.
func New(s *store.Store, e *grading.Engine, cfg Config) *Handler {
	return &Handler{store: s, engine: e, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/healthz", h.handleHealth)
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/api/quizzes", h.handleCreateQuiz)
		r.Get("/api/quizzes", h.handleListQuizzes)
		r.Get("/api/quizzes/{quizID}", h.handleGetQuiz)
		r.Delete("/api/quizzes/{quizID}", h.handleDeleteQuiz)
		r.Post("/api/quizzes/{quizID}/grade", h.handleGradeQuiz)

		r.Post("/api/grade", h.handleGradeAdHoc)

		r.Get("/api/reports", h.handleListReports)
		r.Get("/api/reports/{reportID}", h.handleGetReport)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var quiz model.Quiz
	if err := json.NewDecoder(r.Body).Decode(&quiz); err != nil {
		respondError(w, http.StatusBadRequest, "invalid quiz JSON: "+err.Error())
		return
	}
	if len(quiz.Questions) == 0 {
		respondError(w, http.StatusBadRequest, "quiz has no questions")
		return
	}
	id, err := h.store.SaveQuiz(r.Context(), quiz)
	if err != nil {
		slog.Error("save quiz", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save quiz")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.ListQuizzes(r.Context())
	if err != nil {
		slog.Error("list quizzes", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list quizzes")
		return
	}
	if infos == nil {
		infos = []store.QuizInfo{}
	}
	respondJSON(w, http.StatusOK, infos)
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		slog.Error("get quiz", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load quiz")
		return
	}
	if quiz == nil {
		respondError(w, http.StatusNotFound, "quiz not found")
		return
	}
	respondJSON(w, http.StatusOK, quiz)
}

func (h *Handler) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		slog.Error("delete quiz", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete quiz")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// gradeRequest is the body for both grading endpoints. Quiz is only
// read by the ad-hoc endpoint.
type gradeRequest struct {
	Quiz          *model.Quiz        `json:"quiz,omitempty"`
	Responses     model.ResponseSet  `json:"responses"`
	Policy        string             `json:"policy,omitempty"`
	RubricWeights map[string]float64 `json:"rubric_weights,omitempty"`
	Parallel      bool               `json:"parallel,omitempty"`
	MaxWorkers    int                `json:"max_workers,omitempty"`
}

func (h *Handler) handleGradeQuiz(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	quiz, err := h.store.GetQuiz(r.Context(), quizID)
	if err != nil {
		slog.Error("get quiz", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load quiz")
		return
	}
	if quiz == nil {
		respondError(w, http.StatusNotFound, "quiz not found")
		return
	}

	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request JSON: "+err.Error())
		return
	}

	report := h.grade(r, *quiz, req)
	if report.Error == "" {
		reportID, err := h.store.SaveReport(r.Context(), report, req.Policy)
		if err != nil {
			slog.Error("save report", "quiz", quizID, "error", err)
		} else {
			respondJSON(w, http.StatusOK, struct {
				ReportID string `json:"report_id"`
				model.Report
			}{ReportID: reportID, Report: report})
			return
		}
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGradeAdHoc(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request JSON: "+err.Error())
		return
	}
	if req.Quiz == nil {
		respondError(w, http.StatusBadRequest, "missing quiz")
		return
	}
	respondJSON(w, http.StatusOK, h.grade(r, *req.Quiz, req))
}

func (h *Handler) grade(r *http.Request, quiz model.Quiz, req gradeRequest) model.Report {
	if req.Parallel {
		return h.engine.GradeQuizParallel(r.Context(), quiz, req.Responses, req.Policy, req.RubricWeights, req.MaxWorkers)
	}
	return h.engine.GradeQuiz(r.Context(), quiz, req.Responses, req.Policy, req.RubricWeights)
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.ListReports(r.Context(), r.URL.Query().Get("quiz_id"))
	if err != nil {
		slog.Error("list reports", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if infos == nil {
		infos = []store.ReportInfo{}
	}
	respondJSON(w, http.StatusOK, infos)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		slog.Error("get report", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if report == nil {
		respondError(w, http.StatusNotFound, "report not found")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
