package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradekit/gradekit/internal/model"
)

// ReportInfo is a report listing row without the item payload.
type ReportInfo struct {
	ID         string    `json:"id"`
	QuizID     string    `json:"quiz_id"`
	Policy     string    `json:"policy"`
	TotalScore float64   `json:"total_score"`
	MaxTotal   float64   `json:"max_total"`
	Percentage float64   `json:"percentage"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveReport stores a grading report and returns its generated id.
func (s *Store) SaveReport(ctx context.Context, report model.Report, policy string) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, quiz_id, policy, total_score, max_total, percentage, payload_json, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, report.QuizID, policy, report.TotalScore, report.MaxTotal, report.Percentage,
		string(payload), time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

// GetReport returns a stored report by id, or nil when it does not exist.
func (s *Store) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload_json FROM reports WHERE id = $1`, id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report model.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// ListReports returns report metadata, newest first. An empty quizID
// lists reports for every quiz.
func (s *Store) ListReports(ctx context.Context, quizID string) ([]ReportInfo, error) {
	query := `SELECT id, quiz_id, policy, total_score, max_total, percentage, created_at
		 FROM reports ORDER BY created_at DESC`
	var args []any
	if quizID != "" {
		query = `SELECT id, quiz_id, policy, total_score, max_total, percentage, created_at
			 FROM reports WHERE quiz_id = $1 ORDER BY created_at DESC`
		args = append(args, quizID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []ReportInfo
	for rows.Next() {
		var info ReportInfo
		if err := rows.Scan(&info.ID, &info.QuizID, &info.Policy, &info.TotalScore,
			&info.MaxTotal, &info.Percentage, &info.CreatedAt); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ResultRow is one flattened question result for CSV export.
type ResultRow struct {
	ReportID   string
	QuizID     string
	QuizTitle  string
	Policy     string
	QuestionID string
	Type       string
	Score      float64
	MaxScore   float64
	Verdict    string
	Feedback   string
	CreatedAt  time.Time
}

// ExportResults flattens every stored report into per-question rows.
func (s *Store) ExportResults(ctx context.Context, quizID string) ([]ResultRow, error) {
	infos, err := s.ListReports(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	titles := make(map[string]string)
	var rowsOut []ResultRow
	for _, info := range infos {
		report, err := s.GetReport(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("get report %s: %w", info.ID, err)
		}
		if report == nil {
			continue
		}

		title, ok := titles[info.QuizID]
		if !ok {
			if quiz, err := s.GetQuiz(ctx, info.QuizID); err == nil && quiz != nil {
				title = quiz.Title
			}
			titles[info.QuizID] = title
		}

		for _, item := range report.Items {
			rowsOut = append(rowsOut, ResultRow{
				ReportID:   info.ID,
				QuizID:     info.QuizID,
				QuizTitle:  title,
				Policy:     info.Policy,
				QuestionID: item.QuestionID,
				Type:       string(item.Type),
				Score:      item.Score,
				MaxScore:   item.MaxScore,
				Verdict:    string(item.Verdict),
				Feedback:   item.Feedback,
				CreatedAt:  info.CreatedAt,
			})
		}
	}
	return rowsOut, nil
}
