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

// QuizInfo is a quiz listing row without the question payload.
type QuizInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveQuiz stores a quiz and returns its id, assigning one if the quiz
// has none.
func (s *Store) SaveQuiz(ctx context.Context, quiz model.Quiz) (string, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	payload, err := json.Marshal(quiz.Questions)
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, title, questions_json, created_at) VALUES ($1, $2, $3, $4)`,
		quiz.ID, quiz.Title, string(payload), time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert quiz: %w", err)
	}
	return quiz.ID, nil
}

// GetQuiz returns a quiz by id, or nil when it does not exist.
func (s *Store) GetQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	var (
		quiz    model.Quiz
		payload string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, questions_json FROM quizzes WHERE id = $1`, id,
	).Scan(&quiz.ID, &quiz.Title, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &quiz.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &quiz, nil
}

// ListQuizzes returns quiz metadata, newest first.
func (s *Store) ListQuizzes(ctx context.Context) ([]QuizInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, questions_json, created_at FROM quizzes ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []QuizInfo
	for rows.Next() {
		var (
			info    QuizInfo
			payload string
		)
		if err := rows.Scan(&info.ID, &info.Title, &payload, &info.CreatedAt); err != nil {
			return nil, err
		}
		var questions []model.Question
		if err := json.Unmarshal([]byte(payload), &questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions for %s: %w", info.ID, err)
		}
		info.Questions = len(questions)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteQuiz removes a quiz and its reports.
func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE quiz_id = $1`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	return err
}
