package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

// CreateExamSession starts an in-progress exam session for a student.
func (s *Store) CreateExamSession(ctx context.Context, studentID int64, filter model.ProblemFilter, numProblems int) (*model.ExamSession, error) {
	raw, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_sessions (student_id, status, filter, num_problems, started_at) VALUES (?, ?, ?, ?, ?)`,
		studentID, model.StatusInProgress, string(raw), numProblems, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.ExamSession{
		ID:          id,
		StudentID:   studentID,
		Status:      model.StatusInProgress,
		Filter:      filter,
		NumProblems: numProblems,
		StartedAt:   now,
	}, nil
}

// GetExamSession returns a session by ID, or nil if there is none.
func (s *Store) GetExamSession(ctx context.Context, id int64) (*model.ExamSession, error) {
	var (
		sess   model.ExamSession
		filter string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, status, filter, num_problems, started_at, completed_at FROM exam_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.StudentID, &sess.Status, &filter, &sess.NumProblems, &sess.StartedAt, &sess.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(filter), &sess.Filter); err != nil {
		return nil, fmt.Errorf("decode filter of session %d: %w", id, err)
	}
	return &sess, nil
}

// CompleteExamSession marks a session completed. Completing twice keeps the
// first completion time.
func (s *Store) CompleteExamSession(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE exam_sessions SET status = ?, completed_at = ? WHERE id = ? AND status != ?`,
		model.StatusCompleted, time.Now().UTC(), id, model.StatusCompleted,
	)
	return err
}

// AddServedProblem records that a problem was handed out in a session.
func (s *Store) AddServedProblem(ctx context.Context, sessionID int64, problemID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO served_problems (session_id, problem_id, served_at) VALUES (?, ?, ?)`,
		sessionID, problemID, time.Now().UTC(),
	)
	return err
}

// ListServedProblems returns the problems served in a session in serve order.
func (s *Store) ListServedProblems(ctx context.Context, sessionID int64) ([]model.ServedProblem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, problem_id, served_at, answered_at FROM served_problems
		 WHERE session_id = ? ORDER BY served_at, rowid`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var served []model.ServedProblem
	for rows.Next() {
		var sp model.ServedProblem
		if err := rows.Scan(&sp.SessionID, &sp.ProblemID, &sp.ServedAt, &sp.AnsweredAt); err != nil {
			return nil, err
		}
		served = append(served, sp)
	}
	return served, rows.Err()
}

// ClaimAnswer marks a served problem answered. It reports false when the
// problem was not served in the session or already has an answer.
func (s *Store) ClaimAnswer(ctx context.Context, sessionID int64, problemID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE served_problems SET answered_at = ?
		 WHERE session_id = ? AND problem_id = ? AND answered_at IS NULL`,
		time.Now().UTC(), sessionID, problemID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
