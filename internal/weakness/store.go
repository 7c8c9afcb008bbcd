// Package weakness tracks per-student, per-keyword attempt counters.
package weakness

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
)

// Store reads and updates weakness records in a record store.
type Store struct {
	records recordstore.Store
	now     func() time.Time
}

// New creates a Store backed by records.
func New(records recordstore.Store) *Store {
	return &Store{records: records, now: time.Now}
}

// RecordAttempt adds one attempt for (studentID, keyword), counting it as
// correct when correct is true. A store failure is logged and reported as
// OutcomeUnavailable.
func (s *Store) RecordAttempt(ctx context.Context, studentID, keyword string, correct bool) model.Outcome {
	keyword = strings.TrimSpace(keyword)
	if studentID == "" || keyword == "" {
		slog.Debug("skipping weakness update without student or keyword", "student_id", studentID, "keyword", keyword)
		return model.OutcomeOK
	}

	rows, err := s.records.Get(ctx, recordstore.Weaknesses, recordstore.Filter{
		model.FieldStudentID: studentID,
		model.FieldKeyword:   keyword,
	})
	if err != nil {
		slog.Error("failed to read weakness record", "student_id", studentID, "keyword", keyword, "error", err)
		return model.OutcomeUnavailable
	}

	rec := model.WeaknessRecord{StudentID: studentID, Keyword: keyword}
	if len(rows) > 0 {
		existing, err := model.WeaknessFromFields(rows[len(rows)-1])
		if err != nil {
			slog.Warn("resetting malformed weakness record", "student_id", studentID, "keyword", keyword, "error", err)
		} else {
			rec = existing
		}
	}

	rec.Attempts++
	if correct {
		rec.Correct++
	}
	rec.LastAttemptAt = s.now()

	if err := s.records.Upsert(ctx, recordstore.Weaknesses, model.WeaknessKey(studentID, keyword), rec.Fields()); err != nil {
		slog.Error("failed to write weakness record", "student_id", studentID, "keyword", keyword, "error", err)
		return model.OutcomeUnavailable
	}
	return model.OutcomeOK
}

// RecordAnswer applies RecordAttempt to every keyword in the problem's tag,
// one after another. The worst outcome is returned.
func (s *Store) RecordAnswer(ctx context.Context, studentID, keywordTag string, correct bool) model.Outcome {
	outcome := model.OutcomeOK
	for _, kw := range ExtractKeywords(keywordTag) {
		outcome = outcome.Worst(s.RecordAttempt(ctx, studentID, kw, correct))
	}
	return outcome
}

// GetWeaknesses returns the stats of every keyword the student has attempted.
// A student without history gets an empty map. When the store cannot be read
// the map is empty and the outcome is OutcomeDegraded.
func (s *Store) GetWeaknesses(ctx context.Context, studentID string) (map[string]model.WeaknessStat, model.Outcome) {
	out := make(map[string]model.WeaknessStat)
	if studentID == "" {
		return out, model.OutcomeOK
	}

	rows, err := s.records.Get(ctx, recordstore.Weaknesses, recordstore.Filter{model.FieldStudentID: studentID})
	if err != nil {
		level := slog.LevelError
		if !errors.Is(err, recordstore.ErrUnavailable) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "failed to load weaknesses, treating as no history", "student_id", studentID, "error", err)
		return out, model.OutcomeDegraded
	}

	for _, row := range rows {
		rec, err := model.WeaknessFromFields(row)
		if err != nil {
			slog.Warn("skipping malformed weakness record", "student_id", studentID, "error", err)
			continue
		}
		out[rec.Keyword] = rec.Stat()
	}
	return out, model.OutcomeOK
}
