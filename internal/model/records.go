package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field names of the persisted record shapes.
const (
	FieldStudentID     = "student_id"
	FieldKeyword       = "keyword"
	FieldAttempts      = "attempts"
	FieldCorrect       = "correct"
	FieldAccuracy      = "accuracy"
	FieldLastAttemptAt = "last_attempt_at"

	FieldAnswerID    = "id"
	FieldSessionID   = "session_id"
	FieldProblemID   = "problem_id"
	FieldAnswer      = "answer"
	FieldIsCorrect   = "is_correct"
	FieldScore       = "score"
	FieldFeedback    = "feedback"
	FieldSubmittedAt = "submitted_at"

	FieldSubject       = "subject"
	FieldGrade         = "grade"
	FieldType          = "type"
	FieldDifficulty    = "difficulty"
	FieldKeywords      = "keywords"
	FieldContent       = "content"
	FieldCorrectAnswer = "correct_answer"
	FieldExplanation   = "explanation"
)

// optionField returns the field holding the i-th (1-based) option.
func optionField(i int) string {
	return "option" + strconv.Itoa(i)
}

// Fields encodes the weakness record for the record store.
func (w WeaknessRecord) Fields() map[string]string {
	return map[string]string{
		FieldStudentID:     w.StudentID,
		FieldKeyword:       w.Keyword,
		FieldAttempts:      strconv.Itoa(w.Attempts),
		FieldCorrect:       strconv.Itoa(w.Correct),
		FieldAccuracy:      strconv.FormatFloat(w.Accuracy(), 'f', 4, 64),
		FieldLastAttemptAt: w.LastAttemptAt.UTC().Format(time.RFC3339Nano),
	}
}

// WeaknessFromFields decodes a stored weakness row.
func WeaknessFromFields(f map[string]string) (WeaknessRecord, error) {
	w := WeaknessRecord{
		StudentID: f[FieldStudentID],
		Keyword:   strings.TrimSpace(f[FieldKeyword]),
	}
	if w.StudentID == "" || w.Keyword == "" {
		return w, fmt.Errorf("%w: weakness row without student or keyword", ErrMalformedRecord)
	}
	var err error
	if w.Attempts, err = strconv.Atoi(f[FieldAttempts]); err != nil {
		return w, fmt.Errorf("%w: attempts %q", ErrMalformedRecord, f[FieldAttempts])
	}
	if w.Correct, err = strconv.Atoi(f[FieldCorrect]); err != nil {
		return w, fmt.Errorf("%w: correct %q", ErrMalformedRecord, f[FieldCorrect])
	}
	if w.Attempts < 0 || w.Correct < 0 || w.Correct > w.Attempts {
		return w, fmt.Errorf("%w: counters attempts=%d correct=%d", ErrMalformedRecord, w.Attempts, w.Correct)
	}
	if ts := f[FieldLastAttemptAt]; ts != "" {
		if w.LastAttemptAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return w, fmt.Errorf("%w: last_attempt_at %q", ErrMalformedRecord, ts)
		}
	}
	return w, nil
}

// Fields encodes the answer event for the record store.
func (a AnswerEvent) Fields() map[string]string {
	return map[string]string{
		FieldAnswerID:    a.ID,
		FieldStudentID:   a.StudentID,
		FieldSessionID:   strconv.FormatInt(a.SessionID, 10),
		FieldProblemID:   a.ProblemID,
		FieldAnswer:      a.Answer,
		FieldIsCorrect:   strconv.FormatBool(a.Correct),
		FieldScore:       strconv.Itoa(a.Score),
		FieldFeedback:    a.Feedback,
		FieldSubmittedAt: a.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

// AnswerFromFields decodes a stored answer row.
func AnswerFromFields(f map[string]string) (AnswerEvent, error) {
	a := AnswerEvent{
		ID:        f[FieldAnswerID],
		StudentID: f[FieldStudentID],
		ProblemID: f[FieldProblemID],
		Answer:    f[FieldAnswer],
		Feedback:  f[FieldFeedback],
	}
	if a.StudentID == "" {
		return a, fmt.Errorf("%w: answer row without student", ErrMalformedRecord)
	}
	var err error
	if a.Correct, err = strconv.ParseBool(f[FieldIsCorrect]); err != nil {
		return a, fmt.Errorf("%w: is_correct %q", ErrMalformedRecord, f[FieldIsCorrect])
	}
	if a.SubmittedAt, err = time.Parse(time.RFC3339Nano, f[FieldSubmittedAt]); err != nil {
		return a, fmt.Errorf("%w: submitted_at %q", ErrMalformedRecord, f[FieldSubmittedAt])
	}
	if s := f[FieldSessionID]; s != "" {
		a.SessionID, _ = strconv.ParseInt(s, 10, 64)
	}
	if s := f[FieldScore]; s != "" {
		a.Score, _ = strconv.Atoi(s)
	}
	return a, nil
}

// Fields encodes the problem for the record store.
func (p Problem) Fields() map[string]string {
	f := map[string]string{
		FieldProblemID:     p.ID,
		FieldSubject:       p.Subject,
		FieldGrade:         p.Grade,
		FieldType:          string(p.Type),
		FieldDifficulty:    string(p.Difficulty),
		FieldKeywords:      p.KeywordTag,
		FieldContent:       p.Content,
		FieldCorrectAnswer: p.CorrectAnswer,
		FieldExplanation:   p.Explanation,
	}
	for i, opt := range p.Options {
		if i >= MaxOptions {
			break
		}
		f[optionField(i+1)] = opt
	}
	return f
}

// ProblemFromFields decodes a stored problem row.
func ProblemFromFields(f map[string]string) (Problem, error) {
	p := Problem{
		ID:            f[FieldProblemID],
		Subject:       f[FieldSubject],
		Grade:         f[FieldGrade],
		Type:          ProblemType(f[FieldType]),
		Difficulty:    Difficulty(f[FieldDifficulty]),
		KeywordTag:    f[FieldKeywords],
		Content:       f[FieldContent],
		CorrectAnswer: f[FieldCorrectAnswer],
		Explanation:   f[FieldExplanation],
	}
	for i := 1; i <= MaxOptions; i++ {
		if opt := strings.TrimSpace(f[optionField(i)]); opt != "" {
			p.Options = append(p.Options, opt)
		}
	}
	return p, p.Validate()
}
