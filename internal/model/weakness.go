package model

import (
	"errors"
	"strconv"
	"time"
)

// ErrMalformedRecord marks a stored row that is missing or has unparsable
// required fields. Such rows are left out of computations.
var ErrMalformedRecord = errors.New("malformed record")

// WeaknessRecord holds attempt counters for one (student, keyword) pair.
type WeaknessRecord struct {
	StudentID     string
	Keyword       string
	Attempts      int
	Correct       int
	LastAttemptAt time.Time
}

// Accuracy is correct/attempts, or 0 before the first attempt.
func (w WeaknessRecord) Accuracy() float64 {
	if w.Attempts <= 0 {
		return 0
	}
	return float64(w.Correct) / float64(w.Attempts)
}

// Stat converts the record into its reporting view.
func (w WeaknessRecord) Stat() WeaknessStat {
	acc := w.Accuracy()
	return WeaknessStat{
		Attempts:      w.Attempts,
		Correct:       w.Correct,
		Accuracy:      acc,
		WeaknessScore: 1 - acc,
	}
}

// WeaknessStat is what callers see for one keyword.
type WeaknessStat struct {
	Attempts      int     `json:"attempts"`
	Correct       int     `json:"correct"`
	Accuracy      float64 `json:"accuracy"`
	WeaknessScore float64 `json:"weakness_score"`
}

// KeywordWeakness pairs a keyword with its stats for ranked listings.
type KeywordWeakness struct {
	Keyword string `json:"keyword"`
	WeaknessStat
}

// WeaknessKey is the record-store key of a (student, keyword) pair.
func WeaknessKey(studentID, keyword string) string {
	return studentID + "|" + keyword
}

// StudentKey formats a user ID the way the record store identifies students.
func StudentKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// AnswerEvent is one graded answer.
type AnswerEvent struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	SessionID   int64     `json:"session_id"`
	ProblemID   string    `json:"problem_id"`
	Answer      string    `json:"answer"`
	Correct     bool      `json:"correct"`
	Score       int       `json:"score"`
	Feedback    string    `json:"feedback"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PerformanceSummary is the reporting view of a student's answer history.
type PerformanceSummary struct {
	StudentID        string            `json:"student_id"`
	NoData           bool              `json:"no_data"`
	TotalProblems    int               `json:"total_problems"`
	CorrectAnswers   int               `json:"correct_answers"`
	IncorrectAnswers int               `json:"incorrect_answers"`
	Accuracy         float64           `json:"accuracy"`
	RecentTrend      []bool            `json:"recent_trend"`
	RankedWeaknesses []KeywordWeakness `json:"ranked_weaknesses"`
}
