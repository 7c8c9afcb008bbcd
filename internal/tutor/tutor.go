// Package tutor runs exam sessions: it serves adaptively selected problems,
// grades answers and keeps weakness profiles current.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/tutor/internal/grading"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/report"
	"github.com/pavelanni/tutor/internal/selector"
	"github.com/pavelanni/tutor/internal/weakness"
)

// DefaultNumProblems is the session length when none is requested.
const DefaultNumProblems = 10

// MaxNumProblems bounds the session length a student can request.
const MaxNumProblems = 100

var (
	ErrSessionNotFound  = errors.New("exam session not found")
	ErrProblemNotServed = errors.New("problem was not served in this session")
	ErrAlreadyAnswered  = errors.New("problem already answered")
	ErrProblemNotFound  = errors.New("problem not found")
	ErrInvalidFilter    = errors.New("invalid problem filter")
	ErrInvalidFile      = errors.New("invalid problem file")
)

// SessionStore persists exam sessions and the problems served in them.
type SessionStore interface {
	CreateExamSession(ctx context.Context, studentID int64, filter model.ProblemFilter, numProblems int) (*model.ExamSession, error)
	GetExamSession(ctx context.Context, id int64) (*model.ExamSession, error)
	CompleteExamSession(ctx context.Context, id int64) error
	AddServedProblem(ctx context.Context, sessionID int64, problemID string) error
	ListServedProblems(ctx context.Context, sessionID int64) ([]model.ServedProblem, error)
	ClaimAnswer(ctx context.Context, sessionID int64, problemID string) (bool, error)
}

// Options tunes a Service.
type Options struct {
	Selector    selector.Config // zero value uses selector.DefaultConfig
	Rand        *rand.Rand      // nil seeds from the runtime
	NumProblems int             // default session length
}

// Service wires the adaptive engine to exam sessions. It holds no
// per-student state; every call names the student and session it acts on.
type Service struct {
	sessions    SessionStore
	records     recordstore.Store
	weaknesses  *weakness.Store
	selector    *selector.Selector
	grader      *grading.Grader
	reports     *report.Aggregator
	bank        *problemBank
	numProblems int
	newID       func() string
	now         func() time.Time
}

// New creates a Service.
func New(sessions SessionStore, records recordstore.Store, grader *grading.Grader, opts Options) *Service {
	ws := weakness.New(records)
	if opts.NumProblems <= 0 {
		opts.NumProblems = DefaultNumProblems
	}
	if opts.Selector == (selector.Config{}) {
		opts.Selector = selector.DefaultConfig()
	}
	return &Service{
		sessions:    sessions,
		records:     records,
		weaknesses:  ws,
		selector:    selector.New(ws, opts.Selector, opts.Rand),
		grader:      grader,
		reports:     report.NewAggregator(records, ws),
		bank:        newProblemBank(),
		numProblems: opts.NumProblems,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// StartExam opens a session. numProblems <= 0 uses the configured default.
func (s *Service) StartExam(ctx context.Context, studentID int64, filter model.ProblemFilter, numProblems int) (*model.ExamSession, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, filter.Type)
	}
	if numProblems <= 0 {
		numProblems = s.numProblems
	}
	numProblems = min(numProblems, MaxNumProblems)

	sess, err := s.sessions.CreateExamSession(ctx, studentID, filter, numProblems)
	if err != nil {
		return nil, fmt.Errorf("create exam session: %w", err)
	}
	slog.Info("exam started", "session_id", sess.ID, "student_id", studentID, "num_problems", numProblems)
	return sess, nil
}

// NextProblem returns the problem the student should work on. A problem
// served but not yet answered is returned again. When the session has served
// its problem count or the pool is exhausted, the session is completed and
// the problem is nil. While the record store is unreachable problems come
// from the cached bank, and a nil problem with OutcomeUnavailable leaves the
// session open.
func (s *Service) NextProblem(ctx context.Context, studentID, sessionID int64) (*model.Problem, model.Outcome, error) {
	sess, err := s.session(ctx, studentID, sessionID)
	if err != nil {
		return nil, errOutcome(err), err
	}
	if sess.Status == model.StatusCompleted {
		return nil, model.OutcomeOK, nil
	}

	served, err := s.sessions.ListServedProblems(ctx, sessionID)
	if err != nil {
		return nil, errOutcome(err), fmt.Errorf("list served problems: %w", err)
	}
	for _, sp := range served {
		if sp.AnsweredAt == nil {
			p, outcome, err := s.problem(ctx, sp.ProblemID)
			if err != nil {
				return nil, outcome, err
			}
			return p, outcome, nil
		}
	}
	if len(served) >= sess.NumProblems {
		err := s.complete(ctx, sess.ID)
		return nil, errOutcome(err), err
	}

	all, outcome, err := s.ListProblems(ctx, sess.Filter)
	if err != nil {
		return nil, outcome, err
	}
	ids := make([]string, 0, len(served))
	for _, sp := range served {
		ids = append(ids, sp.ProblemID)
	}
	pool := selector.Remaining(all, ids)

	p, selected := s.selector.SelectNext(ctx, model.StudentKey(studentID), pool)
	outcome = outcome.Worst(selected)
	if p == nil {
		if outcome == model.OutcomeUnavailable {
			slog.Warn("no cached problem to serve", "session_id", sessionID, "served", len(served))
			return nil, outcome, nil
		}
		slog.Info("problem pool exhausted", "session_id", sessionID, "served", len(served))
		err := s.complete(ctx, sess.ID)
		return nil, outcome.Worst(errOutcome(err)), err
	}
	if err := s.sessions.AddServedProblem(ctx, sessionID, p.ID); err != nil {
		return nil, outcome.Worst(errOutcome(err)), fmt.Errorf("record served problem: %w", err)
	}
	slog.Debug("served problem", "session_id", sessionID, "problem_id", p.ID, "keywords", p.KeywordTag, "outcome", outcome)
	return p, outcome, nil
}

// AnswerResult is the graded answer together with what the student needs to
// learn from it.
type AnswerResult struct {
	grading.Result
	AnswerID         string   `json:"answer_id"`
	ProblemID        string   `json:"problem_id"`
	CorrectAnswer    string   `json:"correct_answer"`
	Explanation      string   `json:"explanation"`
	Keywords         []string `json:"keywords"`
	SessionCompleted bool     `json:"session_completed"`
}

// SubmitAnswer grades an answer to a problem served in the session, appends
// the answer event and updates the weakness profile for every keyword of the
// problem. Store failures after grading lower the outcome instead of failing
// the call.
func (s *Service) SubmitAnswer(ctx context.Context, studentID, sessionID int64, problemID, answer string) (*AnswerResult, error) {
	sess, err := s.session(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}

	served, err := s.sessions.ListServedProblems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list served problems: %w", err)
	}
	answered, found := 0, false
	for _, sp := range served {
		if sp.ProblemID == problemID {
			found = true
			if sp.AnsweredAt != nil {
				return nil, ErrAlreadyAnswered
			}
		}
		if sp.AnsweredAt != nil {
			answered++
		}
	}
	if !found {
		return nil, ErrProblemNotServed
	}

	p, loaded, err := s.problem(ctx, problemID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.sessions.ClaimAnswer(ctx, sessionID, problemID)
	if err != nil {
		return nil, fmt.Errorf("mark problem answered: %w", err)
	}
	if !claimed {
		return nil, ErrAlreadyAnswered
	}

	res := s.grader.Grade(ctx, grading.Request{
		Question:      p.Content,
		StudentAnswer: answer,
		CorrectAnswer: p.CorrectAnswer,
		Explanation:   p.Explanation,
		Type:          p.Type,
	})
	studentKey := model.StudentKey(studentID)

	ev := model.AnswerEvent{
		ID:          s.newID(),
		StudentID:   studentKey,
		SessionID:   sessionID,
		ProblemID:   problemID,
		Answer:      answer,
		Correct:     res.Correct,
		Score:       res.Score,
		Feedback:    res.Feedback,
		SubmittedAt: s.now().UTC(),
	}
	outcome := res.Outcome.Worst(loaded)
	if err := s.records.Append(ctx, recordstore.Answers, ev.Fields()); err != nil {
		slog.Error("failed to append answer event", "session_id", sessionID, "problem_id", problemID, "error", err)
		outcome = outcome.Worst(model.OutcomeUnavailable)
	}
	outcome = outcome.Worst(s.weaknesses.RecordAnswer(ctx, studentKey, p.KeywordTag, res.Correct))
	res.Outcome = outcome

	out := &AnswerResult{
		Result:        res,
		AnswerID:      ev.ID,
		ProblemID:     problemID,
		CorrectAnswer: p.CorrectAnswer,
		Explanation:   p.Explanation,
		Keywords:      weakness.ExtractKeywords(p.KeywordTag),
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if answered+1 >= sess.NumProblems {
		if err := s.complete(ctx, sessionID); err != nil {
			slog.Error("failed to complete exam session", "session_id", sessionID, "error", err)
		} else {
			out.SessionCompleted = true
		}
	}
	slog.Info("answer graded", "session_id", sessionID, "problem_id", problemID, "correct", res.Correct, "outcome", outcome)
	return out, nil
}

// Performance summarizes a student's answer history.
func (s *Service) Performance(ctx context.Context, studentID int64) (model.PerformanceSummary, model.Outcome) {
	return s.reports.Summarize(ctx, model.StudentKey(studentID))
}

// Weaknesses returns a student's per-keyword stats.
func (s *Service) Weaknesses(ctx context.Context, studentID int64) (map[string]model.WeaknessStat, model.Outcome) {
	return s.weaknesses.GetWeaknesses(ctx, model.StudentKey(studentID))
}

// Overview summarizes a roster.
func (s *Service) Overview(ctx context.Context, students []model.User) (model.ClassOverview, model.Outcome) {
	ids := make([]string, len(students))
	active := 0
	for i, u := range students {
		ids[i] = u.StudentKey()
		if u.Active {
			active++
		}
	}
	ov, outcome := s.reports.Overview(ctx, ids)
	ov.ActiveStudents = active
	return ov, outcome
}

func (s *Service) session(ctx context.Context, studentID, sessionID int64) (*model.ExamSession, error) {
	sess, err := s.sessions.GetExamSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get exam session %d: %w", sessionID, err)
	}
	if sess == nil || sess.StudentID != studentID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// errOutcome is the outcome reported alongside err.
func errOutcome(err error) model.Outcome {
	if errors.Is(err, recordstore.ErrUnavailable) {
		return model.OutcomeUnavailable
	}
	return model.OutcomeOK
}

func (s *Service) complete(ctx context.Context, sessionID int64) error {
	if err := s.sessions.CompleteExamSession(ctx, sessionID); err != nil {
		return fmt.Errorf("complete exam session: %w", err)
	}
	slog.Info("exam completed", "session_id", sessionID)
	return nil
}
