// Package grading scores student answers with a language model and falls
// back to a deterministic comparison when the model is unavailable.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
)

// ErrGradingUnavailable marks a failed or timed-out model call.
var ErrGradingUnavailable = errors.New("grading unavailable")

// Scores a Result may carry.
const (
	ScoreIncorrect = llm.ScoreIncorrect
	ScoreCorrect   = llm.ScoreCorrect
)

// Request is one answer to grade.
type Request struct {
	Question      string
	StudentAnswer string
	CorrectAnswer string
	Explanation   string
	Type          model.ProblemType
}

// Result is the verdict on one answer.
type Result struct {
	Score    int           `json:"score"`
	Correct  bool          `json:"correct"`
	Feedback string        `json:"feedback"`
	Outcome  model.Outcome `json:"outcome"`
}

// AnswerGrader is the model-backed grading call.
type AnswerGrader interface {
	GradeAnswer(ctx context.Context, in llm.GradeInput) (*llm.GradeResult, error)
}

// Grader grades answers. A Grader without a model only uses the fallback.
type Grader struct {
	model AnswerGrader
}

// New creates a Grader. Pass a nil interface to grade without a model.
func New(m AnswerGrader) *Grader {
	return &Grader{model: m}
}

// Grade returns a verdict for req. It never fails: model errors switch to
// the deterministic comparison and the outcome becomes OutcomeDegraded.
func (g *Grader) Grade(ctx context.Context, req Request) Result {
	if g.model == nil {
		return Fallback(ctx, req)
	}
	res, err := g.gradeWithModel(ctx, req)
	if err != nil {
		slog.Warn("falling back to exact-match grading", "type", req.Type, "error", err)
		return Fallback(ctx, req)
	}
	return res
}

func (g *Grader) gradeWithModel(ctx context.Context, req Request) (Result, error) {
	out, err := g.model.GradeAnswer(ctx, llm.GradeInput{
		Question:      req.Question,
		StudentAnswer: req.StudentAnswer,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		Objective:     req.Type == model.ProblemObjective,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}

	correct := out.Score >= ScoreCorrect
	res := Result{
		Score:    ScoreIncorrect,
		Correct:  correct,
		Feedback: strings.TrimSpace(out.Feedback),
		Outcome:  model.OutcomeOK,
	}
	if correct {
		res.Score = ScoreCorrect
	}
	if res.Feedback == "" {
		res.Feedback = verdictText(ctx, correct, req.CorrectAnswer)
	}
	return res, nil
}

// Fallback grades by comparison: exact match after trimming for objective
// problems, case- and whitespace-insensitive match for short answers.
func Fallback(ctx context.Context, req Request) Result {
	correct := Matches(req.Type, req.StudentAnswer, req.CorrectAnswer)
	res := Result{
		Score:   ScoreIncorrect,
		Correct: correct,
		Outcome: model.OutcomeDegraded,
	}
	if correct {
		res.Score = ScoreCorrect
	}

	parts := []string{verdictText(ctx, correct, req.CorrectAnswer)}
	if exp := strings.TrimSpace(req.Explanation); exp != "" {
		parts = append(parts, exp)
	}
	parts = append(parts, i18n.T(ctx, "FallbackNote"))
	res.Feedback = strings.Join(parts, " ")
	return res
}

// Matches reports whether answer equals correct under the rule for t.
func Matches(t model.ProblemType, answer, correct string) bool {
	if t == model.ProblemObjective {
		return strings.TrimSpace(answer) == strings.TrimSpace(correct)
	}
	return normalize(answer) == normalize(correct)
}

// normalize lowercases s and drops all whitespace.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func verdictText(ctx context.Context, correct bool, answer string) string {
	id := "FallbackIncorrect"
	if correct {
		id = "FallbackCorrect"
	}
	return i18n.Td(ctx, id, map[string]any{"Answer": strings.TrimSpace(answer)})
}
