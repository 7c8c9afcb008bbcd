package handler

import (
	"net/http"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/report"
)

type startExamRequest struct {
	model.ProblemFilter
	NumProblems int `json:"num_problems"`
}

// problemView is a problem as shown to a student, without its answer.
type problemView struct {
	ID         string            `json:"id"`
	Subject    string            `json:"subject"`
	Grade      string            `json:"grade"`
	Type       model.ProblemType `json:"type"`
	Difficulty model.Difficulty  `json:"difficulty"`
	Keywords   string            `json:"keywords"`
	Content    string            `json:"content"`
	Options    []string          `json:"options,omitempty"`
}

func newProblemView(p *model.Problem) *problemView {
	if p == nil {
		return nil
	}
	return &problemView{
		ID:         p.ID,
		Subject:    p.Subject,
		Grade:      p.Grade,
		Type:       p.Type,
		Difficulty: p.Difficulty,
		Keywords:   p.KeywordTag,
		Content:    p.Content,
		Options:    p.Options,
	}
}

type nextProblemResponse struct {
	Problem   *problemView  `json:"problem"`
	Completed bool          `json:"completed"`
	Outcome   model.Outcome `json:"outcome"`
}

type answerRequest struct {
	ProblemID string `json:"problem_id"`
	Answer    string `json:"answer"`
}

type summaryResponse struct {
	Summary model.PerformanceSummary `json:"summary"`
	Outcome model.Outcome            `json:"outcome"`
}

type weaknessResponse struct {
	Weaknesses map[string]model.WeaknessStat `json:"weaknesses"`
	Ranked     []model.KeywordWeakness       `json:"ranked"`
	Outcome    model.Outcome                 `json:"outcome"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req startExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NumProblems <= 0 {
		req.NumProblems = h.config.NumProblems
	}

	sess, err := h.tutor.StartExam(r.Context(), user.ID, req.ProblemFilter, req.NumProblems)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleNextProblem(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessionID, ok := idParam(w, r, "sessionID")
	if !ok {
		return
	}

	p, outcome, err := h.tutor.NextProblem(r.Context(), user.ID, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nextProblemResponse{
		Problem:   newProblemView(p),
		Completed: p == nil && outcome != model.OutcomeUnavailable,
		Outcome:   outcome,
	})
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessionID, ok := idParam(w, r, "sessionID")
	if !ok {
		return
	}
	var req answerRequest
	if isJSON(r) {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		req.ProblemID = r.FormValue("problem_id")
		req.Answer = r.FormValue("answer")
	}
	if req.ProblemID == "" {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	res, err := h.tutor.SubmitAnswer(r.Context(), user.ID, sessionID, req.ProblemID, req.Answer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleMyPerformance(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sum, outcome := h.tutor.Performance(r.Context(), user.ID)
	writeJSON(w, http.StatusOK, summaryResponse{Summary: sum, Outcome: outcome})
}

func (h *Handler) handleMyWeaknesses(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	h.writeWeaknesses(w, r, user.ID)
}

func (h *Handler) writeWeaknesses(w http.ResponseWriter, r *http.Request, studentID int64) {
	stats, outcome := h.tutor.Weaknesses(r.Context(), studentID)
	writeJSON(w, http.StatusOK, weaknessResponse{
		Weaknesses: stats,
		Ranked:     report.RankWeaknesses(stats),
		Outcome:    outcome,
	})
}
