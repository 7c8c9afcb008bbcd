package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/tutor/internal/model"
)

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
	TeacherID   *int64         `json:"teacher_id"`
}

type overviewResponse struct {
	Overview model.ClassOverview `json:"overview"`
	Outcome  model.Outcome       `json:"outcome"`
}

// roster returns the students the current user may see: a teacher's own
// students, or every student for an admin.
func (h *Handler) roster(r *http.Request) ([]model.User, error) {
	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleAdmin {
		return h.store.ListStudents(nil)
	}
	return h.store.ListStudents(&user.ID)
}

// student loads a student the current user may manage, writing the error
// response when there is none.
func (h *Handler) student(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return nil, false
	}
	u, err := h.store.GetUserByID(id)
	if err != nil {
		slog.Error("failed to get user", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return nil, false
	}
	if u == nil || u.Role != model.UserRoleStudent {
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return nil, false
	}
	me := model.UserFromContext(r.Context())
	if me.Role != model.UserRoleAdmin && (u.TeacherID == nil || *u.TeacherID != me.ID) {
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return nil, false
	}
	return u, true
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.roster(r)
	if err != nil {
		slog.Error("failed to list students", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if students == nil {
		students = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (h *Handler) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	me := model.UserFromContext(r.Context())
	req.Role = model.UserRoleStudent
	if me.Role == model.UserRoleTeacher {
		req.TeacherID = &me.ID
	}
	h.createUser(w, r, req)
}

func (h *Handler) handleToggleStudent(w http.ResponseWriter, r *http.Request) {
	u, ok := h.student(w, r)
	if !ok {
		return
	}
	h.toggleUser(w, r, u.ID)
}

func (h *Handler) handleStudentPerformance(w http.ResponseWriter, r *http.Request) {
	u, ok := h.student(w, r)
	if !ok {
		return
	}
	sum, outcome := h.tutor.Performance(r.Context(), u.ID)
	writeJSON(w, http.StatusOK, summaryResponse{Summary: sum, Outcome: outcome})
}

func (h *Handler) handleStudentWeaknesses(w http.ResponseWriter, r *http.Request) {
	u, ok := h.student(w, r)
	if !ok {
		return
	}
	h.writeWeaknesses(w, r, u.ID)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	students, err := h.roster(r)
	if err != nil {
		slog.Error("failed to list students", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	ov, outcome := h.tutor.Overview(r.Context(), students)
	writeJSON(w, http.StatusOK, overviewResponse{Overview: ov, Outcome: outcome})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	students, err := h.roster(r)
	if err != nil {
		slog.Error("failed to list students", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	me := model.UserFromContext(r.Context())
	exp, outcome := h.tutor.ExportReport(r.Context(), me.DisplayName, students)
	w.Header().Set("X-Outcome", string(outcome))
	writeJSON(w, http.StatusOK, exp)
}

// createUser validates req and stores the user.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request, req createUserRequest) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || !req.Role.IsValid() {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		slog.Error("failed to check username", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "ErrUsernameTaken")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	if req.Role != model.UserRoleStudent {
		req.TeacherID = nil
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
		TeacherID:    req.TeacherID,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		slog.Error("failed to reload user", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) toggleUser(w http.ResponseWriter, r *http.Request, id int64) {
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
		return
	}
	if !u.Active {
		if err := h.store.RevokeUserSessions(id); err != nil {
			slog.Error("failed to revoke sessions", "id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, u)
}
