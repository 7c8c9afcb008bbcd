package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/problemgen"
)

// maxUploadBytes bounds uploaded problem files.
const maxUploadBytes = 10 << 20

type generateRequest struct {
	problemgen.Spec
	Save bool `json:"save"`
}

type generateResponse struct {
	Problems []model.Problem `json:"problems"`
	Saved    int             `json:"saved"`
}

func (h *Handler) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.UserRoleStudent
	}
	h.createUser(w, r, req)
}

func (h *Handler) handleAdminToggleUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	if me := model.UserFromContext(r.Context()); me.ID == id {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	h.toggleUser(w, r, id)
}

func (h *Handler) handleListProblems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ProblemFilter{
		Subject:    q.Get("subject"),
		Grade:      q.Get("grade"),
		Type:       model.ProblemType(q.Get("type")),
		Difficulty: model.Difficulty(q.Get("difficulty")),
	}
	problems, outcome, err := h.tutor.ListProblems(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Outcome", string(outcome))
	writeJSON(w, http.StatusOK, map[string]any{"problems": problems})
}

// handleUploadProblems imports a JSON problem file sent either as the
// problems_file field of a multipart form or as a raw JSON body named by
// the ?name= query parameter.
func (h *Handler) handleUploadProblems(w http.ResponseWriter, r *http.Request) {
	var (
		name string
		data []byte
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
		file, header, err := r.FormFile("problems_file")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
		defer file.Close()
		name = header.Filename
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
	} else {
		name = r.URL.Query().Get("name")
		data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil || name == "" {
			writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
			return
		}
	}

	res, err := h.tutor.ImportFile(r.Context(), h.store, name, data)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("uploaded problems via admin", "name", name, "count", res.Imported, "duplicate", res.Duplicate)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGenerateProblems(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ErrLLMDisabled")
		return
	}
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Spec.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	problems, err := h.generator.Generate(r.Context(), req.Spec)
	if err != nil {
		if errors.Is(err, llm.ErrProviderUnavailable) || errors.Is(err, llm.ErrRateLimit) {
			slog.Warn("problem generation unavailable", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "ErrLLMUnavailable")
			return
		}
		slog.Error("problem generation failed", "error", err)
		writeError(w, r, http.StatusBadGateway, "ErrInternal")
		return
	}

	resp := generateResponse{Problems: problems}
	if req.Save && len(problems) > 0 {
		if resp.Saved, err = h.tutor.ImportProblems(r.Context(), problems); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if resp.Problems == nil {
		resp.Problems = []model.Problem{}
	}
	writeJSON(w, http.StatusOK, resp)
}
