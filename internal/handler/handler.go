// Package handler serves the tutor's JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/problemgen"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/store"
	"github.com/pavelanni/tutor/internal/tutor"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	tutor     *tutor.Service
	generator *problemgen.Generator // nil without an LLM
	config    model.Config
}

// New creates a new Handler. gen may be nil.
func New(s *store.Store, t *tutor.Service, gen *problemgen.Generator, cfg model.Config) *Handler {
	return &Handler{store: s, tutor: t, generator: gen, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginInfo)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Route("/api", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/me", h.handleMe)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleStudent))
				r.Post("/exams", h.handleStartExam)
				r.Get("/exams/{sessionID}/next", h.handleNextProblem)
				r.Post("/exams/{sessionID}/answers", h.handleSubmitAnswer)
				r.Get("/me/performance", h.handleMyPerformance)
				r.Get("/me/weaknesses", h.handleMyWeaknesses)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
				r.Get("/students", h.handleListStudents)
				r.Post("/students", h.handleCreateStudent)
				r.Post("/students/{userID}/toggle", h.handleToggleStudent)
				r.Get("/students/{userID}/performance", h.handleStudentPerformance)
				r.Get("/students/{userID}/weaknesses", h.handleStudentWeaknesses)
				r.Get("/overview", h.handleOverview)
				r.Get("/export", h.handleExport)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleAdminListUsers)
				r.Post("/users", h.handleAdminCreateUser)
				r.Post("/users/{userID}/toggle", h.handleAdminToggleUser)
				r.Get("/problems", h.handleListProblems)
				r.Post("/problems", h.handleUploadProblems)
				r.Post("/problems/generate", h.handleGenerateProblems)
			})
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if _, err := h.store.UserCount(); err != nil {
		slog.Error("health check failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError sends {"error": message} with the message localized.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tutor.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, "ErrSessionNotFound")
	case errors.Is(err, tutor.ErrProblemNotServed):
		writeError(w, r, http.StatusConflict, "ErrProblemNotServed")
	case errors.Is(err, tutor.ErrAlreadyAnswered):
		writeError(w, r, http.StatusConflict, "ErrAlreadyAnswered")
	case errors.Is(err, tutor.ErrProblemNotFound):
		writeError(w, r, http.StatusNotFound, "ErrNotFound")
	case errors.Is(err, tutor.ErrInvalidFilter), errors.Is(err, tutor.ErrInvalidFile), errors.Is(err, model.ErrMalformedRecord):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, recordstore.ErrUnavailable):
		slog.Error("record store unavailable", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "ErrInternal")
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal")
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return false
	}
	return true
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return 0, false
	}
	return id, true
}
