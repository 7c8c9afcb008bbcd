package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsValid reports whether r is one of the known roles.
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	TeacherID    *int64    `json:"teacher_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StudentKey is the identifier used for a student in the record store.
func (u User) StudentKey() string {
	return StudentKey(u.ID)
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Outcome tells a caller how a best-effort operation went.
type Outcome string

const (
	// OutcomeOK means the operation completed against the backing services.
	OutcomeOK Outcome = "ok"
	// OutcomeDegraded means a fallback produced the result.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeUnavailable means the operation could not be performed.
	OutcomeUnavailable Outcome = "unavailable"
)

// Worst returns the more severe of two outcomes.
func (o Outcome) Worst(other Outcome) Outcome {
	rank := func(x Outcome) int {
		switch x {
		case OutcomeUnavailable:
			return 2
		case OutcomeDegraded:
			return 1
		}
		return 0
	}
	if rank(other) > rank(o) {
		return other
	}
	return o
}

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// ExamSession is one sitting of a student working through selected problems.
type ExamSession struct {
	ID          int64         `json:"id"`
	StudentID   int64         `json:"student_id"`
	Status      SessionStatus `json:"status"`
	Filter      ProblemFilter `json:"filter"`
	NumProblems int           `json:"num_problems"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// ServedProblem records a problem handed out within an exam session.
type ServedProblem struct {
	SessionID  int64      `json:"-"`
	ProblemID  string     `json:"problem_id"`
	ServedAt   time.Time  `json:"served_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// Config holds runtime server parameters set via CLI flags.
type Config struct {
	NumProblems   int    // default problems per exam session
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	PromptVariant string // Grading prompt variant (strict, standard, lenient)
	Lang          string
}
