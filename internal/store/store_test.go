package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/recordstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole, teacherID *int64) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "hash",
		Role:         role,
		Active:       true,
		TeacherID:    teacherID,
	})
	if err != nil {
		t.Fatalf("createTestUser: %v", err)
	}
	return id
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	teacher := createTestUser(t, s, "kim", model.UserRoleTeacher, nil)
	other := createTestUser(t, s, "lee", model.UserRoleTeacher, nil)
	s1 := createTestUser(t, s, "s1", model.UserRoleStudent, &teacher)
	createTestUser(t, s, "s2", model.UserRoleStudent, &other)
	createTestUser(t, s, "s3", model.UserRoleStudent, &teacher)

	u, err := s.GetUserByID(s1)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u == nil || u.Username != "s1" || u.Role != model.UserRoleStudent || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.TeacherID == nil || *u.TeacherID != teacher {
		t.Errorf("expected teacher_id %d, got %v", teacher, u.TeacherID)
	}

	tu, _ := s.GetUserByUsername("kim")
	if tu == nil || tu.TeacherID != nil {
		t.Errorf("expected teacher without teacher_id, got %+v", tu)
	}

	missing, err := s.GetUserByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing user, got %v, %v", missing, err)
	}

	// Duplicate usernames are rejected.
	if _, err := s.CreateUser(model.User{Username: "s1", PasswordHash: "x", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected error for duplicate username")
	}

	roster, err := s.ListStudents(&teacher)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if len(roster) != 2 || roster[0].Username != "s1" || roster[1].Username != "s3" {
		t.Errorf("unexpected roster %+v", roster)
	}
	all, _ := s.ListStudents(nil)
	if len(all) != 3 {
		t.Errorf("expected 3 students, got %d", len(all))
	}
	users, _ := s.ListUsers()
	if len(users) != 5 {
		t.Errorf("expected 5 users, got %d", len(users))
	}

	if err := s.ToggleUserActive(s1); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(s1)
	if u.Active {
		t.Error("expected user to be inactive after toggle")
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "s1", model.UserRoleStudent, nil)

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v, %v", sess, err)
	}
	if sess.UserID != uid {
		t.Errorf("expected user %d, got %d", uid, sess.UserID)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, _ = s.GetAuthSession(token)
	if sess != nil {
		t.Error("expected session to be gone after delete")
	}
}

func TestExamSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := createTestUser(t, s, "s1", model.UserRoleStudent, nil)

	filter := model.ProblemFilter{Grade: "7", Type: model.ProblemObjective}
	created, err := s.CreateExamSession(ctx, uid, filter, 5)
	if err != nil {
		t.Fatalf("CreateExamSession: %v", err)
	}

	sess, err := s.GetExamSession(ctx, created.ID)
	if err != nil || sess == nil {
		t.Fatalf("GetExamSession: %v, %v", sess, err)
	}
	if sess.Status != model.StatusInProgress || sess.NumProblems != 5 || sess.StudentID != uid {
		t.Errorf("unexpected session %+v", sess)
	}
	if sess.Filter != filter {
		t.Errorf("expected filter %+v, got %+v", filter, sess.Filter)
	}
	if sess.CompletedAt != nil {
		t.Error("expected no completion time")
	}

	if err := s.CompleteExamSession(ctx, created.ID); err != nil {
		t.Fatalf("CompleteExamSession: %v", err)
	}
	sess, _ = s.GetExamSession(ctx, created.ID)
	if sess.Status != model.StatusCompleted || sess.CompletedAt == nil {
		t.Errorf("expected completed session, got %+v", sess)
	}

	missing, err := s.GetExamSession(ctx, 9999)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing session, got %v, %v", missing, err)
	}
}

func TestServedProblems(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := createTestUser(t, s, "s1", model.UserRoleStudent, nil)
	sess, _ := s.CreateExamSession(ctx, uid, model.ProblemFilter{}, 3)

	for _, id := range []string{"p1", "p2"} {
		if err := s.AddServedProblem(ctx, sess.ID, id); err != nil {
			t.Fatalf("AddServedProblem(%s): %v", id, err)
		}
	}
	if err := s.AddServedProblem(ctx, sess.ID, "p1"); err == nil {
		t.Error("expected error serving the same problem twice")
	}

	served, err := s.ListServedProblems(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListServedProblems: %v", err)
	}
	if len(served) != 2 || served[0].ProblemID != "p1" || served[1].ProblemID != "p2" {
		t.Fatalf("unexpected served problems %+v", served)
	}

	tests := []struct {
		name      string
		problemID string
		want      bool
	}{
		{"first answer", "p1", true},
		{"second answer", "p1", false},
		{"never served", "p9", false},
	}
	for _, tt := range tests {
		got, err := s.ClaimAnswer(ctx, sess.ID, tt.problemID)
		if err != nil {
			t.Fatalf("%s: ClaimAnswer: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	served, _ = s.ListServedProblems(ctx, sess.ID)
	if served[0].AnsweredAt == nil || served[1].AnsweredAt != nil {
		t.Errorf("unexpected answered state %+v", served)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("grade7.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("grade7.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("grade7.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	if err := s.SetImportedFileHash("grade7.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("grade7.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Get(ctx, recordstore.Weaknesses, recordstore.Filter{model.FieldStudentID: "1"})
	if err != nil {
		t.Fatalf("Get on empty store: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no records, got %d", len(empty))
	}

	upsert := func(student, keyword, attempts string) {
		t.Helper()
		r := recordstore.Record{model.FieldStudentID: student, model.FieldKeyword: keyword, model.FieldAttempts: attempts}
		if err := s.Upsert(ctx, recordstore.Weaknesses, model.WeaknessKey(student, keyword), r); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	upsert("1", "tense", "1")
	upsert("1", "article", "1")
	upsert("2", "tense", "1")
	upsert("1", "tense", "2")

	got, err := s.Get(ctx, recordstore.Weaknesses, recordstore.Filter{model.FieldStudentID: "1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// The upserted record keeps its first position and carries the new value.
	if got[0][model.FieldKeyword] != "tense" || got[0][model.FieldAttempts] != "2" {
		t.Errorf("unexpected first record %v", got[0])
	}
	if got[1][model.FieldKeyword] != "article" {
		t.Errorf("unexpected second record %v", got[1])
	}

	both, _ := s.Get(ctx, recordstore.Weaknesses, recordstore.Filter{model.FieldStudentID: "1", model.FieldKeyword: "article"})
	if len(both) != 1 {
		t.Errorf("expected 1 record for two-field filter, got %d", len(both))
	}

	for i := range 3 {
		r := recordstore.Record{model.FieldStudentID: "1", model.FieldAnswerID: string(rune('a' + i))}
		if err := s.Append(ctx, recordstore.Answers, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	answers, _ := s.Get(ctx, recordstore.Answers, nil)
	if len(answers) != 3 || answers[0][model.FieldAnswerID] != "a" || answers[2][model.FieldAnswerID] != "c" {
		t.Errorf("unexpected answers %v", answers)
	}

	// Collections do not leak into each other.
	weak, _ := s.Get(ctx, recordstore.Weaknesses, nil)
	if len(weak) != 3 {
		t.Errorf("expected 3 weakness records, got %d", len(weak))
	}
}

func TestRecordsUnavailableAfterClose(t *testing.T) {
	ctx := context.Background()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()

	if _, err := s.Get(ctx, recordstore.Answers, nil); !errors.Is(err, recordstore.ErrUnavailable) {
		t.Errorf("Get: expected ErrUnavailable, got %v", err)
	}
	if err := s.Append(ctx, recordstore.Answers, recordstore.Record{"a": "b"}); !errors.Is(err, recordstore.ErrUnavailable) {
		t.Errorf("Append: expected ErrUnavailable, got %v", err)
	}
	if err := s.Upsert(ctx, recordstore.Weaknesses, "k", recordstore.Record{"a": "b"}); !errors.Is(err, recordstore.ErrUnavailable) {
		t.Errorf("Upsert: expected ErrUnavailable, got %v", err)
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "s1", model.UserRoleStudent, nil)

	past := time.Now().Add(-time.Hour)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"stale", uid, past.Add(-authSessionTTL), past,
	); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}
	sess, err := s.GetAuthSession("stale")
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Error("expected expired session to be rejected")
	}
}

func TestAuthSessionSlidesForward(t *testing.T) {
	s := newTestStore(t)
	uid := createTestUser(t, s, "s1", model.UserRoleStudent, nil)

	soon := time.Now().UTC().Add(time.Hour)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"aging", uid, soon.Add(-authSessionTTL), soon,
	); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	sess, err := s.GetAuthSession("aging")
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v, %v", sess, err)
	}
	if time.Until(sess.ExpiresAt) < authSessionTTL-time.Minute {
		t.Errorf("expected expiry pushed to a full TTL, got %v left", time.Until(sess.ExpiresAt))
	}
}

func TestRevokeAndCleanupSessions(t *testing.T) {
	s := newTestStore(t)
	a := createTestUser(t, s, "a", model.UserRoleStudent, nil)
	b := createTestUser(t, s, "b", model.UserRoleStudent, nil)

	ta1, _ := s.CreateAuthSession(a)
	ta2, _ := s.CreateAuthSession(a)
	tb, _ := s.CreateAuthSession(b)

	if err := s.RevokeUserSessions(a); err != nil {
		t.Fatalf("RevokeUserSessions: %v", err)
	}
	for _, tok := range []string{ta1, ta2} {
		if sess, _ := s.GetAuthSession(tok); sess != nil {
			t.Errorf("expected token %s revoked", tok[:8])
		}
	}
	if sess, _ := s.GetAuthSession(tb); sess == nil {
		t.Error("expected other user's session to survive")
	}

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"stale", b, past.Add(-authSessionTTL), past,
	); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}
	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}
}
