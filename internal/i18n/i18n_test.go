package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Tutor" {
		t.Errorf("T(AppTitle) = %q, want 'Tutor'", got)
	}

	got = T(ctx, "StartExam")
	if got != "Start Exam" {
		t.Errorf("T(StartExam) = %q, want 'Start Exam'", got)
	}
}

func TestTranslateKorean(t *testing.T) {
	ctx := initLang(t, "ko")

	got := T(ctx, "AppTitle")
	if got != "튜터" {
		t.Errorf("T(AppTitle) = %q, want '튜터'", got)
	}

	got = T(ctx, "StartExam")
	if got != "시험 시작" {
		t.Errorf("T(StartExam) = %q, want '시험 시작'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "ProblemsAnswered", 1)
	if got1 != "1 problem answered." {
		t.Errorf("Tp(ProblemsAnswered, 1) = %q, want '1 problem answered.'", got1)
	}

	got5 := Tp(ctx, "ProblemsAnswered", 5)
	if got5 != "5 problems answered." {
		t.Errorf("Tp(ProblemsAnswered, 5) = %q, want '5 problems answered.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ExamN", map[string]any{"ID": 42})
	if got != "Exam #42" {
		t.Errorf("Td(ExamN, ID=42) = %q, want 'Exam #42'", got)
	}

	got = Td(ctx, "FallbackIncorrect", map[string]any{"Answer": "went"})
	if got != `Not quite. The correct answer is "went".` {
		t.Errorf("Td(FallbackIncorrect) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareLangOverride(t *testing.T) {
	initLang(t, "en")

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "StartExam")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got != "Start Exam" {
		t.Errorf("default language: got %q", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?lang=ko", nil))
	if got != "시험 시작" {
		t.Errorf("?lang=ko: got %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.5")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "시험 시작" {
		t.Errorf("Accept-Language ko: got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "ko")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Start Exam" {
		t.Errorf("?lang=en over Accept-Language: got %q", got)
	}
}
