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

func TestTranslateVietnamese(t *testing.T) {
	ctx := initLang(t, "vi")

	if got := T(ctx, "StageMatrix"); got != "Ma trận đề" {
		t.Errorf("T(StageMatrix) = %q, want 'Ma trận đề'", got)
	}
	if got := T(ctx, "ErrEmptySelection"); got != "Vui lòng chọn ít nhất 1 bài học/chủ đề!" {
		t.Errorf("T(ErrEmptySelection) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "StageMatrix"); got != "Exam Matrix" {
		t.Errorf("T(StageMatrix) = %q, want 'Exam Matrix'", got)
	}
}

func TestDefaultLanguageFallback(t *testing.T) {
	if err := Init("vi"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := WithLocalizer(context.Background(), NewLocalizer("fr"))
	if got := T(ctx, "Save"); got != "Lưu" {
		t.Errorf("T(Save) with fr = %q, want Vietnamese fallback 'Lưu'", got)
	}

	// No localizer in the context at all.
	if got := T(context.Background(), "Save"); got != "Lưu" {
		t.Errorf("T(Save) without localizer = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "PeriodsN", 1); got != "1 period" {
		t.Errorf("Tp(PeriodsN, 1) = %q, want '1 period'", got)
	}
	if got := Tp(ctx, "PeriodsN", 5); got != "5 periods" {
		t.Errorf("Tp(PeriodsN, 5) = %q, want '5 periods'", got)
	}

	ctx = initLang(t, "vi")
	if got := Tp(ctx, "PeriodsN", 1); got != "1 tiết" {
		t.Errorf("Tp(PeriodsN, 1) vi = %q, want '1 tiết'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "vi")

	got := Td(ctx, "ErrGenerationFailedDetail", map[string]any{"Error": "quota exceeded"})
	if got != "Có lỗi xảy ra: quota exceeded" {
		t.Errorf("Td(ErrGenerationFailedDetail) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	if err := Init("vi"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := len(Languages()); got != 2 {
		t.Fatalf("Languages() = %d tags, want 2", got)
	}
	vi := WithLocalizer(context.Background(), NewLocalizer("vi"))
	en := WithLocalizer(context.Background(), NewLocalizer("en"))
	for _, id := range []string{"AppTitle", "StageInput", "StageSpecs", "StageExam", "ErrGenerationTimeout", "ErrExtractionEmpty", "LoginError"} {
		if T(vi, id) == id || T(en, id) == id {
			t.Errorf("message %q missing in a locale", id)
		}
		if T(vi, id) == T(en, id) {
			t.Errorf("message %q not translated", id)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("vi"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware("vi")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Save")
	}))

	tests := []struct {
		name   string
		cookie string
		accept string
		want   string
	}{
		{"default", "", "", "Lưu"},
		{"accept language", "", "en-US,en;q=0.9", "Save"},
		{"cookie wins", "vi", "en-US", "Lưu"},
		{"cookie english", "en", "", "Save"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookie, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
