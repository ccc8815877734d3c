package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/pipeline"
	"github.com/pavelanni/dethi/internal/store"
	"github.com/pavelanni/dethi/internal/wizard"
	"github.com/pavelanni/dethi/internal/workspace"
)

const testCSRF = "test-csrf-token"

func TestMain(m *testing.M) {
	if err := i18n.Init("vi"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	router http.Handler
	store  *store.Store
	wm     *workspace.Manager
	mock   *llm.MockProvider
}

func newTestEnv(t *testing.T, cfg model.AppConfig) *testEnv {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mock := llm.NewMockProvider()
	wm := workspace.NewManager(time.Hour)
	h := New(s, wm, pipeline.New(mock, pipeline.WithTimeout(5*time.Second)), cfg)

	r := chi.NewRouter()
	r.Use(i18n.Middleware("vi"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testEnv{router: r, store: s, wm: wm, mock: mock}
}

func week(v int) *int { return &v }

// seeded returns a workspace holding a two-lesson curriculum. The default
// exam type selects only the first lesson.
func (e *testEnv) seeded() *workspace.Workspace {
	ws := e.wm.Create()
	ws.Dispatch(wizard.ReplaceCurriculum{Subject: "Toán", Grade: "10", Curriculum: model.Curriculum{
		Chapters: []model.Chapter{{ID: "c1", Name: "Hàm số", TotalPeriods: 5, Lessons: []model.Lesson{
			{ID: "l1", Name: "Bài 1", Periods: 2, WeekStart: week(1), WeekEnd: week(4)},
			{ID: "l2", Name: "Bài 2", Periods: 3, WeekStart: week(12), WeekEnd: week(15)},
		}}},
	}})
	return ws
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(path, filename string, data []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("csrf_token", testCSRF)
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func wsCookie(ws *workspace.Workspace) *http.Cookie {
	return &http.Cookie{Name: workspaceCookieName, Value: ws.ID}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	rec := env.get("/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestIndexCreatesWorkspace(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	rec := env.get("/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if findCookie(rec, workspaceCookieName) == nil {
		t.Error("workspace cookie not set")
	}
	if findCookie(rec, csrfCookieName) == nil {
		t.Error("csrf cookie not set")
	}
	if env.wm.Len() != 1 {
		t.Errorf("live workspaces = %d, want 1", env.wm.Len())
	}
	body := rec.Body.String()
	for _, want := range []string{"Ma trận đề", `name="q_type1_biet"`, model.ExamMidTerm1} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestIndexReusesWorkspace(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.seeded()
	rec := env.get("/", wsCookie(ws))
	if findCookie(rec, workspaceCookieName) != nil {
		t.Error("existing workspace replaced")
	}
	if !strings.Contains(rec.Body.String(), "Hàm số") {
		t.Error("curriculum not rendered")
	}
}

func TestPostWithoutCSRF(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	form := url.Values{"csrf_token": {"wrong"}}
	req = httptest.NewRequest(http.MethodPost, "/reset", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("mismatched token status = %d, want 403", rec.Code)
	}
}

func TestGenerateMatrix(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	env.mock.AddResponse(llm.MockResponse{Text: "```html\n<table><tr><td>M</td></tr></table>\n```"})
	ws := env.seeded()

	rec := env.post("/generate/matrix", nil, wsCookie(ws))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("response = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	s := ws.Snapshot()
	if s.Stage != model.StageMatrix {
		t.Errorf("stage = %v, want matrix", s.Stage)
	}
	if s.Docs.Matrix != "<table><tr><td>M</td></tr></table>" {
		t.Errorf("matrix = %q", s.Docs.Matrix)
	}
	call, _ := env.mock.LastCall()
	if !strings.Contains(call.Prompt, "Bài 1") || strings.Contains(call.Prompt, "Bài 2") {
		t.Error("prompt does not reflect the selection")
	}

	page := env.get("/", wsCookie(ws)).Body.String()
	if !strings.Contains(page, "<td>M</td>") {
		t.Error("matrix not rendered on the page")
	}
}

func TestGenerateMatrixEmptySelection(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.wm.Create()

	rec := env.post("/generate/matrix", nil, wsCookie(ws))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.mock.CallCount() != 0 {
		t.Error("collaborator called with empty selection")
	}
	s := ws.Snapshot()
	if s.Err != "Vui lòng chọn ít nhất 1 bài học/chủ đề!" {
		t.Errorf("error = %q", s.Err)
	}
	if s.Stage != model.StageInput {
		t.Errorf("stage = %v", s.Stage)
	}
}

func TestGenerateUnknownSlot(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	rec := env.post("/generate/answers", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHTMXRedirect(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{BasePath: "/dethi"})
	form := url.Values{"csrf_token": {testCSRF}}
	req := httptest.NewRequest(http.MethodPost, "/error/dismiss", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("HX-Redirect") != "/dethi/" {
		t.Errorf("response = %d %q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
}

func TestSetCounts(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.wm.Create()

	env.post("/counts", url.Values{
		"q_type1_biet":     {"5"},
		"q_type3_hieu":     {"2.7"},
		"q_essay_van_dung": {"abc"},
		"q_type2_biet":     {"1e20"},
	}, wsCookie(ws))

	s := ws.Snapshot()
	if got := s.Questions.Get(model.TypeMultipleChoice, model.LevelRecall); got != 5 {
		t.Errorf("type1/biet = %d, want 5", got)
	}
	if got := s.Questions.Get(model.TypeShortAnswer, model.LevelComprehension); got != 2 {
		t.Errorf("type3/hieu = %d, want 2", got)
	}
	if got := s.Questions.Get(model.TypeTrueFalse, model.LevelRecall); got != 1 {
		t.Errorf("type2/biet = %d, want default 1 after out-of-range input", got)
	}
	if s.Err != "Số câu hỏi phải là số từ 0 đến 1000." {
		t.Errorf("error = %q", s.Err)
	}
}

func TestCurriculumEditing(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.seeded()
	c := wsCookie(ws)

	env.post("/lessons/l2/toggle", nil, c)
	if !ws.Snapshot().Selected("l2") {
		t.Error("toggle did not select l2")
	}
	env.post("/chapters/c1/toggle", url.Values{"select": {"false"}}, c)
	if ws.Snapshot().Selection.Len() != 0 {
		t.Error("chapter toggle did not clear selection")
	}

	env.post("/chapters/c1/lessons", url.Values{"name": {"Bài 3"}, "periods": {"1"}, "week_start": {"5"}, "week_end": {"3"}}, c)
	if got := ws.Snapshot().Err; got != "Tuần kết thúc phải sau tuần bắt đầu." {
		t.Errorf("week range error = %q", got)
	}
	env.post("/chapters/c1/lessons", url.Values{"name": {"Bài 3"}, "periods": {"1"}}, c)
	if n := len(ws.Snapshot().Curriculum.Chapters[0].Lessons); n != 3 {
		t.Errorf("lessons = %d, want 3", n)
	}

	env.post("/lessons/l1/delete", nil, c)
	if _, ok := ws.Snapshot().Curriculum.FindLesson("l1"); ok {
		t.Error("lesson l1 not removed")
	}

	env.post("/chapters", url.Values{"name": {"  "}}, c)
	if got := ws.Snapshot().Err; got != "Vui lòng nhập tên." {
		t.Errorf("empty name error = %q", got)
	}
}

func TestSetInfoExamTypeDefaultsDuration(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.wm.Create()

	env.post("/info", url.Values{
		"subject":   {"Vật lý"},
		"grade":     {"11"},
		"exam_type": {model.ExamQuiz15},
		"duration":  {"45"},
	}, wsCookie(ws))

	info := ws.Snapshot().Info
	if info.Subject != "Vật lý" || info.Grade != "11" {
		t.Errorf("info = %+v", info)
	}
	if info.ExamType != model.ExamQuiz15 || info.Duration != 15 {
		t.Errorf("exam type %q duration %d, want 15 minutes", info.ExamType, info.Duration)
	}
}

func TestUploadCurriculum(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.wm.Create()
	yaml := []byte(`subject: Hóa học
grade: "10"
chapters:
  - name: Nguyên tử
    lessons:
      - name: Thành phần nguyên tử
        periods: 2
        week_start: 1
        week_end: 2
`)
	rec := env.upload("/curriculum", "ke_hoach.yaml", yaml, wsCookie(ws))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	s := ws.Snapshot()
	if len(s.Curriculum.Chapters) != 1 || s.Info.Subject != "Hóa học" {
		t.Fatalf("curriculum not imported: %+v", s.Curriculum)
	}
	if env.mock.CallCount() != 0 {
		t.Error("structured file sent to the collaborator")
	}

	rec = env.get("/curriculum.xlsx", wsCookie(ws))
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("workbook is not a zip archive")
	}
}

func TestUploadMatrix(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	env.mock.AddResponse(llm.MockResponse{Text: "<table><tr><td>U</td></tr></table>"})
	ws := env.wm.Create()

	env.upload("/matrix/upload", "ma_tran.pdf", []byte("%PDF-1.4\n"), wsCookie(ws))
	s := ws.Snapshot()
	if s.Stage != model.StageMatrix || s.Docs.Matrix != "<table><tr><td>U</td></tr></table>" {
		t.Errorf("stage %v matrix %q", s.Stage, s.Docs.Matrix)
	}

	// Replacing keeps the stage; text files are taken as they are.
	env.post("/stage/0", nil, wsCookie(ws))
	env.upload("/matrix/replace", "ma_tran.html", []byte("<table>R</table>"), wsCookie(ws))
	s = ws.Snapshot()
	if s.Stage != model.StageInput || s.Docs.Matrix != "<table>R</table>" {
		t.Errorf("after replace: stage %v matrix %q", s.Stage, s.Docs.Matrix)
	}
}

func TestEditAndExport(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ws := env.seeded()
	c := wsCookie(ws)

	env.post("/documents/matrix", url.Values{"content": {"<p>sửa</p>"}}, c)
	if got := ws.Snapshot().Docs.Matrix; got != "<p>sửa</p>" {
		t.Fatalf("matrix = %q", got)
	}

	rec := env.get("/documents/matrix/export/doc", c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/msword" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="Ma_Tran_Toán_10.doc"`) {
		t.Errorf("disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "<body><p>sửa</p></body>") {
		t.Error("fragment not wrapped for Word")
	}

	events, err := env.store.ListExportEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListExportEvents: %v", err)
	}
	if len(events) != 1 || events[0].Slot != model.SlotMatrix || events[0].Format != "doc" {
		t.Errorf("export events = %+v", events)
	}

	if rec := env.get("/documents/matrix/export/pdf", c); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d", rec.Code)
	}
	if rec := env.get("/documents/exam/export/html", c); rec.Code != http.StatusNotFound {
		t.Errorf("empty document status = %d", rec.Code)
	}
}

func TestNavigateAndReset(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	env.mock.AddResponse(llm.MockResponse{Text: "<table>M</table>"})
	ws := env.seeded()
	c := wsCookie(ws)

	env.post("/generate/matrix", nil, c)
	env.post("/stage/0", nil, c)
	if ws.Snapshot().Stage != model.StageInput {
		t.Error("navigate back failed")
	}
	env.post("/stage/3", nil, c)
	if ws.Snapshot().Stage != model.StageInput {
		t.Error("navigated to a stage never reached")
	}
	if rec := env.post("/stage/9", nil, c); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid stage status = %d", rec.Code)
	}

	env.post("/reset", nil, c)
	s := ws.Snapshot()
	if s.Docs.Matrix != "" || len(s.Curriculum.Chapters) != 0 || s.Watermark != model.StageInput {
		t.Errorf("reset left state behind: %+v", s)
	}
}

func TestAccessGate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("bí mật"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, model.AppConfig{AccessHash: string(hash)})

	rec := env.get("/")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("ungated response = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.post("/login", url.Values{"password": {"sai"}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Mật khẩu không đúng.") {
		t.Error("login error not shown")
	}

	rec = env.post("/login", url.Values{"password": {"bí mật"}})
	access := findCookie(rec, accessCookieName)
	if rec.Code != http.StatusSeeOther || access == nil {
		t.Fatalf("login response = %d, cookie %v", rec.Code, access)
	}

	if rec := env.get("/", access); rec.Code != http.StatusOK {
		t.Errorf("gated index status = %d", rec.Code)
	}

	env.post("/logout", nil, access)
	if rec := env.get("/", access); rec.Code != http.StatusSeeOther {
		t.Errorf("after logout status = %d", rec.Code)
	}
}

func TestLoginPageWithoutGate(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	if rec := env.get("/login"); rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want redirect", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	ctx := context.Background()
	if err := env.store.AppendGenerationEvent(ctx, model.GenerationEvent{
		WorkspaceID: "ws1", Operation: "generate_matrix", Model: "mock",
		LatencyMs: 1200, InputTokens: 100, OutputTokens: 400, Success: true,
	}); err != nil {
		t.Fatalf("AppendGenerationEvent: %v", err)
	}

	rec := env.get("/history")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "generate_matrix") {
		t.Errorf("history page = %d", rec.Code)
	}

	rec = env.get("/history.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("history.json status = %d", rec.Code)
	}
	var hist model.HistoryExport
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Generations) != 1 || hist.Generations[0].OutputTokens != 400 {
		t.Errorf("generations = %+v", hist.Generations)
	}
	if hist.Exports == nil {
		t.Error("exports should be an empty list, not null")
	}
}

func TestSetLanguage(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{})
	rec := env.post("/lang", url.Values{"lang": {"en"}})
	lang := findCookie(rec, i18n.LangCookie)
	if lang == nil || lang.Value != "en" {
		t.Fatalf("language cookie = %v", lang)
	}
	if body := env.get("/", lang).Body.String(); !strings.Contains(body, "Exam Matrix") {
		t.Error("page not in English")
	}
}
