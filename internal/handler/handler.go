package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/dethi/internal/handler/views"
	appI18n "github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/pipeline"
	"github.com/pavelanni/dethi/internal/store"
	"github.com/pavelanni/dethi/internal/wizard"
	"github.com/pavelanni/dethi/internal/workspace"
)

const workspaceCookieName = "dethi_ws"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	workspaces *workspace.Manager
	pipeline   *pipeline.Pipeline
	config     model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, wm *workspace.Manager, p *pipeline.Pipeline, cfg model.AppConfig) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &Handler{store: s, workspaces: wm, pipeline: p, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.limitBody)
		r.Use(h.csrfMiddleware)

		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/lang", h.handleSetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAccess)
			r.Use(h.withWorkspace)

			r.Get("/", h.handleIndex)
			r.Post("/info", h.handleSetInfo)
			r.Post("/filter", h.handleApplyFilter)
			r.Post("/counts", h.handleSetCounts)
			r.Post("/chapters", h.handleAddChapter)
			r.Post("/chapters/{chapterID}/toggle", h.handleToggleChapter)
			r.Post("/chapters/{chapterID}/expand", h.handleToggleExpand)
			r.Post("/chapters/{chapterID}/lessons", h.handleAddLesson)
			r.Post("/lessons/{lessonID}/toggle", h.handleToggleLesson)
			r.Post("/lessons/{lessonID}/delete", h.handleRemoveLesson)

			r.Post("/curriculum", h.handleUploadCurriculum)
			r.Get("/curriculum.xlsx", h.handleDownloadCurriculum)

			r.Post("/generate/{slot}", h.handleGenerate)
			r.Post("/matrix/upload", h.handleUploadMatrix)
			r.Post("/matrix/replace", h.handleReplaceMatrix)

			r.Post("/documents/{slot}", h.handleEditDocument)
			r.Get("/documents/{slot}/export/{format}", h.handleExport)
			r.Post("/stage/{stage}", h.handleNavigate)
			r.Post("/error/dismiss", h.handleDismissError)
			r.Post("/reset", h.handleReset)

			r.Get("/history", h.handleHistoryPage)
			r.Get("/history.json", h.handleHistoryJSON)
		})
	})
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			// Multipart framing adds a little on top of the file itself.
			r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

type workspaceCtxKey struct{}

// withWorkspace attaches the caller's workspace, creating one on first
// visit or after expiry.
func (h *Handler) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ws *workspace.Workspace
		if c, err := r.Cookie(workspaceCookieName); err == nil && c.Value != "" {
			ws, _ = h.workspaces.Get(c.Value)
		}
		if ws == nil {
			ws = h.workspaces.Create()
			http.SetCookie(w, &http.Cookie{
				Name:     workspaceCookieName,
				Value:    ws.ID,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
			slog.Debug("created workspace", "workspace", ws.ID, "live", h.workspaces.Len())
		}
		ctx := context.WithValue(r.Context(), workspaceCtxKey{}, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func workspaceFrom(r *http.Request) *workspace.Workspace {
	return r.Context().Value(workspaceCtxKey{}).(*workspace.Workspace)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// back sends the browser to the wizard page after a form post.
func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	target := h.path("/")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, actions ...wizard.Action) {
	workspaceFrom(r).Dispatch(actions...)
	h.back(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	s := workspaceFrom(r).Snapshot()
	h.render(w, r, http.StatusOK, views.WizardPage(s, h.config.AccessHash != ""))
}

func (h *Handler) handleSetInfo(w http.ResponseWriter, r *http.Request) {
	prev := workspaceFrom(r).Snapshot().Info
	info := wizard.SetInfo{
		Subject: r.FormValue("subject"),
		Grade:   r.FormValue("grade"),
		Notes:   r.FormValue("notes"),
	}
	// Only a duration the user actually changed overrides the exam type
	// default.
	if d, err := strconv.Atoi(strings.TrimSpace(r.FormValue("duration"))); err == nil && d != prev.Duration {
		info.Duration = d
	}
	var actions []wizard.Action
	if et := r.FormValue("exam_type"); et != "" && et != prev.ExamType {
		actions = append(actions, wizard.SetExamType{ExamType: et})
	}
	h.dispatch(w, r, append(actions, info)...)
}

func (h *Handler) handleApplyFilter(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.ApplyFilter{})
}

func (h *Handler) handleSetCounts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	var actions []wizard.Action
	for _, t := range model.QuestionTypes {
		for _, l := range model.Levels {
			raw, ok := r.PostForm[views.CountField(t, l)]
			if !ok || len(raw) == 0 {
				continue
			}
			v, err := model.ParseCount(raw[0])
			if err != nil {
				actions = append(actions, wizard.ShowError{Message: appI18n.T(r.Context(), "ErrInvalidCount")})
				continue
			}
			actions = append(actions, wizard.SetCount{Type: t, Level: l, Value: v})
		}
	}
	h.dispatch(w, r, actions...)
}

func (h *Handler) handleToggleLesson(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.ToggleLesson{ID: chi.URLParam(r, "lessonID")})
}

func (h *Handler) handleToggleChapter(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.ToggleChapter{
		ID:     chi.URLParam(r, "chapterID"),
		Select: r.FormValue("select") == "true",
	})
}

func (h *Handler) handleToggleExpand(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.ToggleExpand{ID: chi.URLParam(r, "chapterID")})
}

func (h *Handler) handleAddChapter(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.dispatch(w, r, wizard.ShowError{Message: appI18n.T(r.Context(), "ErrNameRequired")})
		return
	}
	h.dispatch(w, r, wizard.NewAddChapter(name))
}

func (h *Handler) handleAddLesson(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.dispatch(w, r, wizard.ShowError{Message: appI18n.T(r.Context(), "ErrNameRequired")})
		return
	}
	periods, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("periods")))
	l := model.Lesson{
		Name:      name,
		Periods:   periods,
		WeekStart: optionalInt(r.FormValue("week_start")),
		WeekEnd:   optionalInt(r.FormValue("week_end")),
		Objectives: model.Objectives{
			Recall:        strings.TrimSpace(r.FormValue("biet")),
			Comprehension: strings.TrimSpace(r.FormValue("hieu")),
			Application:   strings.TrimSpace(r.FormValue("van_dung")),
		},
	}
	if l.WeekStart != nil && l.WeekEnd != nil && *l.WeekEnd < *l.WeekStart {
		h.dispatch(w, r, wizard.ShowError{Message: appI18n.T(r.Context(), "ErrWeekRange")})
		return
	}
	h.dispatch(w, r, wizard.NewAddLesson(chi.URLParam(r, "chapterID"), l))
}

func optionalInt(s string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &v
}

func (h *Handler) handleRemoveLesson(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.RemoveLesson{ID: chi.URLParam(r, "lessonID")})
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "stage"))
	if err != nil || !model.Stage(n).Valid() {
		http.Error(w, "invalid stage", http.StatusBadRequest)
		return
	}
	h.dispatch(w, r, wizard.Navigate{Stage: model.Stage(n)})
}

func (h *Handler) handleDismissError(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.DismissError{})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, wizard.Reset{})
}

func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     appI18n.LangCookie,
		Value:    r.FormValue("lang"),
		Path:     h.cookiePath(),
		MaxAge:   365 * 24 * 3600,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
