package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/ingest"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/pipeline"
	"github.com/pavelanni/dethi/internal/wizard"
)

// The pipeline reports every outcome through the workspace state, so the
// handlers below only log and send the browser back to the wizard.

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	var err error
	switch chi.URLParam(r, "slot") {
	case string(model.SlotMatrix):
		err = h.pipeline.GenerateMatrix(r.Context(), ws)
	case string(model.SlotSpecs):
		err = h.pipeline.GenerateSpecs(r.Context(), ws)
	case string(model.SlotExam):
		err = h.pipeline.GenerateExam(r.Context(), ws)
	default:
		http.Error(w, "unknown document", http.StatusNotFound)
		return
	}
	logOutcome(r, err)
	h.back(w, r)
}

func (h *Handler) handleUploadMatrix(w http.ResponseWriter, r *http.Request) {
	f, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	logOutcome(r, h.pipeline.UploadMatrix(r.Context(), workspaceFrom(r), f))
	h.back(w, r)
}

func (h *Handler) handleReplaceMatrix(w http.ResponseWriter, r *http.Request) {
	f, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	logOutcome(r, h.pipeline.ReplaceMatrix(r.Context(), workspaceFrom(r), f))
	h.back(w, r)
}

func (h *Handler) handleUploadCurriculum(w http.ResponseWriter, r *http.Request) {
	f, ok := h.readUpload(w, r, "file")
	if !ok {
		return
	}
	logOutcome(r, h.pipeline.ImportCurriculum(r.Context(), workspaceFrom(r), f))
	h.back(w, r)
}

// readUpload reads a multipart file field. Failures are shown in the
// error banner and the browser is sent back.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, field string) (ingest.File, bool) {
	fail := func(msgID string, err error) (ingest.File, bool) {
		slog.Warn("upload rejected", "error", err)
		h.dispatch(w, r, wizard.ShowError{Message: appI18n.T(r.Context(), msgID)})
		return ingest.File{}, false
	}

	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fail("ErrFileTooLarge", err)
		}
		return fail("ErrNoFile", err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return fail("ErrNoFile", err)
	}
	defer file.Close()
	if header.Size > h.config.MaxUploadBytes {
		return fail("ErrFileTooLarge", errors.New("file exceeds upload limit"))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return fail("ErrNoFile", err)
	}
	return ingest.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func logOutcome(r *http.Request, err error) {
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrInFlight):
		slog.Info("duplicate request ignored", "path", r.URL.Path)
	case errors.Is(err, pipeline.ErrEmptySelection):
		slog.Debug("request rejected", "path", r.URL.Path, "error", err)
	default:
		slog.Warn("operation failed", "path", r.URL.Path, "error", err)
	}
}
