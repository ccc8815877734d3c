package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/dethi/internal/export"
	"github.com/pavelanni/dethi/internal/handler/views"
	"github.com/pavelanni/dethi/internal/ingest"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/wizard"
)

const historyPageLimit = 50

func (h *Handler) handleEditDocument(w http.ResponseWriter, r *http.Request) {
	slot, ok := model.ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		http.Error(w, "unknown document", http.StatusNotFound)
		return
	}
	h.dispatch(w, r, wizard.EditDocument{Slot: slot, Content: r.FormValue("content")})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	slot, ok := model.ParseSlot(chi.URLParam(r, "slot"))
	if !ok {
		http.Error(w, "unknown document", http.StatusNotFound)
		return
	}
	ws := workspaceFrom(r)
	s := ws.Snapshot()
	content := s.Docs.Get(slot)
	if content == "" {
		http.Error(w, "document is empty", http.StatusNotFound)
		return
	}

	format := chi.URLParam(r, "format")
	f, err := export.Package(content, export.Name(slot, s.Info), format)
	if errors.Is(err, export.ErrUnknownFormat) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("failed to package document", "slot", slot, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.store.AppendExportEvent(r.Context(), model.ExportEvent{
		WorkspaceID: ws.ID,
		Slot:        slot,
		Format:      format,
		Filename:    f.Filename,
		Bytes:       len(f.Body),
	}); err != nil {
		slog.Warn("failed to record export", "error", err)
	}

	writeAttachment(w, f.Filename, f.ContentType, f.Body)
}

func (h *Handler) handleDownloadCurriculum(w http.ResponseWriter, r *http.Request) {
	s := workspaceFrom(r).Snapshot()
	data, err := ingest.WriteWorkbook(s.Curriculum)
	if err != nil {
		slog.Error("failed to write curriculum workbook", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	name := export.SanitizeFilename(export.NameWithPrefix("Chuong_Trinh", s.Info)) + ".xlsx"
	writeAttachment(w, name, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func writeAttachment(w http.ResponseWriter, filename, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write download", "filename", filename, "error", err)
	}
}

func (h *Handler) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	since := time.Now().AddDate(0, 0, -30)
	usage, err := h.store.Usage(r.Context(), since)
	if err != nil {
		slog.Error("failed to aggregate usage", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events, err := h.store.ListGenerationEvents(r.Context(), historyPageLimit)
	if err != nil {
		slog.Error("failed to list generation events", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, views.HistoryPage(usage, events, h.config.AccessHash != ""))
}

func (h *Handler) handleHistoryJSON(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := h.store.History(r.Context(), limit)
	if err != nil {
		slog.Error("failed to export history", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="history.json"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(hist); err != nil {
		slog.Error("failed to encode history", "error", err)
	}
}
