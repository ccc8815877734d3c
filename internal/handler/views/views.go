// Package views renders the HTML pages of the wizard. Components live in
// the .templ files; run `templ generate` after editing them.
package views

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/selection"
	"github.com/pavelanni/dethi/internal/store"
	"github.com/pavelanni/dethi/internal/wizard"
)

// CountField is the form field name of one question count cell.
func CountField(t model.QuestionType, l model.Level) string {
	return "q_" + t.Key() + "_" + l.Key()
}

var (
	typeLabels = map[model.QuestionType]string{
		model.TypeMultipleChoice: "QTypeMultipleChoice",
		model.TypeTrueFalse:      "QTypeTrueFalse",
		model.TypeShortAnswer:    "QTypeShortAnswer",
		model.TypeEssay:          "QTypeEssay",
	}
	levelLabels = map[model.Level]string{
		model.LevelRecall:        "LevelRecall",
		model.LevelComprehension: "LevelComprehension",
		model.LevelApplication:   "LevelApplication",
	}
	generateLabels = map[model.Slot]string{
		model.SlotMatrix: "GenerateMatrix",
		model.SlotSpecs:  "GenerateSpecs",
		model.SlotExam:   "GenerateExam",
	}
	slotOps = map[model.Slot]wizard.Op{
		model.SlotMatrix: wizard.OpGenerateMatrix,
		model.SlotSpecs:  wizard.OpGenerateSpecs,
		model.SlotExam:   wizard.OpGenerateExam,
	}
	objectiveFields = []struct{ name, labelID string }{
		{"biet", "LevelRecall"},
		{"hieu", "LevelComprehension"},
		{"van_dung", "LevelApplication"},
	}
	languages = []struct{ tag, label string }{
		{"vi", "Tiếng Việt"},
		{"en", "English"},
	}
	historyColumns = []string{"ColTime", "ColOperation", "ColModel", "ColLatency", "ColTokens", "ColStatus"}
)

type pageOpts struct {
	titleID string
	gated   bool
	refresh bool
}

func t(ctx context.Context, msgID string) string { return i18n.T(ctx, msgID) }

// path prefixes p with the deployment base path.
func path(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}

func csrfToken(ctx context.Context) string { return model.CSRFTokenFromContext(ctx) }

func pageTitle(ctx context.Context, titleID string) string {
	if titleID == "" {
		return t(ctx, "AppTitle")
	}
	return t(ctx, titleID) + " · " + t(ctx, "AppTitle")
}

func stagePath(st model.Stage) string { return "/stage/" + strconv.Itoa(int(st)) }

func stepLabel(ctx context.Context, st model.Stage) string {
	return strconv.Itoa(int(st)+1) + ". " + t(ctx, st.LabelID())
}

func chapterPath(id, action string) string { return "/chapters/" + url.PathEscape(id) + "/" + action }

func lessonPath(id, action string) string { return "/lessons/" + url.PathEscape(id) + "/" + action }

func documentPath(slot model.Slot) string { return "/documents/" + string(slot) }

func exportPath(slot model.Slot, format string) string {
	return documentPath(slot) + "/export/" + format
}

func generatePath(slot model.Slot) string { return "/generate/" + string(slot) }

func nextSlot(s model.Slot) (model.Slot, bool) {
	switch s {
	case model.SlotMatrix:
		return model.SlotSpecs, true
	case model.SlotSpecs:
		return model.SlotExam, true
	}
	return "", false
}

func chapterMark(st selection.ChapterStatus) string {
	switch {
	case st.Total > 0 && st.Full():
		return "☑"
	case st.Partial():
		return "◩"
	}
	return "☐"
}

func lessonMark(selected bool) string {
	if selected {
		return "☑"
	}
	return "☐"
}

func expandMark(expanded bool) string {
	if expanded {
		return "▾"
	}
	return "▸"
}

func chapterCounts(ctx context.Context, ch model.Chapter, st selection.ChapterStatus) string {
	return fmt.Sprintf("(%d/%d · %s)", st.Selected, st.Total, i18n.Tp(ctx, "PeriodsN", ch.TotalPeriods))
}

func lessonDetail(ctx context.Context, l model.Lesson) string {
	s := i18n.Tp(ctx, "PeriodsN", l.Periods)
	if l.WeekStart == nil && l.WeekEnd == nil {
		return s
	}
	return s + " · " + i18n.Td(ctx, "WeeksRange", map[string]any{
		"Start": weekLabel(l.WeekStart),
		"End":   weekLabel(l.WeekEnd),
	})
}

func weekLabel(w *int) string {
	if w == nil {
		return "?"
	}
	return strconv.Itoa(*w)
}

func selectionSummary(ctx context.Context, s wizard.State) string {
	return i18n.Td(ctx, "SelectionSummary", map[string]any{
		"Lessons": s.Selection.Len(),
		"Periods": s.SelectedPeriods(),
	})
}

func scoringScheme(ctx context.Context, q model.QuestionConfig) string {
	return i18n.Td(ctx, "ScoringScheme", map[string]any{"Scheme": q.Scheme().String()})
}

func usageSummary(ctx context.Context, u store.UsageStats) string {
	return i18n.Td(ctx, "UsageSummary", map[string]any{
		"Generations":  u.Generations,
		"Failures":     u.Failures,
		"InputTokens":  u.InputTokens,
		"OutputTokens": u.OutputTokens,
		"AvgLatency":   u.AvgLatencyMs,
	})
}

func tokens(ev model.GenerationEvent) string {
	return fmt.Sprintf("%d / %d", ev.InputTokens, ev.OutputTokens)
}
