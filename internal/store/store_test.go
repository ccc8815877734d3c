package store

import (
	"context"
	"testing"
	"time"

	"github.com/pavelanni/dethi/internal/model"
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

func TestGenerationEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	list, err := s.ListGenerationEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListGenerationEvents: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	events := []model.GenerationEvent{
		{WorkspaceID: "ws-1", Operation: "generate_matrix", Model: "gemini-2.5-flash", LatencyMs: 1200, InputTokens: 100, OutputTokens: 400, Success: true},
		{WorkspaceID: "ws-1", Operation: "generate_specs", Model: "gemini-2.5-flash", LatencyMs: 800, Error: "quota exceeded"},
		{WorkspaceID: "ws-2", Operation: "extract", Model: "gemini-2.5-flash", LatencyMs: 1000, InputTokens: 50, OutputTokens: 10, Success: true},
	}
	for _, ev := range events {
		if err := s.AppendGenerationEvent(ctx, ev); err != nil {
			t.Fatalf("AppendGenerationEvent: %v", err)
		}
	}

	list, err = s.ListGenerationEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListGenerationEvents: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 events, got %d", len(list))
	}
	if list[0].Operation != "extract" {
		t.Errorf("expected newest first, got %q", list[0].Operation)
	}
	failed := list[1]
	if failed.Success || failed.Error != "quota exceeded" {
		t.Errorf("unexpected failed event: %+v", failed)
	}
	if failed.CreatedAt.IsZero() {
		t.Error("CreatedAt must be set")
	}

	u, err := s.Usage(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u.Generations != 3 || u.Failures != 1 || u.InputTokens != 150 || u.OutputTokens != 410 || u.AvgLatencyMs != 1000 {
		t.Errorf("unexpected usage: %+v", u)
	}
}

func TestUsageEmpty(t *testing.T) {
	s := newTestStore(t)
	u, err := s.Usage(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if u != (UsageStats{}) {
		t.Errorf("expected zero usage, got %+v", u)
	}
}

func TestExportEventsAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if h.Generations == nil || h.Exports == nil {
		t.Error("empty history must use empty slices")
	}

	if err := s.AppendExportEvent(ctx, model.ExportEvent{
		WorkspaceID: "ws-1", Slot: model.SlotExam, Format: "doc", Filename: "De_Thi.doc", Bytes: 2048,
	}); err != nil {
		t.Fatalf("AppendExportEvent: %v", err)
	}
	if err := s.AppendGenerationEvent(ctx, model.GenerationEvent{Operation: "generate_exam", Success: true}); err != nil {
		t.Fatalf("AppendGenerationEvent: %v", err)
	}

	h, err = s.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h.Generations) != 1 || len(h.Exports) != 1 {
		t.Fatalf("unexpected history sizes: %d/%d", len(h.Generations), len(h.Exports))
	}
	ex := h.Exports[0]
	if ex.Slot != model.SlotExam || ex.Filename != "De_Thi.doc" || ex.Bytes != 2048 {
		t.Errorf("unexpected export: %+v", ex)
	}
	if h.GeneratedAt.IsZero() {
		t.Error("GeneratedAt must be set")
	}
}

func TestGatePasses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.IssueGatePass(ctx)
	if err != nil {
		t.Fatalf("IssueGatePass: %v", err)
	}
	if len(token) != 32 {
		t.Errorf("token length = %d, want 32", len(token))
	}
	other, _ := s.IssueGatePass(ctx)
	if other == token {
		t.Error("two passes share a token")
	}

	pass, err := s.GatePass(ctx, token)
	if err != nil {
		t.Fatalf("GatePass: %v", err)
	}
	if pass == nil || pass.Token != token {
		t.Fatalf("GatePass(%q) = %+v", token, pass)
	}
	if d := pass.ExpiresAt.Sub(pass.IssuedAt); d != GatePassTTL {
		t.Errorf("pass lifetime = %v, want %v", d, GatePassTTL)
	}

	for _, tok := range []string{"", "nope"} {
		if p, err := s.GatePass(ctx, tok); err != nil || p != nil {
			t.Errorf("GatePass(%q) = %+v, %v; want nil, nil", tok, p, err)
		}
	}

	if err := s.RevokeGatePass(ctx, token); err != nil {
		t.Fatalf("RevokeGatePass: %v", err)
	}
	if p, _ := s.GatePass(ctx, token); p != nil {
		t.Error("revoked pass still answers")
	}
	if err := s.RevokeGatePass(ctx, token); err != nil {
		t.Errorf("revoking twice: %v", err)
	}
	if p, _ := s.GatePass(ctx, other); p == nil {
		t.Error("revoking one pass dropped another")
	}
}

func TestLapsedGatePasses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-2 * GatePassTTL)
	for _, tok := range []string{"lapsed-1", "lapsed-2"} {
		if _, err := s.db.Exec(`INSERT INTO gate_passes (token, issued_at, expires_at) VALUES (?, ?, ?)`,
			tok, past, past.Add(GatePassTTL)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	live, _ := s.IssueGatePass(ctx)

	p, err := s.GatePass(ctx, "lapsed-1")
	if err != nil {
		t.Fatalf("GatePass: %v", err)
	}
	if p != nil {
		t.Error("lapsed pass must not be returned")
	}

	n, err := s.PruneGatePasses(ctx)
	if err != nil {
		t.Fatalf("PruneGatePasses: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d passes, want 1 (lapsed-1 was already dropped by lookup)", n)
	}
	if p, _ := s.GatePass(ctx, live); p == nil {
		t.Error("prune removed a live pass")
	}
}
