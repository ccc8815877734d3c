package model

import "time"

// HistoryExport is the top-level JSON structure of the audit log export.
type HistoryExport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Generations []GenerationEvent `json:"generations"`
	Exports     []ExportEvent     `json:"exports"`
}

// GenerationEvent records one call to the generation collaborator.
type GenerationEvent struct {
	ID            int64     `json:"id"`
	WorkspaceID   string    `json:"workspace_id"`
	Operation     string    `json:"operation"`
	Model         string    `json:"model"`
	LatencyMs     int64     `json:"latency_ms"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExportEvent records one document download.
type ExportEvent struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Slot        Slot      `json:"slot"`
	Format      string    `json:"format"`
	Filename    string    `json:"filename"`
	Bytes       int       `json:"bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// GatePass is a signed-in browser on a password-gated deployment.
type GatePass struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the pass has lapsed at now.
func (p GatePass) Expired(now time.Time) bool { return !now.Before(p.ExpiresAt) }
