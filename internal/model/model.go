package model

import (
	"context"
	"strings"
	"time"
)

// ExamInfo holds the exam metadata typed on the input step.
type ExamInfo struct {
	Subject  string `json:"subject"`
	Grade    string `json:"grade"`
	Duration int    `json:"duration"` // minutes
	ExamType string `json:"exam_type"`
	Notes    string `json:"notes,omitempty"`
}

// Exam type labels offered by the input form.
const (
	ExamQuiz15   = "Kiểm tra 15 phút"
	ExamQuiz45   = "Kiểm tra 45 phút"
	ExamMidTerm1 = "Giữa kỳ 1"
	ExamEndTerm1 = "Cuối kỳ 1"
	ExamMidTerm2 = "Giữa kỳ 2"
	ExamEndTerm2 = "Cuối kỳ 2"
)

// ExamTypes lists the exam type labels in display order.
var ExamTypes = []string{ExamQuiz15, ExamQuiz45, ExamMidTerm1, ExamEndTerm1, ExamMidTerm2, ExamEndTerm2}

// DefaultExamInfo returns the metadata a fresh workspace starts with.
func DefaultExamInfo() ExamInfo {
	return ExamInfo{Duration: 45, ExamType: ExamMidTerm1}
}

// DefaultDuration returns the usual duration in minutes for an exam type,
// or current when the type carries no convention.
func DefaultDuration(examType string, current int) int {
	t := strings.ToLower(examType)
	switch {
	case strings.Contains(t, "15 phút"), strings.Contains(t, "15 min"):
		return 15
	case strings.Contains(t, "45 phút"), strings.Contains(t, "45 min"):
		return 45
	case strings.Contains(t, "giữa"), strings.Contains(t, "cuối"),
		strings.Contains(t, "mid-term"), strings.Contains(t, "end-of-term"):
		return 90
	}
	return current
}

// Slot identifies one of the three generated documents.
type Slot string

const (
	SlotMatrix Slot = "matrix"
	SlotSpecs  Slot = "specs"
	SlotExam   Slot = "exam"
)

// ParseSlot converts a URL or form value into a Slot.
func ParseSlot(s string) (Slot, bool) {
	switch Slot(s) {
	case SlotMatrix, SlotSpecs, SlotExam:
		return Slot(s), true
	}
	return "", false
}

// Documents holds the three generated HTML documents. Editing one never
// invalidates the others.
type Documents struct {
	Matrix string `json:"matrix"`
	Specs  string `json:"specs"`
	Exam   string `json:"exam"`
}

// Get returns the content of a slot.
func (d Documents) Get(s Slot) string {
	switch s {
	case SlotMatrix:
		return d.Matrix
	case SlotSpecs:
		return d.Specs
	case SlotExam:
		return d.Exam
	}
	return ""
}

// With returns a copy of d with slot s replaced.
func (d Documents) With(s Slot, content string) Documents {
	switch s {
	case SlotMatrix:
		d.Matrix = content
	case SlotSpecs:
		d.Specs = content
	case SlotExam:
		d.Exam = content
	}
	return d
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath       string // URL prefix for sub-path deployments (e.g. "/dethi")
	SecureCookies  bool   // Set Secure flag on cookies (disable for local dev)
	AccessHash     string // bcrypt hash of the access password; empty disables the gate
	MaxUploadBytes int64
	LLMTimeout     time.Duration
	WorkspaceTTL   time.Duration
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
