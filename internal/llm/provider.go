// Package llm talks to the text generation service that writes the exam
// documents and reads uploaded files.
package llm

import (
	"context"
	"strings"
)

// Provider is the generation collaborator. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Generate sends one single-turn request and returns the model's text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes one generation call.
type Request struct {
	// System is the system instruction.
	System string

	// Prompt is the user turn.
	Prompt string

	// Attachments are sent inline before the prompt.
	Attachments []Attachment

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64

	// JSON asks the provider for a bare JSON object.
	JSON bool
}

// Attachment is a file sent alongside the prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// IsText reports whether the attachment can be sent as plain text.
func (a Attachment) IsText() bool {
	return strings.HasPrefix(a.MIMEType, "text/")
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Response holds the model's output.
type Response struct {
	Text  string
	Usage Usage
	Model string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// PromptChars returns the number of characters sent as text.
func (r Request) PromptChars() int {
	return len([]rune(r.System)) + len([]rune(r.Prompt))
}
