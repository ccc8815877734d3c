package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/llm/prompts"
)

// ErrEmptyConversion is returned when the collaborator answers with no
// content.
var ErrEmptyConversion = errors.New("conversion returned no content")

// Converter turns matrix files into HTML.
type Converter struct {
	provider llm.Provider
}

// NewConverter returns a Converter backed by p.
func NewConverter(p llm.Provider) *Converter {
	return &Converter{provider: p}
}

// ToHTML returns the file's matrix as HTML. Text files are read as is;
// anything else goes through the collaborator.
func (c *Converter) ToHTML(ctx context.Context, f File) (string, error) {
	if f.IsText() {
		return f.ReadText()
	}
	prompt, err := prompts.Convert(f.Name)
	if err != nil {
		return "", err
	}
	resp, err := c.provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Attachments: []llm.Attachment{attachment(f)},
	})
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", f.Name, err)
	}
	html := llm.StripFences(resp.Text)
	if html == "" {
		return "", fmt.Errorf("convert %s: %w", f.Name, ErrEmptyConversion)
	}
	return html, nil
}
