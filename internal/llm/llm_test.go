package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/pavelanni/dethi/internal/model"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "  <table></table>\n", "<table></table>"},
		{"html fence", "```html\n<table>x</table>\n```", "<table>x</table>"},
		{"json fence", "```json\n{\"a\":1}\n```\n", `{"a":1}`},
		{"unterminated", "```html\n<p>x</p>", "<p>x</p>"},
		{"single line", "```x```", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildOpenAIMessages(t *testing.T) {
	t.Run("text only", func(t *testing.T) {
		msgs, err := buildOpenAIMessages(Request{System: "sys", Prompt: "hi"})
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 2 || msgs[0].Role != openai.ChatMessageRoleSystem || msgs[1].Content != "hi" {
			t.Errorf("unexpected messages: %+v", msgs)
		}
	})

	t.Run("image and text attachments", func(t *testing.T) {
		msgs, err := buildOpenAIMessages(Request{
			Prompt: "convert",
			Attachments: []Attachment{
				{Name: "a.png", MIMEType: "image/png", Data: []byte{0x89, 'P'}},
				{Name: "b.txt", MIMEType: "text/plain", Data: []byte("Chương 1")},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		parts := msgs[0].MultiContent
		if len(parts) != 3 {
			t.Fatalf("got %d parts, want 3", len(parts))
		}
		if !strings.HasPrefix(parts[0].ImageURL.URL, "data:image/png;base64,") {
			t.Errorf("image part URL = %q", parts[0].ImageURL.URL)
		}
		if parts[1].Text != "Chương 1" || parts[2].Text != "convert" {
			t.Errorf("unexpected text parts: %+v", parts)
		}
	})

	t.Run("pdf rejected", func(t *testing.T) {
		_, err := buildOpenAIMessages(Request{Attachments: []Attachment{{Name: "x.pdf", MIMEType: "application/pdf"}}})
		if !errors.Is(err, ErrUnsupportedAttachment) {
			t.Errorf("err = %v, want ErrUnsupportedAttachment", err)
		}
	})
}

func TestBuildGeminiContents(t *testing.T) {
	got := buildGeminiContents(Request{
		Prompt:      "extract",
		Attachments: []Attachment{{MIMEType: "application/pdf", Data: []byte("%PDF")}},
	})
	if len(got) != 1 || got[0].Role != "user" {
		t.Fatalf("unexpected contents: %+v", got)
	}
	parts := got[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "application/pdf" {
		t.Fatalf("attachment must come first as inline data: %+v", parts)
	}
	if parts[1].Text != "extract" {
		t.Errorf("prompt part = %q", parts[1].Text)
	}
}

func TestMapErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		class    error
		provider string
	}{
		{"gemini wrapped 429", mapGeminiError(fmt.Errorf("generate: %w", genai.APIError{Code: http.StatusTooManyRequests})), ErrRateLimited, "gemini"},
		{"gemini pointer 429", mapGeminiError(&genai.APIError{Code: http.StatusTooManyRequests}), ErrRateLimited, "gemini"},
		{"gemini 503", mapGeminiError(genai.APIError{Code: http.StatusServiceUnavailable}), ErrUnavailable, "gemini"},
		{"gemini transport", mapGeminiError(errors.New("dial tcp: refused")), ErrUnavailable, "gemini"},
		{"gemini 400", mapGeminiError(genai.APIError{Code: http.StatusBadRequest, Message: "bad"}), nil, "gemini"},
		{"openai 429", mapOpenAIError(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}), ErrRateLimited, "openai"},
		{"openai 400", mapOpenAIError(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}), nil, "openai"},
		{"openai transport", mapOpenAIError(errors.New("dial tcp: refused")), ErrUnavailable, "openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *CallError
			if !errors.As(tt.err, &ce) {
				t.Fatalf("err = %T, want *CallError", tt.err)
			}
			if ce.Provider != tt.provider {
				t.Errorf("Provider = %q, want %q", ce.Provider, tt.provider)
			}
			for _, class := range []error{ErrRateLimited, ErrUnavailable, ErrBadOutput} {
				if got, want := errors.Is(tt.err, class), class == tt.class; got != want {
					t.Errorf("errors.Is(err, %v) = %v, want %v", class, got, want)
				}
			}
		})
	}
}

func TestCallErrorMessage(t *testing.T) {
	err := BadOutput("", errors.New("no JSON object"))
	if got := err.Error(); got != "model answer unusable: no JSON object" {
		t.Errorf("Error() = %q", got)
	}
	err = rateLimited("gemini", errors.New("quota"))
	if got := err.Error(); got != "gemini: model quota exhausted: quota" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrRateLimited) || errors.Is(err, ErrBadOutput) {
		t.Error("class matching is wrong")
	}
}

func TestMockProviderFIFO(t *testing.T) {
	m := NewMockProvider(MockResponse{Text: "one"}, MockResponse{Err: errors.New("boom")})
	ctx := context.Background()

	resp, err := m.Generate(ctx, Request{Prompt: "a"})
	if err != nil || resp.Text != "one" {
		t.Fatalf("first = %v, %v", resp, err)
	}
	if _, err := m.Generate(ctx, Request{Prompt: "b"}); err == nil || err.Error() != "boom" {
		t.Fatalf("second err = %v", err)
	}
	if _, err := m.Generate(ctx, Request{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("empty queue err = %v", err)
	}
	if m.CallCount() != 3 {
		t.Errorf("CallCount = %d", m.CallCount())
	}
	last, _ := m.LastCall()
	if last.Prompt != "" {
		t.Errorf("LastCall prompt = %q", last.Prompt)
	}
}

type memRecorder struct {
	mu     sync.Mutex
	events []model.GenerationEvent
	err    error
}

func (r *memRecorder) AppendGenerationEvent(_ context.Context, ev model.GenerationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func TestLoggingProvider(t *testing.T) {
	rec := &memRecorder{}
	mock := NewMockProvider(
		MockResponse{Text: "Ma trận", Usage: Usage{InputTokens: 10, OutputTokens: 20}},
		MockResponse{Err: errors.New("quota exceeded")},
	)
	p := WithLogging(mock, rec)

	ctx := WithWorkspace(WithOperation(context.Background(), "generate_matrix"), "ws-1")
	if _, err := p.Generate(ctx, Request{System: "ab", Prompt: "cdé"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error")
	}

	if len(rec.events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(rec.events))
	}
	ok := rec.events[0]
	if !ok.Success || ok.Operation != "generate_matrix" || ok.WorkspaceID != "ws-1" {
		t.Errorf("unexpected event: %+v", ok)
	}
	if ok.PromptChars != 5 || ok.ResponseChars != 7 || ok.OutputTokens != 20 {
		t.Errorf("sizes = %d/%d/%d", ok.PromptChars, ok.ResponseChars, ok.OutputTokens)
	}
	failed := rec.events[1]
	if failed.Success || failed.Error != "quota exceeded" || failed.Operation != "unknown" {
		t.Errorf("unexpected failure event: %+v", failed)
	}
}

func TestLoggingProviderRecorderFailure(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	p := WithLogging(NewMockProvider(MockResponse{Text: "x"}), rec)
	resp, err := p.Generate(context.Background(), Request{})
	if err != nil || resp.Text != "x" {
		t.Errorf("recorder failure must not fail generation: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{Provider: "gemini", APIKey: "k"}, false},
		{Config{Provider: "gemini"}, true},
		{Config{Provider: "openai", Model: "qwen2.5"}, false},
		{Config{Provider: "openai"}, true},
		{Config{Provider: "mock"}, false},
		{Config{Provider: "claude"}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
}

func TestNewProviderMock(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Provider: "mock"}, &memRecorder{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*LoggingProvider); !ok {
		t.Errorf("provider = %T, want *LoggingProvider", p)
	}
	if p.ModelID() != "mock" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}
