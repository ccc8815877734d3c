package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/dethi/internal/model"
)

// EventRecorder persists generation events.
type EventRecorder interface {
	AppendGenerationEvent(ctx context.Context, ev model.GenerationEvent) error
}

type ctxKey int

const (
	operationKey ctxKey = iota
	workspaceKey
)

// WithOperation attaches an operation label to the context for event logging.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// WithWorkspace attaches the workspace ID to the context for event logging.
func WithWorkspace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceKey, id)
}

func operationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(operationKey).(string); ok {
		return v
	}
	return "unknown"
}

func workspaceFrom(ctx context.Context) string {
	v, _ := ctx.Value(workspaceKey).(string)
	return v
}

// LoggingProvider is a decorator that records every request as an event.
type LoggingProvider struct {
	inner    Provider
	recorder EventRecorder
}

// WithLogging wraps a Provider with event logging.
func WithLogging(p Provider, rec EventRecorder) Provider {
	return &LoggingProvider{inner: p, recorder: rec}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	ev := model.GenerationEvent{
		WorkspaceID: workspaceFrom(ctx),
		Operation:   operationFrom(ctx),
		Model:       l.inner.ModelID(),
		LatencyMs:   time.Since(start).Milliseconds(),
		PromptChars: req.PromptChars(),
		Success:     err == nil,
		CreatedAt:   start,
	}
	if resp != nil {
		ev.ResponseChars = len([]rune(resp.Text))
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		if resp.Model != "" {
			ev.Model = resp.Model
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}

	// The audit log must never fail the generation itself.
	if logErr := l.recorder.AppendGenerationEvent(context.WithoutCancel(ctx), ev); logErr != nil {
		slog.Warn("failed to record generation event", "error", logErr)
	}
	slog.Info("generation", "op", ev.Operation, "model", ev.Model, "latency_ms", ev.LatencyMs, "success", ev.Success)

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}
