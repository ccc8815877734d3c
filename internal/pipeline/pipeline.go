// Package pipeline runs the long operations of the wizard against the
// generation collaborator: the three generation stages, matrix uploads and
// curriculum extraction. Each operation snapshots the workspace, builds a
// frozen request from the snapshot and reports back through a reducer
// action.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/ingest"
	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/llm/prompts"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/wizard"
	"github.com/pavelanni/dethi/internal/workspace"
)

// DefaultTimeout bounds a single collaborator call.
const DefaultTimeout = 5 * time.Minute

var (
	// ErrEmptySelection is returned when matrix generation is requested
	// with no lesson selected.
	ErrEmptySelection = errors.New("no lessons selected")
	// ErrNoChapters is returned when a curriculum file yields no chapters.
	ErrNoChapters = errors.New("no chapters found")
	// ErrInFlight is returned when the same operation is already running.
	ErrInFlight = workspace.ErrInFlight
)

// Extractor reads a curriculum out of an uploaded teaching plan.
type Extractor interface {
	Extract(ctx context.Context, f ingest.File) (model.Curriculum, error)
}

// Converter turns an uploaded matrix file into HTML.
type Converter interface {
	ToHTML(ctx context.Context, f ingest.File) (string, error)
}

// Pipeline runs wizard operations.
type Pipeline struct {
	provider  llm.Provider
	extractor Extractor
	converter Converter
	timeout   time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithExtractor replaces the collaborator-backed extractor.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithConverter replaces the collaborator-backed converter.
func WithConverter(c Converter) Option {
	return func(p *Pipeline) { p.converter = c }
}

// New creates a Pipeline that talks to provider.
func New(provider llm.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:  provider,
		extractor: ingest.NewExtractor(provider),
		converter: ingest.NewConverter(provider),
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GenerateMatrix builds the exam matrix from the selected lessons.
func (p *Pipeline) GenerateMatrix(ctx context.Context, ws *workspace.Workspace) error {
	op := wizard.OpGenerateMatrix
	snap, err := p.begin(ctx, ws, op, func(s wizard.State) error {
		if len(s.SelectedChapters()) == 0 {
			return ErrEmptySelection
		}
		return nil
	})
	if err != nil {
		return err
	}
	return p.run(ctx, ws, op, snap.Epoch, func(ctx context.Context) (string, error) {
		prompt, err := prompts.BuildMatrix(snap.Info, snap.SelectedChapters(), snap.Questions)
		if err != nil {
			return "", err
		}
		return p.generate(ctx, prompt, prompts.TemperatureMatrix)
	})
}

// GenerateSpecs builds the specification table from the current matrix.
// The matrix is sent as it stands, even when the user has blanked it.
func (p *Pipeline) GenerateSpecs(ctx context.Context, ws *workspace.Workspace) error {
	op := wizard.OpGenerateSpecs
	snap, err := p.begin(ctx, ws, op, nil)
	if err != nil {
		return err
	}
	return p.run(ctx, ws, op, snap.Epoch, func(ctx context.Context) (string, error) {
		prompt, err := prompts.BuildSpecs(snap.Docs.Matrix, snap.SelectedChapters(), snap.Questions)
		if err != nil {
			return "", err
		}
		return p.generate(ctx, prompt, prompts.TemperatureSpecs)
	})
}

// GenerateExam builds the exam and its answer key from the current specs.
func (p *Pipeline) GenerateExam(ctx context.Context, ws *workspace.Workspace) error {
	op := wizard.OpGenerateExam
	snap, err := p.begin(ctx, ws, op, nil)
	if err != nil {
		return err
	}
	return p.run(ctx, ws, op, snap.Epoch, func(ctx context.Context) (string, error) {
		prompt, err := prompts.BuildExam(snap.Docs.Specs, snap.Info, snap.Questions)
		if err != nil {
			return "", err
		}
		return p.generate(ctx, prompt, prompts.TemperatureExam)
	})
}

// UploadMatrix uses an existing matrix file instead of generating one and
// moves the wizard to the matrix stage.
func (p *Pipeline) UploadMatrix(ctx context.Context, ws *workspace.Workspace, f ingest.File) error {
	return p.convert(ctx, ws, wizard.OpUploadMatrix, f)
}

// ReplaceMatrix swaps the matrix document for an uploaded file without
// changing stage.
func (p *Pipeline) ReplaceMatrix(ctx context.Context, ws *workspace.Workspace, f ingest.File) error {
	return p.convert(ctx, ws, wizard.OpReplaceMatrix, f)
}

func (p *Pipeline) convert(ctx context.Context, ws *workspace.Workspace, op wizard.Op, f ingest.File) error {
	snap, err := p.begin(ctx, ws, op, nil)
	if err != nil {
		return err
	}
	return p.run(ctx, ws, op, snap.Epoch, func(ctx context.Context) (string, error) {
		return p.converter.ToHTML(ctx, f)
	})
}

// ImportCurriculum replaces the curriculum with the one found in f.
// Structured files are parsed directly; anything else is read by the
// collaborator. When nothing is found the current tree is kept.
func (p *Pipeline) ImportCurriculum(ctx context.Context, ws *workspace.Workspace, f ingest.File) error {
	op := wizard.OpExtract
	snap, err := p.begin(ctx, ws, op, nil)
	if err != nil {
		return err
	}

	var cur model.Curriculum
	if ingest.IsCurriculumFile(f.Name) {
		cur, err = ingest.LoadCurriculum(f.Name, f.Data)
	} else {
		rctx, cancel := p.detach(ctx, ws, op)
		defer cancel()
		cur, err = p.extractor.Extract(rctx, f)
	}
	if err == nil && len(cur.Chapters) == 0 {
		err = ErrNoChapters
	}
	if err != nil {
		slog.Warn("curriculum import failed", "workspace", ws.ID, "file", f.Name, "error", err)
		msg := p.message(ctx, err)
		if errors.Is(err, ErrNoChapters) {
			msg = i18n.T(ctx, "ErrExtractionEmpty")
		}
		ws.Dispatch(wizard.Failed{Op: op, Epoch: snap.Epoch, Message: msg})
		return err
	}

	ws.Dispatch(wizard.Extracted{Epoch: snap.Epoch, Result: wizard.ReplaceCurriculum{
		Subject:    cur.Subject,
		Grade:      cur.Grade,
		Curriculum: cur,
	}})
	slog.Info("curriculum imported", "workspace", ws.ID, "file", f.Name, "chapters", len(cur.Chapters))
	return nil
}

// begin starts op on ws. Precondition failures are reported to the user
// through the state's error banner as well as returned.
func (p *Pipeline) begin(ctx context.Context, ws *workspace.Workspace, op wizard.Op, check func(wizard.State) error) (wizard.State, error) {
	snap, err := ws.Begin(op, check)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, ErrInFlight):
		return snap, err
	}
	ws.Dispatch(wizard.ShowError{Message: p.message(ctx, err)})
	return snap, err
}

// detach returns a context that outlives the request but not the timeout,
// labelled for generation event logging.
func (p *Pipeline) detach(ctx context.Context, ws *workspace.Workspace, op wizard.Op) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	ctx = llm.WithWorkspace(llm.WithOperation(ctx, op.String()), ws.ID)
	return ctx, cancel
}

func (p *Pipeline) run(ctx context.Context, ws *workspace.Workspace, op wizard.Op, epoch int, fn func(context.Context) (string, error)) error {
	rctx, cancel := p.detach(ctx, ws, op)
	defer cancel()

	start := time.Now()
	content, err := fn(rctx)
	if err != nil {
		slog.Warn("operation failed", "workspace", ws.ID, "op", op, "error", err, "elapsed", time.Since(start))
		ws.Dispatch(wizard.Failed{Op: op, Epoch: epoch, Message: p.message(ctx, err)})
		return err
	}
	ws.Dispatch(wizard.Succeeded{Op: op, Epoch: epoch, Content: content})
	slog.Info("operation finished", "workspace", ws.ID, "op", op, "chars", len(content), "elapsed", time.Since(start))
	return nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	system, err := prompts.System()
	if err != nil {
		return "", err
	}
	resp, err := p.provider.Generate(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	text := llm.StripFences(resp.Text)
	if text == "" {
		return "", llm.BadOutput("", errors.New("nothing left after stripping fences"))
	}
	return text, nil
}

// message turns an operation error into the text shown to the user.
func (p *Pipeline) message(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, ErrEmptySelection):
		return i18n.T(ctx, "ErrEmptySelection")
	case errors.Is(err, context.DeadlineExceeded):
		return i18n.T(ctx, "ErrGenerationTimeout")
	case errors.Is(err, llm.ErrRateLimited):
		return i18n.T(ctx, "ErrRateLimited")
	case errors.Is(err, llm.ErrUnsupportedAttachment):
		return i18n.T(ctx, "ErrUnsupportedFile")
	}
	if msg := err.Error(); msg != "" {
		return i18n.Td(ctx, "ErrGenerationFailedDetail", map[string]any{"Error": msg})
	}
	return i18n.T(ctx, "ErrGenerationFailed")
}
