package ingest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/llm/prompts"
	"github.com/pavelanni/dethi/internal/model"
)

//go:embed schema/extraction.json
var extractionSchemaJSON []byte

const extractionSchemaURL = "schema://extraction.json"

var (
	schemaOnce sync.Once
	schemaErr  error
	extraction *jsonschema.Schema
)

func extractionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var def any
		if err := json.Unmarshal(extractionSchemaJSON, &def); err != nil {
			schemaErr = fmt.Errorf("parse extraction schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(extractionSchemaURL, def); err != nil {
			schemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		extraction, schemaErr = c.Compile(extractionSchemaURL)
	})
	return extraction, schemaErr
}

// Extractor reads a teaching plan through the generation collaborator and
// returns its curriculum.
type Extractor struct {
	provider llm.Provider
}

// NewExtractor returns an Extractor backed by p.
func NewExtractor(p llm.Provider) *Extractor {
	return &Extractor{provider: p}
}

// Extract sends f with the extraction prompt and parses the answer. A
// failed call or an answer that cannot be parsed is logged and yields an
// empty curriculum. Only a broken prompt template is returned as an error.
func (e *Extractor) Extract(ctx context.Context, f File) (model.Curriculum, error) {
	prompt, err := prompts.Extract()
	if err != nil {
		return model.Curriculum{}, err
	}
	resp, err := e.provider.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Attachments: []llm.Attachment{attachment(f)},
		JSON:        true,
	})
	if err != nil {
		slog.Warn("curriculum extraction failed", "file", f.Name, "error", err)
		return model.Curriculum{}, nil
	}
	cur, err := ParseExtraction(resp.Text)
	if err != nil {
		slog.Warn("curriculum extraction unparseable", "file", f.Name, "error", err)
		return model.Curriculum{}, nil
	}
	return cur, nil
}

// ParseExtraction decodes a collaborator answer into a normalized
// curriculum. The strict parse is retried once on the text between the
// outermost braces after stripping any Markdown fence.
func ParseExtraction(text string) (model.Curriculum, error) {
	raw, err := decodeObject(text)
	if err != nil {
		raw, err = decodeObject(outermostObject(llm.StripFences(text)))
		if err != nil {
			return model.Curriculum{}, llm.BadOutput("", err)
		}
	}
	schema, err := extractionSchema()
	if err != nil {
		return model.Curriculum{}, err
	}
	if err := schema.Validate(raw.parsed); err != nil {
		return model.Curriculum{}, llm.BadOutput("", fmt.Errorf("schema validation failed: %w", err))
	}

	var doc extractedDoc
	if err := json.Unmarshal(raw.bytes, &doc); err != nil {
		return model.Curriculum{}, llm.BadOutput("", err)
	}
	return Normalize(doc.curriculum()), nil
}

type decoded struct {
	bytes  []byte
	parsed any
}

func decodeObject(text string) (decoded, error) {
	b := []byte(strings.TrimSpace(text))
	var parsed any
	if err := json.Unmarshal(b, &parsed); err != nil {
		return decoded{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := parsed.(map[string]any); !ok {
		return decoded{}, fmt.Errorf("expected a JSON object, got %T", parsed)
	}
	return decoded{bytes: b, parsed: parsed}, nil
}

func outermostObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func attachment(f File) llm.Attachment {
	return llm.Attachment{Name: f.Name, MIMEType: f.MIMEType(), Data: f.Data}
}

// Models are loose with JSON types: grades come back as numbers and period
// counts as strings. The flex types accept both.

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type flexInt struct {
	value int
	ok    bool
}

func (n *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		*n = flexInt{}
		return nil
	}
	*n = flexInt{value: int(v), ok: true}
	return nil
}

func (n flexInt) ptr() *int {
	if !n.ok {
		return nil
	}
	v := n.value
	return &v
}

type extractedLesson struct {
	ID         flexString `json:"id"`
	Name       string     `json:"name"`
	Periods    flexInt    `json:"periods"`
	WeekStart  flexInt    `json:"weekStart"`
	WeekEnd    flexInt    `json:"weekEnd"`
	Objectives struct {
		Recall        flexString `json:"biet"`
		Comprehension flexString `json:"hieu"`
		Application   flexString `json:"van_dung"`
		Advanced      flexString `json:"van_dung_cao"`
	} `json:"objectives"`
}

type extractedChapter struct {
	ID           flexString        `json:"id"`
	Name         string            `json:"name"`
	TotalPeriods flexInt           `json:"totalPeriods"`
	Lessons      []extractedLesson `json:"lessons"`
}

type extractedDoc struct {
	Subject  flexString         `json:"subject"`
	Grade    flexString         `json:"grade"`
	Chapters []extractedChapter `json:"chapters"`
}

func (d extractedDoc) curriculum() model.Curriculum {
	c := model.Curriculum{Subject: string(d.Subject), Grade: string(d.Grade)}
	for _, ec := range d.Chapters {
		ch := model.Chapter{ID: string(ec.ID), Name: ec.Name, TotalPeriods: ec.TotalPeriods.value}
		for _, el := range ec.Lessons {
			ch.Lessons = append(ch.Lessons, model.Lesson{
				ID:        string(el.ID),
				Name:      el.Name,
				Periods:   el.Periods.value,
				WeekStart: el.WeekStart.ptr(),
				WeekEnd:   el.WeekEnd.ptr(),
				Objectives: model.Objectives{
					Recall:        strings.TrimSpace(string(el.Objectives.Recall)),
					Comprehension: strings.TrimSpace(string(el.Objectives.Comprehension)),
					Application:   strings.TrimSpace(string(el.Objectives.Application)),
					Advanced:      strings.TrimSpace(string(el.Objectives.Advanced)),
				},
			})
		}
		c.Chapters = append(c.Chapters, ch)
	}
	return c
}
