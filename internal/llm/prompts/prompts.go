// Package prompts renders the Vietnamese prompts sent to the generation
// collaborator. Prompts are frozen: they are built once from a state
// snapshot and never re-read state afterwards.
package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/dethi/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Temperatures used for each generation stage.
const (
	TemperatureMatrix = 0.2
	TemperatureSpecs  = 0.2
	TemperatureExam   = 0.7
)

// MissingObjective stands in for an objective a lesson does not define.
const MissingObjective = "..."

const maxNotesRunes = 2000

var instructionTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions?\b[^>]*>`)

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// Load parses the embedded templates. Builders call it lazily; calling it
// at startup surfaces template errors early.
func Load() error {
	loadOnce.Do(func() {
		t, err := template.ParseFS(templateFS, "templates/*.tmpl")
		if err != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", err)
			return
		}
		templates = t
	})
	return loadErr
}

func render(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// System returns the system instruction shared by every generation stage.
func System() (string, error) {
	return render("system.tmpl", nil)
}

// Extract returns the curriculum extraction prompt.
func Extract() (string, error) {
	return render("extract.tmpl", nil)
}

// Convert returns the matrix file conversion prompt.
func Convert(filename string) (string, error) {
	return render("convert.tmpl", struct{ Filename string }{filename})
}

var typeLabels = [model.NumQuestionTypes]string{
	"Dạng I (4 lựa chọn)",
	"Dạng II (Đúng/Sai)",
	"Dạng III (Trả lời ngắn)",
	"Tự luận",
}

var examSections = [model.NumQuestionTypes]struct{ section, detail, key, skip string }{
	{"Trắc nghiệm nhiều lựa chọn", "", "Đáp án", "Bỏ qua hoàn toàn."},
	{"Đúng/Sai", " (mỗi câu 4 ý a,b,c,d)", "Đáp án", "Bỏ qua hoàn toàn."},
	{"Trả lời ngắn", "", "Đáp án", "Bỏ qua hoàn toàn."},
	{"Tự luận", "", "Đáp án/Hướng dẫn chấm chi tiết", "TUYỆT ĐỐI KHÔNG SINH RA PHẦN TỰ LUẬN."},
}

// TypeData describes one question type to the templates.
type TypeData struct {
	Label       string
	Part        string
	Levels      [model.NumLevels]int
	Total       int
	Present     bool
	Points      float64
	PerQuestion float64

	// Matrix layout.
	InLayout    bool
	FirstColumn int
	LastColumn  int

	// Exam section wording.
	Section string
	Detail  string
	Key     string
	Skip    string
}

func typeData(q model.QuestionConfig) []TypeData {
	scheme := q.Scheme()
	out := make([]TypeData, 0, model.NumQuestionTypes)
	col := 4
	for _, t := range model.QuestionTypes {
		d := TypeData{
			Label:   typeLabels[t],
			Part:    t.Part(),
			Levels:  q[t],
			Total:   q.Total(t),
			Present: q.Present(t),
			Points:  scheme.Points(t),
			Section: examSections[t].section,
			Detail:  examSections[t].detail,
			Key:     examSections[t].key,
			Skip:    examSections[t].skip,
		}
		if d.Total > 0 {
			d.PerQuestion = d.Points / float64(d.Total)
		}
		if d.Points > 0 {
			d.InLayout = true
			d.FirstColumn, d.LastColumn = col, col+int(model.NumLevels)-1
			col += int(model.NumLevels)
		}
		out = append(out, d)
	}
	return out
}

func omitted(types []TypeData) []string {
	var out []string
	for _, t := range types {
		if !t.Present {
			out = append(out, t.Label)
		}
	}
	return out
}

// MatrixData is the input of the matrix prompt.
type MatrixData struct {
	Info         model.ExamInfo
	Notes        string
	TotalPeriods int
	ChaptersJSON string
	Types        []TypeData
	Omitted      []string
	Scheme       model.Scheme
	HasEssay     bool
	Columns      int
}

type matrixLesson struct {
	Name    string `json:"name"`
	Periods int    `json:"periods"`
}

type matrixChapter struct {
	Name    string         `json:"name"`
	Lessons []matrixLesson `json:"lessons"`
}

// BuildMatrix renders the matrix prompt for the selected chapters, which
// must already be restricted to selected lessons.
func BuildMatrix(info model.ExamInfo, chapters []model.Chapter, q model.QuestionConfig) (string, error) {
	if len(chapters) == 0 {
		return "", errors.New("no lessons selected")
	}
	total := 0
	payload := make([]matrixChapter, 0, len(chapters))
	for _, ch := range chapters {
		mc := matrixChapter{Name: ch.Name}
		for _, l := range ch.Lessons {
			mc.Lessons = append(mc.Lessons, matrixLesson{Name: l.Name, Periods: l.Periods})
			total += max(l.Periods, 1)
		}
		payload = append(payload, mc)
	}
	js, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chapters: %w", err)
	}

	types := typeData(q)
	return render("matrix.tmpl", MatrixData{
		Info:         info,
		Notes:        sanitizeNotes(info.Notes),
		TotalPeriods: total,
		ChaptersJSON: string(js),
		Types:        types,
		Omitted:      omitted(types),
		Scheme:       q.Scheme(),
		HasEssay:     q.HasEssay(),
		Columns:      q.Scheme().Columns(),
	})
}

// LessonObjectives is one lesson's objectives as shown in the specs prompt.
type LessonObjectives struct {
	Name          string
	Recall        string
	Comprehension string
	Application   string
}

// SpecsData is the input of the specs prompt.
type SpecsData struct {
	Matrix  string
	Lessons []LessonObjectives
	Types   []TypeData
	Omitted []string
	Scheme  model.Scheme
}

// BuildSpecs renders the specs prompt from the matrix document and the
// objectives of every selected lesson.
func BuildSpecs(matrix string, chapters []model.Chapter, q model.QuestionConfig) (string, error) {
	var lessons []LessonObjectives
	for _, ch := range chapters {
		for _, l := range ch.Lessons {
			lessons = append(lessons, LessonObjectives{
				Name:          l.Name,
				Recall:        orMissing(l.Objectives.Recall),
				Comprehension: orMissing(l.Objectives.Comprehension),
				Application:   orMissing(l.Objectives.Application),
			})
		}
	}
	types := typeData(q)
	return render("specs.tmpl", SpecsData{
		Matrix:  matrix,
		Lessons: lessons,
		Types:   types,
		Omitted: omitted(types),
		Scheme:  q.Scheme(),
	})
}

// ExamData is the input of the exam prompt.
type ExamData struct {
	Specs string
	Info  model.ExamInfo
	Types []TypeData
}

// BuildExam renders the exam prompt. Types with no questions are marked as
// forbidden for both the exam and its answer key.
func BuildExam(specs string, info model.ExamInfo, q model.QuestionConfig) (string, error) {
	return render("exam.tmpl", ExamData{Specs: specs, Info: info, Types: typeData(q)})
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return MissingObjective
	}
	return s
}

// sanitizeNotes strips instruction-like tags from free text typed by the
// user and bounds its length.
func sanitizeNotes(notes string) string {
	notes = instructionTagRegex.ReplaceAllString(notes, "")
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNotesRunes {
		notes = string([]rune(notes)[:maxNotesRunes]) + " [...]"
	}
	return notes
}
