package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/dethi/internal/model"
)

// ErrUnsupportedFormat is returned for curriculum files that are not YAML,
// JSON or XLSX.
var ErrUnsupportedFormat = errors.New("unsupported curriculum format")

// IsCurriculumFile reports whether name can be loaded without the
// collaborator.
func IsCurriculumFile(name string) bool {
	switch (File{Name: name}).Ext() {
	case ".yaml", ".yml", ".json", ".xlsx":
		return true
	}
	return false
}

// LoadCurriculum parses a structured curriculum file. The format is chosen
// by extension and the result is normalized.
func LoadCurriculum(name string, data []byte) (model.Curriculum, error) {
	var (
		cur model.Curriculum
		err error
	)
	switch (File{Name: name}).Ext() {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cur)
	case ".json":
		err = json.Unmarshal(data, &cur)
	case ".xlsx":
		cur, err = readWorkbook(data)
	default:
		return model.Curriculum{}, fmt.Errorf("%s: %w", name, ErrUnsupportedFormat)
	}
	if err != nil {
		return model.Curriculum{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(cur.Chapters) == 0 {
		return model.Curriculum{}, fmt.Errorf("parse %s: no chapters", name)
	}
	return Normalize(cur), nil
}

// Workbook columns, in order.
var workbookHeader = []string{
	"Chương", "Bài", "Số tiết", "Tuần bắt đầu", "Tuần kết thúc",
	"Biết", "Hiểu", "Vận dụng", "Vận dụng cao",
}

const (
	colChapter = iota
	colLesson
	colPeriods
	colWeekStart
	colWeekEnd
	colRecall
	colComprehension
	colApplication
	colAdvanced
)

// readWorkbook reads the first sheet. The first row is a header; each
// following row is one lesson, and consecutive rows naming the same
// chapter form one chapter. A blank chapter cell continues the previous
// chapter.
func readWorkbook(data []byte) (model.Curriculum, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return model.Curriculum{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return model.Curriculum{}, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return model.Curriculum{}, err
	}

	var cur model.Curriculum
	for i, row := range rows {
		if i == 0 {
			continue
		}
		cell := func(c int) string {
			if c < len(row) {
				return strings.TrimSpace(row[c])
			}
			return ""
		}
		lessonName := cell(colLesson)
		if lessonName == "" {
			continue
		}
		chapterName := cell(colChapter)
		n := len(cur.Chapters)
		if n == 0 || (chapterName != "" && chapterName != cur.Chapters[n-1].Name) {
			cur.Chapters = append(cur.Chapters, model.Chapter{Name: chapterName})
			n++
		}
		periods, _ := strconv.Atoi(cell(colPeriods))
		cur.Chapters[n-1].Lessons = append(cur.Chapters[n-1].Lessons, model.Lesson{
			Name:      lessonName,
			Periods:   periods,
			WeekStart: weekCell(cell(colWeekStart)),
			WeekEnd:   weekCell(cell(colWeekEnd)),
			Objectives: model.Objectives{
				Recall:        cell(colRecall),
				Comprehension: cell(colComprehension),
				Application:   cell(colApplication),
				Advanced:      cell(colAdvanced),
			},
		})
	}
	return cur, nil
}

func weekCell(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// WriteWorkbook renders cur in the layout readWorkbook accepts.
func WriteWorkbook(cur model.Curriculum) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for c, h := range workbookHeader {
		if err := setCell(f, sheet, c, 1, h); err != nil {
			return nil, err
		}
	}
	row := 2
	for _, ch := range cur.Chapters {
		for _, l := range ch.Lessons {
			values := []any{
				ch.Name, l.Name, l.Periods, optionalWeek(l.WeekStart), optionalWeek(l.WeekEnd),
				l.Objectives.Recall, l.Objectives.Comprehension, l.Objectives.Application, l.Objectives.Advanced,
			}
			for c, v := range values {
				if err := setCell(f, sheet, c, row, v); err != nil {
					return nil, err
				}
			}
			row++
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, name, v)
}

func optionalWeek(w *int) any {
	if w == nil {
		return ""
	}
	return *w
}
