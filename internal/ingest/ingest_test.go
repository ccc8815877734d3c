package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/model"
)

func TestFileIsText(t *testing.T) {
	tests := []struct {
		file File
		want bool
	}{
		{File{Name: "ma_tran.html"}, true},
		{File{Name: "MA_TRAN.HTM"}, true},
		{File{Name: "notes.txt"}, true},
		{File{Name: "blob", ContentType: "text/html; charset=utf-8"}, true},
		{File{Name: "blob", ContentType: "text/plain"}, true},
		{File{Name: "ma_tran.pdf", ContentType: "application/pdf"}, false},
		{File{Name: "scan.png"}, false},
	}
	for _, tt := range tests {
		if got := tt.file.IsText(); got != tt.want {
			t.Errorf("IsText(%q, %q) = %v, want %v", tt.file.Name, tt.file.ContentType, got, tt.want)
		}
	}
}

func TestFileMIMEType(t *testing.T) {
	tests := []struct {
		file File
		want string
	}{
		{File{Name: "a.PDF", ContentType: "application/octet-stream"}, "application/pdf"},
		{File{Name: "a.docx"}, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{File{Name: "noext", ContentType: "image/jpeg"}, "image/jpeg"},
		{File{Name: "noext", Data: []byte("%PDF-1.7\n")}, "application/pdf"},
	}
	for _, tt := range tests {
		if got := tt.file.MIMEType(); got != tt.want {
			t.Errorf("MIMEType(%q) = %q, want %q", tt.file.Name, got, tt.want)
		}
	}
}

func TestReadTextDropsBOM(t *testing.T) {
	f := File{Name: "a.html", Data: append([]byte{0xEF, 0xBB, 0xBF}, []byte("<table>Chương</table>")...)}
	got, err := f.ReadText()
	if err != nil {
		t.Fatal(err)
	}
	if got != "<table>Chương</table>" {
		t.Errorf("ReadText = %q", got)
	}
}

func intp(v int) *int { return &v }

func TestNormalize(t *testing.T) {
	in := model.Curriculum{
		Subject: " Toán ",
		Chapters: []model.Chapter{
			{Name: "Chương A", Lessons: []model.Lesson{
				{Name: "Bài 1", Periods: 0},
				{ID: "dup", Name: "Bài 2", Periods: 3, WeekStart: intp(5), WeekEnd: intp(2)},
			}},
			{ID: "dup", Name: "", Lessons: []model.Lesson{{ID: "c1_l1", Name: "Bài 3", Periods: -2}}},
		},
	}
	got := Normalize(in)
	if err := got.Validate(); err != nil {
		t.Fatalf("normalized curriculum invalid: %v", err)
	}
	if got.Subject != "Toán" {
		t.Errorf("Subject = %q", got.Subject)
	}
	a := got.Chapters[0]
	if a.ID != "c1" || a.Lessons[0].ID != "c1_l1" || a.Lessons[0].Periods != 1 {
		t.Errorf("first chapter = %+v", a)
	}
	if a.Lessons[1].WeekStart != nil || a.Lessons[1].WeekEnd != nil {
		t.Error("inverted weeks must be cleared")
	}
	if a.TotalPeriods != 4 {
		t.Errorf("TotalPeriods = %d, want 4", a.TotalPeriods)
	}
	b := got.Chapters[1]
	if b.ID == "dup" || b.Name != "Chương 2" {
		t.Errorf("second chapter = %q %q", b.ID, b.Name)
	}
	if b.Lessons[0].ID == "c1_l1" {
		t.Error("colliding lesson id must be replaced")
	}
}

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		chapters int
		wantErr  bool
	}{
		{
			name:     "strict",
			text:     `{"subject":"Vật lí","grade":11,"chapters":[{"name":"Dao động","lessons":[{"name":"Dao động điều hòa","periods":"3","weekStart":1,"weekEnd":2,"objectives":{"biet":"Nêu định nghĩa"}}]}]}`,
			chapters: 1,
		},
		{
			name:     "fenced with prose",
			text:     "Đây là kết quả:\n```json\n{\"chapters\":[{\"name\":\"C\",\"lessons\":[]}]}\n```",
			chapters: 1,
		},
		{name: "garbage", text: "xin lỗi, tôi không đọc được", wantErr: true},
		{name: "array", text: `[1,2]`, wantErr: true},
		{name: "schema violation", text: `{"chapters":[{"lessons":"none"}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur, err := ParseExtraction(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(cur.Chapters) != tt.chapters {
				t.Errorf("got %d chapters, want %d", len(cur.Chapters), tt.chapters)
			}
		})
	}
}

func TestParseExtractionFlexibleTypes(t *testing.T) {
	cur, err := ParseExtraction(`{"grade":10,"chapters":[{"name":"C","lessons":[{"name":"L","periods":"2.0","weekStart":null,"weekEnd":"4"}]}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Grade != "10" {
		t.Errorf("Grade = %q", cur.Grade)
	}
	l := cur.Chapters[0].Lessons[0]
	if l.Periods != 2 || l.WeekStart != nil || l.WeekEnd == nil || *l.WeekEnd != 4 {
		t.Errorf("lesson = %+v", l)
	}
}

func TestParseExtractionZeroWeeks(t *testing.T) {
	cur, err := ParseExtraction(`{"chapters":[{"name":"C","lessons":[{"name":"L","periods":1,"weekStart":0,"weekEnd":0}]}]}`)
	if err != nil {
		t.Fatal(err)
	}
	l := cur.Chapters[0].Lessons[0]
	if l.WeekStart != nil || l.WeekEnd != nil {
		t.Errorf("week 0 must read as absent, got %v..%v", l.WeekStart, l.WeekEnd)
	}
	if l.EndWeek() != model.NoWeekEnd {
		t.Errorf("EndWeek() = %d", l.EndWeek())
	}
}

func TestExtractor(t *testing.T) {
	t.Run("unparseable answer yields empty curriculum", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: "not json"})
		cur, err := NewExtractor(mock).Extract(context.Background(), File{Name: "ppct.pdf", Data: []byte("%PDF")})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if len(cur.Chapters) != 0 {
			t.Errorf("chapters = %d", len(cur.Chapters))
		}
		req, _ := mock.LastCall()
		if !req.JSON || len(req.Attachments) != 1 || req.Attachments[0].MIMEType != "application/pdf" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	t.Run("provider failure yields empty curriculum", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Err: errors.New("quota")})
		cur, err := NewExtractor(mock).Extract(context.Background(), File{Name: "a.pdf"})
		if err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if len(cur.Chapters) != 0 || cur.Subject != "" {
			t.Errorf("curriculum = %+v, want empty", cur)
		}
	})
}

func TestConverter(t *testing.T) {
	t.Run("text file skips the collaborator", func(t *testing.T) {
		mock := llm.NewMockProvider()
		got, err := NewConverter(mock).ToHTML(context.Background(), File{Name: "m.html", Data: []byte("<table>M</table>")})
		if err != nil || got != "<table>M</table>" {
			t.Fatalf("ToHTML = %q, %v", got, err)
		}
		if mock.CallCount() != 0 {
			t.Errorf("collaborator called %d times", mock.CallCount())
		}
	})

	t.Run("fences stripped", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: "```html\n<table>X</table>\n```"})
		got, err := NewConverter(mock).ToHTML(context.Background(), File{Name: "m.pdf"})
		if err != nil || got != "<table>X</table>" {
			t.Fatalf("ToHTML = %q, %v", got, err)
		}
	})

	t.Run("empty answer", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Text: "  "})
		_, err := NewConverter(mock).ToHTML(context.Background(), File{Name: "m.pdf"})
		if !errors.Is(err, ErrEmptyConversion) {
			t.Errorf("err = %v, want ErrEmptyConversion", err)
		}
	})
}

func TestLoadCurriculum(t *testing.T) {
	yamlDoc := `
subject: Toán
grade: "10"
chapters:
  - name: Mệnh đề và tập hợp
    lessons:
      - name: Mệnh đề
        periods: 3
        week_start: 1
        week_end: 2
        objectives:
          biet: Nhận biết mệnh đề
`
	cur, err := LoadCurriculum("toan10.yaml", []byte(yamlDoc))
	if err != nil {
		t.Fatal(err)
	}
	l := cur.Chapters[0].Lessons[0]
	if l.ID != "c1_l1" || l.StartWeek() != 1 || l.EndWeek() != 2 || l.Objectives.Recall != "Nhận biết mệnh đề" {
		t.Errorf("lesson = %+v", l)
	}

	if _, err := LoadCurriculum("x.json", []byte(`{"chapters":[]}`)); err == nil {
		t.Error("expected error for empty tree")
	}
	if _, err := LoadCurriculum("x.csv", nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestWorkbookRoundTrip(t *testing.T) {
	in := model.Curriculum{Chapters: []model.Chapter{
		{Name: "Chương 1", Lessons: []model.Lesson{
			{Name: "Bài 1", Periods: 2, WeekStart: intp(1), WeekEnd: intp(2), Objectives: model.Objectives{Recall: "Biết A"}},
			{Name: "Bài 2", Periods: 1},
		}},
		{Name: "Chương 2", Lessons: []model.Lesson{{Name: "Bài 3", Periods: 4, WeekStart: intp(10), WeekEnd: intp(11)}}},
	}}
	data, err := WriteWorkbook(in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := LoadCurriculum("ppct.xlsx", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Chapters) != 2 || len(got.Chapters[0].Lessons) != 2 {
		t.Fatalf("unexpected tree: %+v", got)
	}
	first := got.Chapters[0].Lessons[0]
	if first.Periods != 2 || first.StartWeek() != 1 || first.Objectives.Recall != "Biết A" {
		t.Errorf("first lesson = %+v", first)
	}
	if got.Chapters[0].Lessons[1].WeekStart != nil {
		t.Error("blank week cell must stay unset")
	}
	if got.Chapters[1].TotalPeriods != 4 {
		t.Errorf("TotalPeriods = %d", got.Chapters[1].TotalPeriods)
	}
}

func TestIsCurriculumFile(t *testing.T) {
	for name, want := range map[string]bool{"a.yaml": true, "a.YML": true, "a.json": true, "a.xlsx": true, "a.pdf": false} {
		if got := IsCurriculumFile(name); got != want {
			t.Errorf("IsCurriculumFile(%q) = %v", name, got)
		}
	}
}
