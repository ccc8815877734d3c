package model

import (
	"strings"
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func TestQuestionConfigClamp(t *testing.T) {
	c := QuestionConfig{}.Set(TypeMultipleChoice, LevelRecall, -5)
	if got := c.Get(TypeMultipleChoice, LevelRecall); got != 0 {
		t.Fatalf("Set(-5) stored %d, want 0", got)
	}
	again := c.Set(TypeMultipleChoice, LevelRecall, c.Get(TypeMultipleChoice, LevelRecall))
	if again != c {
		t.Errorf("clamping twice changed the config: %v vs %v", again, c)
	}

	c = c.Set(TypeEssay, LevelApplication, 7)
	if got := c.Get(TypeEssay, LevelApplication); got != 7 {
		t.Errorf("Set(7) stored %d", got)
	}

	unchanged := c.Set(NumQuestionTypes, LevelRecall, 3)
	if unchanged != c {
		t.Error("unknown type should leave config unchanged")
	}
}

func TestQuestionConfigSchemes(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QuestionConfig
		scheme  Scheme
		columns int
	}{
		{"default has essay", DefaultQuestionConfig(), Scheme3223, 16},
		{"no essay", DefaultQuestionConfig().Set(TypeEssay, LevelComprehension, 0).Set(TypeEssay, LevelApplication, 0), Scheme3430, 13},
		{"all zero", QuestionConfig{}, Scheme3430, 13},
		{"essay only", QuestionConfig{}.Set(TypeEssay, LevelRecall, 1), Scheme3223, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Scheme(); got != tt.scheme {
				t.Errorf("Scheme() = %v, want %v", got, tt.scheme)
			}
			if got := tt.cfg.Scheme().Columns(); got != tt.columns {
				t.Errorf("Columns() = %d, want %d", got, tt.columns)
			}
		})
	}
}

func TestSchemePointsSumToTen(t *testing.T) {
	for _, s := range []Scheme{Scheme3223, Scheme3430} {
		sum := 0.0
		for _, qt := range QuestionTypes {
			sum += s.Points(qt)
		}
		if sum != 10 {
			t.Errorf("%v sums to %v", s, sum)
		}
	}
	if Scheme3430.Points(TypeEssay) != 0 {
		t.Error("3-4-3-0 must give no points to essay")
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{" 12 ", 12, false},
		{"", 0, false},
		{"-4", 0, false},
		{"2.9", 2, false},
		{"2,5", 2, false},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"1000", 1000, false},
		{"1001", 0, true},
		{"1e20", 0, true},
		{"99999999999999999999", 0, true},
		{"-99999999999999999999", 0, false},
		{"Inf", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCurriculumValidate(t *testing.T) {
	ok := Curriculum{Chapters: []Chapter{{
		ID: "c1", Name: "Chương 1",
		Lessons: []Lesson{{ID: "c1_l1", Name: "Bài 1", Periods: 2, WeekStart: intp(1), WeekEnd: intp(2)}},
	}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	bad := Curriculum{Chapters: []Chapter{
		{ID: "c1", Lessons: []Lesson{
			{ID: "x", Periods: 0},
			{ID: "x", Periods: 1, WeekStart: intp(5), WeekEnd: intp(3)},
		}},
		{ID: "c1"},
	}}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"periods must be positive", "duplicate id \"x\"", "week end 3 before week start 5", "duplicate id \"c1\""} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestSelectedChaptersAndPeriods(t *testing.T) {
	cur := Curriculum{Chapters: []Chapter{
		{ID: "c1", Lessons: []Lesson{{ID: "a", Periods: 2}, {ID: "b", Periods: 3}}},
		{ID: "c2", Lessons: []Lesson{{ID: "c", Periods: 4}}},
		{ID: "c3"},
	}}
	sel := func(id string) bool { return id == "a" || id == "b" }

	chs := cur.SelectedChapters(sel)
	if len(chs) != 1 || chs[0].ID != "c1" || len(chs[0].Lessons) != 2 {
		t.Fatalf("SelectedChapters = %+v", chs)
	}
	if got := cur.SelectedPeriods(sel); got != 5 {
		t.Errorf("SelectedPeriods = %d, want 5", got)
	}
	if len(cur.Chapters[0].Lessons) != 2 {
		t.Error("SelectedChapters must not mutate the curriculum")
	}
}

func TestLessonWeekDefaults(t *testing.T) {
	l := Lesson{}
	if l.StartWeek() != 0 || l.EndWeek() != 99 {
		t.Errorf("defaults = %d..%d, want 0..99", l.StartWeek(), l.EndWeek())
	}
	l = Lesson{WeekStart: intp(0), WeekEnd: intp(0)}
	if l.EndWeek() != NoWeekEnd {
		t.Errorf("week 0 end = %d, want %d", l.EndWeek(), NoWeekEnd)
	}
	l = Lesson{WeekStart: intp(-3), WeekEnd: intp(7)}
	if l.StartWeek() != NoWeekStart || l.EndWeek() != 7 {
		t.Errorf("weeks = %d..%d, want 0..7", l.StartWeek(), l.EndWeek())
	}
}

func TestDefaultDuration(t *testing.T) {
	tests := []struct {
		examType string
		want     int
	}{
		{ExamQuiz15, 15},
		{ExamQuiz45, 45},
		{ExamMidTerm1, 90},
		{ExamEndTerm2, 90},
		{"mid-term 2", 90},
		{"Ôn tập", 60},
	}
	for _, tt := range tests {
		if got := DefaultDuration(tt.examType, 60); got != tt.want {
			t.Errorf("DefaultDuration(%q) = %d, want %d", tt.examType, got, tt.want)
		}
	}
}

func TestGatePassExpired(t *testing.T) {
	exp := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	p := GatePass{Token: "x", ExpiresAt: exp}
	if p.Expired(exp.Add(-time.Second)) {
		t.Error("pass lapsed before its expiry")
	}
	if !p.Expired(exp) {
		t.Error("pass still live at its expiry")
	}
}
