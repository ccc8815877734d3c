package selection

import (
	"slices"
	"testing"

	"github.com/pavelanni/dethi/internal/model"
)

func week(v int) *int { return &v }

func testCurriculum() model.Curriculum {
	return model.Curriculum{Chapters: []model.Chapter{
		{ID: "c1", Name: "Chương 1", Lessons: []model.Lesson{
			{ID: "w1", Periods: 2, WeekStart: week(1), WeekEnd: week(3)},
			{ID: "w10", Periods: 2, WeekStart: week(9), WeekEnd: week(10)},
			{ID: "w11", Periods: 1, WeekStart: week(11), WeekEnd: week(11)},
		}},
		{ID: "c2", Name: "Chương 2", Lessons: []model.Lesson{
			{ID: "w18", Periods: 3, WeekStart: week(17), WeekEnd: week(18)},
			{ID: "w19", Periods: 3, WeekStart: week(19), WeekEnd: week(20)},
			{ID: "w27", Periods: 3, WeekStart: week(26), WeekEnd: week(27)},
			{ID: "w30", Periods: 3, WeekStart: week(30), WeekEnd: week(31)},
			{ID: "noweek", Periods: 1},
			{ID: "endonly", Periods: 1, WeekEnd: week(25)},
		}},
		{ID: "empty", Name: "Chương trống"},
	}}
}

func TestSmartFilter(t *testing.T) {
	cur := testCurriculum()
	tests := []struct {
		examType string
		want     []string
	}{
		{"Giữa kỳ 1", []string{"w1", "w10"}},
		{"mid-term 1", []string{"w1", "w10"}},
		{"Kiểm tra Mid-Term 1 (Toán)", []string{"w1", "w10"}},
		{"Cuối kỳ 1", []string{"w1", "w10", "w11", "w18"}},
		{"end-of-term 1", []string{"w1", "w10", "w11", "w18"}},
		{"Giữa kỳ 2", []string{"w19", "w27"}},
		{"mid-term 2", []string{"w19", "w27"}},
		{"Cuối kỳ 2", cur.LessonIDs()},
		{"Kiểm tra 15 phút", cur.LessonIDs()},
		{"", cur.LessonIDs()},
	}
	for _, tt := range tests {
		t.Run(tt.examType, func(t *testing.T) {
			got := SmartFilter(tt.examType, cur).IDs()
			want := slices.Clone(tt.want)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("SmartFilter(%q) = %v, want %v", tt.examType, got, want)
			}
		})
	}
}

func TestSmartFilterMidTerm1Boundaries(t *testing.T) {
	s := SmartFilter("mid-term 1", testCurriculum())
	if !s.Has("w10") {
		t.Error("lesson ending in week 10 must be included")
	}
	if s.Has("w11") {
		t.Error("lesson ending in week 11 must be excluded")
	}
	if s.Has("noweek") {
		t.Error("lesson without week end must be excluded")
	}
}

func TestSmartFilterZeroWeekIsUnknown(t *testing.T) {
	cur := model.Curriculum{Chapters: []model.Chapter{{ID: "c1", Lessons: []model.Lesson{
		{ID: "zero", Periods: 1, WeekStart: week(0), WeekEnd: week(0)},
		{ID: "w2", Periods: 1, WeekStart: week(1), WeekEnd: week(2)},
	}}}}
	tests := []struct {
		examType string
		want     []string
	}{
		{"Giữa kỳ 1", []string{"w2"}},
		{"Cuối kỳ 1", []string{"w2"}},
		{"Giữa kỳ 2", nil},
		{"Cuối kỳ 2", []string{"w2", "zero"}},
	}
	for _, tt := range tests {
		t.Run(tt.examType, func(t *testing.T) {
			got := SmartFilter(tt.examType, cur).IDs()
			if len(got) != len(tt.want) || (len(got) > 0 && !slices.Equal(got, tt.want)) {
				t.Errorf("SmartFilter(%q) = %v, want %v", tt.examType, got, tt.want)
			}
		})
	}
}

func TestToggleLesson(t *testing.T) {
	cur := testCurriculum()
	s := Of()

	s = ToggleLesson(cur, s, "w1")
	if !s.Has("w1") {
		t.Fatal("w1 should be selected")
	}
	s = ToggleLesson(cur, s, "w1")
	if s.Has("w1") {
		t.Fatal("w1 should be deselected")
	}

	before := Of("w10")
	after := ToggleLesson(cur, before, "ghost")
	if !after.Equal(before) {
		t.Error("unknown lesson must be a no-op")
	}
}

func TestToggleChapterRoundTrip(t *testing.T) {
	cur := testCurriculum()
	prior := Of("w1", "w30")

	on := ToggleChapter(cur, prior, "c1", true)
	for _, id := range []string{"w1", "w10", "w11", "w30"} {
		if !on.Has(id) {
			t.Errorf("expected %s selected", id)
		}
	}
	off := ToggleChapter(cur, on, "c1", false)
	if off.Has("w1") || off.Has("w10") || off.Has("w11") {
		t.Error("chapter lessons should be removed")
	}
	// Round trip from a state where the chapter was untouched.
	untouched := Of("w30")
	back := ToggleChapter(cur, ToggleChapter(cur, untouched, "c1", true), "c1", false)
	if !back.Equal(untouched) {
		t.Errorf("round trip = %v, want %v", back.IDs(), untouched.IDs())
	}

	if got := ToggleChapter(cur, prior, "nope", true); !got.Equal(prior) {
		t.Error("unknown chapter must be a no-op")
	}
}

func TestSetImmutability(t *testing.T) {
	a := Of("x")
	b := a.With("y")
	if a.Has("y") {
		t.Error("With mutated the receiver")
	}
	c := b.Without("x")
	if !b.Has("x") || c.Has("x") {
		t.Error("Without mutated the receiver")
	}
}

func TestStatus(t *testing.T) {
	cur := testCurriculum()
	c1, _ := cur.FindChapter("c1")
	empty, _ := cur.FindChapter("empty")

	tests := []struct {
		name        string
		ch          model.Chapter
		set         Set
		full, parts bool
	}{
		{"none", c1, Of(), false, false},
		{"some", c1, Of("w1"), false, true},
		{"all", c1, Of("w1", "w10", "w11"), true, false},
		{"empty chapter is vacuously full", empty, Of(), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Status(tt.ch, tt.set)
			if st.Full() != tt.full || st.Partial() != tt.parts {
				t.Errorf("Status = %+v (full=%v partial=%v), want full=%v partial=%v",
					st, st.Full(), st.Partial(), tt.full, tt.parts)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	cur := testCurriculum()
	s := Of("w1", "stale", "gone")
	got := Prune(cur, s)
	if !got.Equal(Of("w1")) {
		t.Errorf("Prune = %v, want [w1]", got.IDs())
	}
}
