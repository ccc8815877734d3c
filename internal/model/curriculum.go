package model

import (
	"errors"
	"fmt"
)

// Objectives holds the learning objectives ("yêu cầu cần đạt") of a lesson,
// keyed by cognitive level.
type Objectives struct {
	Recall        string `json:"biet,omitempty" yaml:"biet,omitempty"`
	Comprehension string `json:"hieu,omitempty" yaml:"hieu,omitempty"`
	Application   string `json:"van_dung,omitempty" yaml:"van_dung,omitempty"`
	Advanced      string `json:"van_dung_cao,omitempty" yaml:"van_dung_cao,omitempty"`
}

// Lesson is a single lesson of a chapter.
type Lesson struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Periods    int        `json:"periods" yaml:"periods"`
	WeekStart  *int       `json:"weekStart,omitempty" yaml:"week_start,omitempty"`
	WeekEnd    *int       `json:"weekEnd,omitempty" yaml:"week_end,omitempty"`
	Objectives Objectives `json:"objectives" yaml:"objectives"`
}

// Week sentinels used when a lesson carries no teaching weeks.
const (
	NoWeekStart = 0
	NoWeekEnd   = 99
)

// StartWeek returns the first teaching week, or NoWeekStart. Week numbers
// below 1 count as absent.
func (l Lesson) StartWeek() int {
	if l.WeekStart == nil || *l.WeekStart < 1 {
		return NoWeekStart
	}
	return *l.WeekStart
}

// EndWeek returns the last teaching week, or NoWeekEnd.
func (l Lesson) EndWeek() int {
	if l.WeekEnd == nil || *l.WeekEnd < 1 {
		return NoWeekEnd
	}
	return *l.WeekEnd
}

// Chapter groups lessons. Lesson order is significant.
type Chapter struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	TotalPeriods int      `json:"totalPeriods" yaml:"total_periods"`
	Lessons      []Lesson `json:"lessons" yaml:"lessons"`
}

// Curriculum is the Chapter→Lesson tree of a subject.
type Curriculum struct {
	Subject  string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Grade    string    `json:"grade,omitempty" yaml:"grade,omitempty"`
	Chapters []Chapter `json:"chapters" yaml:"chapters"`
}

// Validate reports every structural violation in the tree.
func (c Curriculum) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, ch := range c.Chapters {
		if ch.ID == "" {
			errs = append(errs, fmt.Errorf("chapter %q: empty id", ch.Name))
		} else if seen[ch.ID] {
			errs = append(errs, fmt.Errorf("chapter %q: duplicate id %q", ch.Name, ch.ID))
		}
		seen[ch.ID] = true
		for _, l := range ch.Lessons {
			if l.ID == "" {
				errs = append(errs, fmt.Errorf("lesson %q: empty id", l.Name))
			} else if seen[l.ID] {
				errs = append(errs, fmt.Errorf("lesson %q: duplicate id %q", l.Name, l.ID))
			}
			seen[l.ID] = true
			if l.Periods <= 0 {
				errs = append(errs, fmt.Errorf("lesson %q: periods must be positive, got %d", l.ID, l.Periods))
			}
			if l.WeekStart != nil && l.WeekEnd != nil && *l.WeekEnd < *l.WeekStart {
				errs = append(errs, fmt.Errorf("lesson %q: week end %d before week start %d", l.ID, *l.WeekEnd, *l.WeekStart))
			}
		}
	}
	return errors.Join(errs...)
}

// FindChapter returns the chapter with the given ID.
func (c Curriculum) FindChapter(id string) (Chapter, bool) {
	for _, ch := range c.Chapters {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chapter{}, false
}

// FindLesson returns the lesson with the given ID.
func (c Curriculum) FindLesson(id string) (Lesson, bool) {
	for _, ch := range c.Chapters {
		for _, l := range ch.Lessons {
			if l.ID == id {
				return l, true
			}
		}
	}
	return Lesson{}, false
}

// LessonIDs returns every lesson ID in tree order.
func (c Curriculum) LessonIDs() []string {
	var ids []string
	for _, ch := range c.Chapters {
		for _, l := range ch.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// SelectedChapters returns the chapters restricted to lessons for which
// selected reports true. Chapters left without lessons are omitted.
func (c Curriculum) SelectedChapters(selected func(id string) bool) []Chapter {
	var out []Chapter
	for _, ch := range c.Chapters {
		var lessons []Lesson
		for _, l := range ch.Lessons {
			if selected(l.ID) {
				lessons = append(lessons, l)
			}
		}
		if len(lessons) == 0 {
			continue
		}
		ch.Lessons = lessons
		out = append(out, ch)
	}
	return out
}

// SelectedPeriods sums the periods of the selected lessons. A lesson
// without a period count weighs as one period.
func (c Curriculum) SelectedPeriods(selected func(id string) bool) int {
	total := 0
	for _, ch := range c.SelectedChapters(selected) {
		for _, l := range ch.Lessons {
			if l.Periods > 0 {
				total += l.Periods
			} else {
				total++
			}
		}
	}
	return total
}
