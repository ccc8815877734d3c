package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/dethi/internal/model"
)

// Normalize repairs a curriculum read from an untrusted source so that it
// satisfies model.Curriculum.Validate. Missing or duplicate IDs are
// replaced, non-positive period counts become 1, weeks below 1 and
// inverted week ranges are cleared and zero chapter totals are recomputed
// from the lessons.
func Normalize(c model.Curriculum) model.Curriculum {
	c.Subject = strings.TrimSpace(c.Subject)
	c.Grade = strings.TrimSpace(c.Grade)

	seen := make(map[string]bool)
	claim := func(id, fallback, prefix string) string {
		id = strings.TrimSpace(id)
		if id == "" {
			id = fallback
		}
		if seen[id] {
			id = prefix + uuid.NewString()
		}
		seen[id] = true
		return id
	}

	chapters := make([]model.Chapter, 0, len(c.Chapters))
	for i, ch := range c.Chapters {
		chID := claim(ch.ID, fmt.Sprintf("c%d", i+1), "c_")
		ch.ID = chID
		ch.Name = strings.TrimSpace(ch.Name)
		if ch.Name == "" {
			ch.Name = fmt.Sprintf("Chương %d", i+1)
		}

		lessons := make([]model.Lesson, 0, len(ch.Lessons))
		sum := 0
		for j, l := range ch.Lessons {
			l.ID = claim(l.ID, fmt.Sprintf("%s_l%d", chID, j+1), "l_")
			l.Name = strings.TrimSpace(l.Name)
			if l.Name == "" {
				l.Name = fmt.Sprintf("Bài %d", j+1)
			}
			if l.Periods <= 0 {
				l.Periods = 1
			}
			l.WeekStart, l.WeekEnd = validWeek(l.WeekStart), validWeek(l.WeekEnd)
			if l.WeekStart != nil && l.WeekEnd != nil && *l.WeekEnd < *l.WeekStart {
				l.WeekStart, l.WeekEnd = nil, nil
			}
			sum += l.Periods
			lessons = append(lessons, l)
		}
		ch.Lessons = lessons
		if ch.TotalPeriods <= 0 {
			ch.TotalPeriods = sum
		}
		chapters = append(chapters, ch)
	}
	c.Chapters = chapters
	return c
}

func validWeek(w *int) *int {
	if w == nil || *w < 1 {
		return nil
	}
	return w
}
