// Package selection tracks which lessons of a curriculum are included in
// an exam and which chapters are expanded in the tree view.
package selection

import (
	"slices"

	"github.com/pavelanni/dethi/internal/model"
)

// Set is an immutable set of IDs. Every mutating method returns a new Set.
type Set struct {
	ids map[string]struct{}
}

// Of returns a Set holding the given IDs.
func Of(ids ...string) Set {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of IDs in the set.
func (s Set) Len() int { return len(s.ids) }

// IDs returns the IDs in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Equal reports whether both sets hold the same IDs.
func (s Set) Equal(o Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for id := range s.ids {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

func (s Set) clone() map[string]struct{} {
	m := make(map[string]struct{}, len(s.ids)+1)
	for id := range s.ids {
		m[id] = struct{}{}
	}
	return m
}

// With returns a copy of s including ids.
func (s Set) With(ids ...string) Set {
	m := s.clone()
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}
}

// Without returns a copy of s excluding ids.
func (s Set) Without(ids ...string) Set {
	m := s.clone()
	for _, id := range ids {
		delete(m, id)
	}
	return Set{ids: m}
}

// Toggle returns a copy of s with the membership of id flipped.
func (s Set) Toggle(id string) Set {
	if s.Has(id) {
		return s.Without(id)
	}
	return s.With(id)
}

// ToggleLesson flips the membership of a lesson. IDs that do not reference
// a lesson of cur are ignored.
func ToggleLesson(cur model.Curriculum, s Set, id string) Set {
	if _, ok := cur.FindLesson(id); !ok {
		return s
	}
	return s.Toggle(id)
}

// ToggleChapter adds (selectAll) or removes every lesson of a chapter.
// Unknown chapters leave the set unchanged.
func ToggleChapter(cur model.Curriculum, s Set, chapterID string, selectAll bool) Set {
	ch, ok := cur.FindChapter(chapterID)
	if !ok {
		return s
	}
	ids := make([]string, 0, len(ch.Lessons))
	for _, l := range ch.Lessons {
		ids = append(ids, l.ID)
	}
	if selectAll {
		return s.With(ids...)
	}
	return s.Without(ids...)
}

// Prune drops IDs that no longer reference a lesson of cur.
func Prune(cur model.Curriculum, s Set) Set {
	valid := make(map[string]struct{}, s.Len())
	for _, id := range cur.LessonIDs() {
		if s.Has(id) {
			valid[id] = struct{}{}
		}
	}
	return Set{ids: valid}
}

// ChapterStatus is the derived selection state of one chapter.
type ChapterStatus struct {
	Selected int
	Total    int
}

// Full reports whether every lesson is selected. A chapter without
// lessons is vacuously full.
func (c ChapterStatus) Full() bool { return c.Selected == c.Total }

// Partial reports whether some but not all lessons are selected.
func (c ChapterStatus) Partial() bool { return c.Selected > 0 && c.Selected < c.Total }

// Status computes the selection status of a chapter.
func Status(ch model.Chapter, s Set) ChapterStatus {
	st := ChapterStatus{Total: len(ch.Lessons)}
	for _, l := range ch.Lessons {
		if s.Has(l.ID) {
			st.Selected++
		}
	}
	return st
}
