package selection

import (
	"strings"

	"github.com/pavelanni/dethi/internal/model"
)

// Term is the part of the school year an exam type covers.
type Term int

const (
	TermAny Term = iota
	TermMidTerm1
	TermEndTerm1
	TermMidTerm2
	TermEndTerm2
)

var termLabels = []struct {
	term   Term
	labels []string
}{
	{TermMidTerm1, []string{"giữa kỳ 1", "giữa kì 1", "mid-term 1"}},
	{TermEndTerm1, []string{"cuối kỳ 1", "cuối kì 1", "end-of-term 1"}},
	{TermMidTerm2, []string{"giữa kỳ 2", "giữa kì 2", "mid-term 2"}},
	{TermEndTerm2, []string{"cuối kỳ 2", "cuối kì 2", "end-of-term 2"}},
}

// TermOf classifies an exam type label.
func TermOf(examType string) Term {
	t := strings.ToLower(examType)
	for _, tl := range termLabels {
		for _, l := range tl.labels {
			if strings.Contains(t, l) {
				return tl.term
			}
		}
	}
	return TermAny
}

// Includes reports whether a lesson belongs to the term.
func (t Term) Includes(l model.Lesson) bool {
	start, end := l.StartWeek(), l.EndWeek()
	switch t {
	case TermMidTerm1:
		return end <= 10
	case TermEndTerm1:
		return end <= 18
	case TermMidTerm2:
		return start >= 19 && end <= 27
	}
	return true
}

// SmartFilter selects the lessons an exam type covers by teaching week.
//
// The result replaces any previous selection: manual toggles made before a
// re-filter are discarded, not merged. Exam types without a term (short
// quizzes) select every lesson and leave pruning to the user.
func SmartFilter(examType string, cur model.Curriculum) Set {
	term := TermOf(examType)
	var ids []string
	for _, ch := range cur.Chapters {
		for _, l := range ch.Lessons {
			if term.Includes(l) {
				ids = append(ids, l.ID)
			}
		}
	}
	return Of(ids...)
}
