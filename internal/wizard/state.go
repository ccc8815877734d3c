// Package wizard holds the application state of one exam-building session
// and the pure reducers that transition it.
package wizard

import (
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/selection"
)

// Op is a long-running operation that can be in flight.
type Op uint8

const (
	OpGenerateMatrix Op = 1 << iota
	OpGenerateSpecs
	OpGenerateExam
	OpUploadMatrix
	OpReplaceMatrix
	OpExtract
)

var opNames = map[Op]string{
	OpGenerateMatrix: "generate_matrix",
	OpGenerateSpecs:  "generate_specs",
	OpGenerateExam:   "generate_exam",
	OpUploadMatrix:   "upload_matrix",
	OpReplaceMatrix:  "replace_matrix",
	OpExtract:        "extract",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

// OpSet is a bit set of in-flight operations.
type OpSet uint8

// Has reports whether op is in the set.
func (s OpSet) Has(op Op) bool { return s&OpSet(op) != 0 }

func (s OpSet) with(op Op) OpSet    { return s | OpSet(op) }
func (s OpSet) without(op Op) OpSet { return s &^ OpSet(op) }

// State is the full state of one wizard session. It is a value: reducers
// return modified copies and never share mutable data with their input.
type State struct {
	Info       model.ExamInfo
	Curriculum model.Curriculum
	Selection  selection.Set
	Expanded   selection.Set
	Questions  model.QuestionConfig
	Docs       model.Documents

	InFlight OpSet
	Err      string

	Stage     model.Stage
	Watermark model.Stage // highest stage ever reached

	// Epoch increments on Reset. Results of operations started in an
	// earlier epoch are discarded.
	Epoch int
}

// New returns the state of a fresh session.
func New() State {
	return State{
		Info:      model.DefaultExamInfo(),
		Selection: selection.Of(),
		Expanded:  selection.Of(),
		Questions: model.DefaultQuestionConfig(),
	}
}

// Busy reports whether any operation is in flight.
func (s State) Busy() bool { return s.InFlight != 0 }

// CanNavigate reports whether the step indicator may jump to stage.
func (s State) CanNavigate(stage model.Stage) bool {
	return stage.Valid() && stage <= s.Watermark
}

// Selected reports whether lesson id is selected. It has the signature
// expected by model.Curriculum.SelectedChapters.
func (s State) Selected(id string) bool { return s.Selection.Has(id) }

// SelectedChapters returns the chapters restricted to selected lessons.
func (s State) SelectedChapters() []model.Chapter {
	return s.Curriculum.SelectedChapters(s.Selected)
}

// SelectedPeriods returns the total periods of the selected lessons.
func (s State) SelectedPeriods() int {
	return s.Curriculum.SelectedPeriods(s.Selected)
}

// ChapterStatus returns the selection status of a chapter.
func (s State) ChapterStatus(ch model.Chapter) selection.ChapterStatus {
	return selection.Status(ch, s.Selection)
}
