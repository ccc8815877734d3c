package wizard

import (
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/selection"
)

// Action transitions a State. Implementations must be pure.
type Action interface {
	Apply(State) State
}

// Reduce applies actions in order.
func Reduce(s State, actions ...Action) State {
	for _, a := range actions {
		s = a.Apply(s)
	}
	return s
}

// SetInfo updates the free-form exam metadata. A non-positive duration
// keeps the current one.
type SetInfo struct {
	Subject  string
	Grade    string
	Duration int
	Notes    string
}

func (a SetInfo) Apply(s State) State {
	s.Info.Subject = strings.TrimSpace(a.Subject)
	s.Info.Grade = strings.TrimSpace(a.Grade)
	s.Info.Notes = a.Notes
	if a.Duration > 0 {
		s.Info.Duration = a.Duration
	}
	return s
}

// SetExamType changes the exam type, resets the duration to the type's
// convention and re-runs the smart filter when a curriculum is loaded.
type SetExamType struct {
	ExamType string
}

func (a SetExamType) Apply(s State) State {
	s.Info.ExamType = a.ExamType
	s.Info.Duration = model.DefaultDuration(a.ExamType, s.Info.Duration)
	if len(s.Curriculum.Chapters) > 0 {
		s.Selection = selection.SmartFilter(a.ExamType, s.Curriculum)
	}
	return s
}

// ReplaceCurriculum installs a new chapter tree, as produced by document
// extraction or a curriculum import. Subject and grade overwrite the
// current ones only when non-empty.
type ReplaceCurriculum struct {
	Subject    string
	Grade      string
	Curriculum model.Curriculum
}

func (a ReplaceCurriculum) Apply(s State) State {
	if a.Subject != "" {
		s.Info.Subject = a.Subject
	}
	if a.Grade != "" {
		s.Info.Grade = a.Grade
	}
	s.Curriculum = a.Curriculum
	s.Curriculum.Subject = s.Info.Subject
	s.Curriculum.Grade = s.Info.Grade

	ids := make([]string, 0, len(a.Curriculum.Chapters))
	for _, ch := range a.Curriculum.Chapters {
		ids = append(ids, ch.ID)
	}
	s.Expanded = selection.Of(ids...)

	if len(a.Curriculum.Chapters) > 0 {
		s.Selection = selection.SmartFilter(s.Info.ExamType, s.Curriculum)
	} else {
		s.Selection = selection.Prune(s.Curriculum, s.Selection)
	}
	return s
}

// ApplyFilter re-runs the smart filter for the current exam type. The
// previous selection is discarded.
type ApplyFilter struct{}

func (ApplyFilter) Apply(s State) State {
	s.Selection = selection.SmartFilter(s.Info.ExamType, s.Curriculum)
	return s
}

// ToggleLesson flips the selection of one lesson.
type ToggleLesson struct{ ID string }

func (a ToggleLesson) Apply(s State) State {
	s.Selection = selection.ToggleLesson(s.Curriculum, s.Selection, a.ID)
	return s
}

// ToggleChapter selects or clears every lesson of a chapter.
type ToggleChapter struct {
	ID     string
	Select bool
}

func (a ToggleChapter) Apply(s State) State {
	s.Selection = selection.ToggleChapter(s.Curriculum, s.Selection, a.ID, a.Select)
	return s
}

// ToggleExpand flips whether a chapter is expanded in the tree.
type ToggleExpand struct{ ID string }

func (a ToggleExpand) Apply(s State) State {
	if _, ok := s.Curriculum.FindChapter(a.ID); !ok {
		return s
	}
	s.Expanded = s.Expanded.Toggle(a.ID)
	return s
}

// SetCount sets one question count. Negative values clamp to zero.
type SetCount struct {
	Type  model.QuestionType
	Level model.Level
	Value int
}

func (a SetCount) Apply(s State) State {
	s.Questions = s.Questions.Set(a.Type, a.Level, a.Value)
	return s
}

// Started marks op as in flight and clears any displayed error.
type Started struct{ Op Op }

func (a Started) Apply(s State) State {
	s.InFlight = s.InFlight.with(a.Op)
	s.Err = ""
	return s
}

// Succeeded stores the document an operation produced and advances the
// stage. Results from an earlier epoch only clear the in-flight bit.
type Succeeded struct {
	Op      Op
	Epoch   int
	Content string
}

func (a Succeeded) Apply(s State) State {
	s.InFlight = s.InFlight.without(a.Op)
	if a.Epoch != s.Epoch {
		return s
	}
	switch a.Op {
	case OpGenerateMatrix, OpUploadMatrix:
		s.Docs.Matrix = a.Content
		s = s.advance(model.StageMatrix)
	case OpReplaceMatrix:
		s.Docs.Matrix = a.Content
	case OpGenerateSpecs:
		s.Docs.Specs = a.Content
		s = s.advance(model.StageSpecs)
	case OpGenerateExam:
		s.Docs.Exam = a.Content
		s = s.advance(model.StageExam)
	}
	return s
}

func (s State) advance(to model.Stage) State {
	s.Stage = to
	s.Watermark = max(s.Watermark, to)
	return s
}

// Extracted installs the result of document extraction.
type Extracted struct {
	Epoch  int
	Result ReplaceCurriculum
}

func (a Extracted) Apply(s State) State {
	s.InFlight = s.InFlight.without(OpExtract)
	if a.Epoch != s.Epoch {
		return s
	}
	return a.Result.Apply(s)
}

// Failed clears the in-flight bit and shows message. Everything else is
// left as it was before the operation started.
type Failed struct {
	Op      Op
	Epoch   int
	Message string
}

func (a Failed) Apply(s State) State {
	s.InFlight = s.InFlight.without(a.Op)
	if a.Epoch != s.Epoch {
		return s
	}
	s.Err = a.Message
	return s
}

// EditDocument replaces a document with the user's edit. Documents of
// later stages are not invalidated.
type EditDocument struct {
	Slot    model.Slot
	Content string
}

func (a EditDocument) Apply(s State) State {
	s.Docs = s.Docs.With(a.Slot, a.Content)
	return s
}

// Navigate jumps to a stage that has already been reached. Other targets
// leave the state unchanged.
type Navigate struct{ Stage model.Stage }

func (a Navigate) Apply(s State) State {
	if !s.CanNavigate(a.Stage) {
		return s
	}
	s.Stage = a.Stage
	return s
}

// ShowError shows a validation message without touching operations.
type ShowError struct{ Message string }

func (a ShowError) Apply(s State) State {
	s.Err = a.Message
	return s
}

// DismissError hides the error banner.
type DismissError struct{}

func (DismissError) Apply(s State) State {
	s.Err = ""
	return s
}

// Reset returns to a fresh session. Operations still in flight stay
// guarded but their results are dropped.
type Reset struct{}

func (Reset) Apply(s State) State {
	n := New()
	n.InFlight = s.InFlight
	n.Epoch = s.Epoch + 1
	return n
}

// AddChapter appends an empty chapter to the tree and expands it.
type AddChapter struct {
	ID   string
	Name string
}

// NewAddChapter returns an AddChapter with a generated ID.
func NewAddChapter(name string) AddChapter {
	return AddChapter{ID: "c_" + uuid.NewString(), Name: strings.TrimSpace(name)}
}

func (a AddChapter) Apply(s State) State {
	if a.ID == "" || a.Name == "" || s.hasID(a.ID) {
		return s
	}
	s.Curriculum.Chapters = append(cloneChapters(s.Curriculum.Chapters), model.Chapter{ID: a.ID, Name: a.Name})
	s.Expanded = s.Expanded.With(a.ID)
	return s
}

// AddLesson appends a lesson to a chapter and selects it.
type AddLesson struct {
	ChapterID string
	Lesson    model.Lesson
}

// NewAddLesson returns an AddLesson with a generated lesson ID.
func NewAddLesson(chapterID string, l model.Lesson) AddLesson {
	l.ID = "l_" + uuid.NewString()
	l.Name = strings.TrimSpace(l.Name)
	return AddLesson{ChapterID: chapterID, Lesson: l}
}

func (a AddLesson) Apply(s State) State {
	l := a.Lesson
	if l.ID == "" || l.Name == "" || s.hasID(l.ID) {
		return s
	}
	l.Periods = max(l.Periods, 1)
	chapters := cloneChapters(s.Curriculum.Chapters)
	for i := range chapters {
		if chapters[i].ID != a.ChapterID {
			continue
		}
		chapters[i].Lessons = append(chapters[i].Lessons, l)
		chapters[i].TotalPeriods += l.Periods
		s.Curriculum.Chapters = chapters
		s.Selection = s.Selection.With(l.ID)
		return s
	}
	return s
}

// RemoveLesson deletes a lesson from the tree and the selection.
type RemoveLesson struct{ ID string }

func (a RemoveLesson) Apply(s State) State {
	chapters := cloneChapters(s.Curriculum.Chapters)
	for i := range chapters {
		for j, l := range chapters[i].Lessons {
			if l.ID != a.ID {
				continue
			}
			chapters[i].Lessons = append(chapters[i].Lessons[:j:j], chapters[i].Lessons[j+1:]...)
			chapters[i].TotalPeriods = max(chapters[i].TotalPeriods-l.Periods, 0)
			s.Curriculum.Chapters = chapters
			s.Selection = selection.Prune(s.Curriculum, s.Selection)
			return s
		}
	}
	return s
}

func (s State) hasID(id string) bool {
	if _, ok := s.Curriculum.FindChapter(id); ok {
		return true
	}
	_, ok := s.Curriculum.FindLesson(id)
	return ok
}

func cloneChapters(in []model.Chapter) []model.Chapter {
	out := make([]model.Chapter, len(in))
	for i, ch := range in {
		ch.Lessons = append([]model.Lesson(nil), ch.Lessons...)
		out[i] = ch
	}
	return out
}
