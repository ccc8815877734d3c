package model

// Stage is a step of the wizard. Stages are ordered.
type Stage int

const (
	StageInput Stage = iota
	StageMatrix
	StageSpecs
	StageExam
)

// Stages lists the wizard stages in order.
var Stages = []Stage{StageInput, StageMatrix, StageSpecs, StageExam}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s >= StageInput && s <= StageExam
}

// Slot returns the document slot a stage displays. StageInput has none.
func (s Stage) Slot() (Slot, bool) {
	switch s {
	case StageMatrix:
		return SlotMatrix, true
	case StageSpecs:
		return SlotSpecs, true
	case StageExam:
		return SlotExam, true
	}
	return "", false
}

// LabelID returns the i18n message ID of the stage label.
func (s Stage) LabelID() string {
	switch s {
	case StageMatrix:
		return "StageMatrix"
	case StageSpecs:
		return "StageSpecs"
	case StageExam:
		return "StageExam"
	}
	return "StageInput"
}
