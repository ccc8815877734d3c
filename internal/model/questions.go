package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// QuestionType is one of the four MOET item formats.
type QuestionType int

const (
	TypeMultipleChoice QuestionType = iota // Dạng I: 4 lựa chọn
	TypeTrueFalse                          // Dạng II: Đúng/Sai
	TypeShortAnswer                        // Dạng III: Trả lời ngắn
	TypeEssay                              // Tự luận
	NumQuestionTypes
)

// QuestionTypes lists the question types in exam order.
var QuestionTypes = []QuestionType{TypeMultipleChoice, TypeTrueFalse, TypeShortAnswer, TypeEssay}

var typeKeys = [NumQuestionTypes]string{"type1", "type2", "type3", "essay"}

// Key returns the stable form/JSON key of the type.
func (t QuestionType) Key() string {
	if t < 0 || t >= NumQuestionTypes {
		return ""
	}
	return typeKeys[t]
}

// Part returns the roman numeral of the exam part this type occupies.
func (t QuestionType) Part() string {
	return [...]string{"I", "II", "III", "IV"}[t]
}

// ParseQuestionType converts a form key into a QuestionType.
func ParseQuestionType(s string) (QuestionType, bool) {
	for i, k := range typeKeys {
		if k == s {
			return QuestionType(i), true
		}
	}
	return 0, false
}

// Level is a cognitive level used to count questions.
type Level int

const (
	LevelRecall        Level = iota // Biết
	LevelComprehension              // Hiểu
	LevelApplication                // Vận dụng
	NumLevels
)

// Levels lists the levels in ascending order.
var Levels = []Level{LevelRecall, LevelComprehension, LevelApplication}

var levelKeys = [NumLevels]string{"biet", "hieu", "van_dung"}

// Key returns the stable form/JSON key of the level.
func (l Level) Key() string {
	if l < 0 || l >= NumLevels {
		return ""
	}
	return levelKeys[l]
}

// ParseLevel converts a form key into a Level.
func ParseLevel(s string) (Level, bool) {
	for i, k := range levelKeys {
		if k == s {
			return Level(i), true
		}
	}
	return 0, false
}

// QuestionConfig holds the requested question count for every type and
// level. All values are non-negative.
type QuestionConfig [NumQuestionTypes][NumLevels]int

// DefaultQuestionConfig returns the breakdown a fresh workspace starts with.
func DefaultQuestionConfig() QuestionConfig {
	return QuestionConfig{
		TypeMultipleChoice: {8, 4, 0},
		TypeTrueFalse:      {1, 1, 0},
		TypeShortAnswer:    {1, 1, 2},
		TypeEssay:          {0, 1, 2},
	}
}

// Set returns a copy with the count for (t, l) set to v, clamped to zero.
// Unknown types or levels leave the config unchanged.
func (c QuestionConfig) Set(t QuestionType, l Level, v int) QuestionConfig {
	if t < 0 || t >= NumQuestionTypes || l < 0 || l >= NumLevels {
		return c
	}
	c[t][l] = max(v, 0)
	return c
}

// Get returns the count for (t, l).
func (c QuestionConfig) Get(t QuestionType, l Level) int {
	return c[t][l]
}

// Total returns the number of questions of type t across levels.
func (c QuestionConfig) Total(t QuestionType) int {
	sum := 0
	for _, v := range c[t] {
		sum += v
	}
	return sum
}

// Present reports whether type t has at least one question. A type that is
// not present must be absent from every generated document.
func (c QuestionConfig) Present(t QuestionType) bool {
	return c.Total(t) > 0
}

// HasEssay reports whether the exam includes open-ended questions.
func (c QuestionConfig) HasEssay() bool {
	return c.Present(TypeEssay)
}

// Scheme selects the scoring scheme for the configuration.
func (c QuestionConfig) Scheme() Scheme {
	if c.HasEssay() {
		return Scheme3223
	}
	return Scheme3430
}

// MaxQuestionCount is the largest count accepted for a single cell.
const MaxQuestionCount = 1000

// ParseCount parses a question count typed into the form. Decimals are
// floored and negatives clamped to zero. Counts above MaxQuestionCount are
// rejected.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid question count %q", s)
	}
	if f > MaxQuestionCount {
		return 0, fmt.Errorf("question count %q above %d", s, MaxQuestionCount)
	}
	if f < 0 {
		return 0, nil
	}
	return int(math.Floor(f)), nil
}

// Scheme is a 10-point distribution across the four question types.
type Scheme int

const (
	Scheme3223 Scheme = iota // with essay: I 3, II 2, III 2, essay 3
	Scheme3430               // without essay: I 3, II 4, III 3
)

var schemePoints = [...][NumQuestionTypes]float64{
	Scheme3223: {3, 2, 2, 3},
	Scheme3430: {3, 4, 3, 0},
}

// Points returns the points the scheme gives to type t.
func (s Scheme) Points(t QuestionType) float64 {
	return schemePoints[s][t]
}

// Columns returns the column count of the matrix table for the scheme.
func (s Scheme) Columns() int {
	if s == Scheme3223 {
		return 16
	}
	return 13
}

func (s Scheme) String() string {
	if s == Scheme3223 {
		return "3-2-2-3"
	}
	return "3-4-3-0"
}
