package main

import (
	"testing"

	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/wizard"
)

func TestParseCell(t *testing.T) {
	tests := []struct {
		key   string
		typ   model.QuestionType
		level model.Level
		ok    bool
	}{
		{"type1_biet", model.TypeMultipleChoice, model.LevelRecall, true},
		{"type3_van_dung", model.TypeShortAnswer, model.LevelApplication, true},
		{"essay_hieu", model.TypeEssay, model.LevelComprehension, true},
		{"type2_sieu_kho", 0, 0, false},
		{"type9_biet", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			typ, level, ok := parseCell(tt.key)
			if ok != tt.ok {
				t.Fatalf("parseCell(%q) ok = %v, want %v", tt.key, ok, tt.ok)
			}
			if ok && (typ != tt.typ || level != tt.level) {
				t.Errorf("parseCell(%q) = %v/%v, want %v/%v", tt.key, typ, level, tt.typ, tt.level)
			}
		})
	}
}

func TestQuestionActions(t *testing.T) {
	actions, err := questionActions(map[string]int{"type1_biet": 6, "essay_van_dung": -3})
	if err != nil {
		t.Fatalf("questionActions: %v", err)
	}
	s := wizard.Reduce(wizard.New(), actions...)
	if got := s.Questions.Get(model.TypeMultipleChoice, model.LevelRecall); got != 6 {
		t.Errorf("type1 biet = %d, want 6", got)
	}
	if got := s.Questions.Get(model.TypeEssay, model.LevelApplication); got != 0 {
		t.Errorf("essay van_dung = %d, want 0", got)
	}

	if _, err := questionActions(map[string]int{"bogus": 1}); err == nil {
		t.Error("expected error for unknown cell")
	}
	if _, err := questionActions(map[string]int{"type1_biet": model.MaxQuestionCount + 1}); err == nil {
		t.Error("expected error for an oversized count")
	}
}
