package store

import (
	"context"
	"errors"
	"testing"

	"github.com/raaihank/pdn-sentinel/internal/privacy"
)

func TestRecordDefinitionConversion(t *testing.T) {
	def := privacy.CategoryDef{
		Name:       "project_codes",
		Kind:       privacy.KindPhrases,
		Phrases:    []string{"проект Сапфир", "project Sapphire"},
		LegalBasis: "NDA",
		Mask:       "full",
	}

	record := RecordFromDefinition(def)
	if len(record.Phrases) != 2 || record.Name != def.Name {
		t.Fatalf("record = %+v", record)
	}

	back := record.Definition()
	if back.Name != def.Name || back.Kind != def.Kind || back.LegalBasis != "NDA" || back.Mask != "full" {
		t.Errorf("definition = %+v", back)
	}
	if len(back.Phrases) != 2 || back.Phrases[1] != "project Sapphire" {
		t.Errorf("phrases = %v", back.Phrases)
	}

	// A regex category still gets a non-NULL phrases array.
	regex := RecordFromDefinition(privacy.CategoryDef{Name: "ticket", Kind: privacy.KindRegex, Pattern: `TCK-\d+`})
	if regex.Phrases == nil {
		t.Error("phrases should be an empty array, not nil")
	}
}

func TestUpsertRejectsInvalidDefinition(t *testing.T) {
	s := NewWithDB(nil, nil)

	tests := []privacy.CategoryDef{
		{Name: "", Kind: privacy.KindRegex, Pattern: "x"},
		{Name: "broken", Kind: privacy.KindRegex, Pattern: "("},
		{Name: "nogrammar", Kind: privacy.KindGrammar, Grammar: "iban"},
	}
	for _, def := range tests {
		if _, err := s.Upsert(context.Background(), def); err == nil {
			t.Errorf("Upsert(%+v) should fail before touching the database", def)
		}
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://sentinel:secret@db:5432/pdn?sslmode=disable", "postgres://sentinel:***@db:5432/pdn?sslmode=disable"},
		{"postgres://db:5432/pdn", "postgres://db:5432/pdn"},
		{"postgres://sentinel@db/pdn", "postgres://sentinel@db/pdn"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.url); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestErrCategoryNotFoundWraps(t *testing.T) {
	err := notFound("ghost")
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("expected ErrCategoryNotFound, got %v", err)
	}
}
