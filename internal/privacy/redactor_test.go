package privacy

import (
	"strings"
	"testing"
)

func TestMaskLiteral(t *testing.T) {
	tests := []struct {
		name    string
		style   MaskStyle
		literal string
		want    string
	}{
		{"short always hidden", MaskName, "Ян", "***"},
		{"short card", MaskCard, "123", "***"},
		{"email", MaskEdges, "test@example.com", "t*****m"},
		{"edges medium", MaskEdges, "ab@c.d", "a***d"},
		{"phone plus seven", MaskPhone, "+79123456789", "+7*****9"},
		{"phone trunk", MaskPhone, "8 912 345 67 89", "8*****9"},
		{"phone bare seven", MaskPhone, "79123456789", "+7*****9"},
		{"phone other", MaskPhone, "(912) 345-67-89", "(*****9"},
		{"phone short", MaskPhone, "+7912", "+7***"},
		{"card sixteen", MaskCard, "1234 5678 9012 3456", "1234********3456"},
		{"card other", MaskCard, "1234 5678", "1*****8"},
		{"name", MaskName, "Иван Петров", "Иван П."},
		{"name patronymic", MaskName, "Иван Иванович Петров", "Иван Иванович П."},
		{"name single", MaskName, "Иван", "Иван"},
		{"address", MaskAddress, "ул. Ленина, д. 5, кв. 12", "*** Л***а, *** ***, *** ***"},
		{"address long number", MaskAddress, "улица Мира, дом 1234", "*** М***а, *** 1***4"},
		{"full", MaskFull, "секретно", "*****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskLiteral(tt.style, tt.literal); got != tt.want {
				t.Errorf("MaskLiteral(%s, %q) = %q, want %q", tt.style, tt.literal, got, tt.want)
			}
		})
	}
}

func TestRedactorMask(t *testing.T) {
	r := NewRedactor(PersonalDataRules(), "")

	if got := r.Mask(CategoryEmail, "test@example.com"); got != "t*****m" {
		t.Errorf("email mask = %q", got)
	}
	phone := r.Mask(CategoryPhone, "+79123456789")
	if !strings.HasPrefix(phone, "+7") || !strings.HasSuffix(phone, "9") || strings.Count(phone, "*") != 5 {
		t.Errorf("phone mask = %q", phone)
	}
	if got := r.Mask(CategoryName, "Иван Петров"); got != "Иван П." {
		t.Errorf("name mask = %q", got)
	}
	if got := r.Mask("unregistered", "whatever"); got != "*****" {
		t.Errorf("unknown category mask = %q", got)
	}
}

func TestReplace(t *testing.T) {
	tests := []struct {
		name string
		text string
		reps []Replacement
		want string
	}{
		{
			name: "every occurrence case-insensitively",
			text: "Секрет и секрет и СЕКРЕТ",
			reps: []Replacement{{Literal: "секрет", With: "***"}},
			want: "*** и *** и ***",
		},
		{
			name: "metacharacters are literal",
			text: "a.b axb",
			reps: []Replacement{{Literal: "a.b", With: "X"}},
			want: "X axb",
		},
		{
			name: "longest overlapping literal wins",
			text: "Иван Петров и Иван",
			reps: []Replacement{
				{Literal: "Иван", With: "A"},
				{Literal: "Иван Петров", With: "B"},
			},
			want: "B и A",
		},
		{
			name: "replacement text is not rescanned",
			text: "cat",
			reps: []Replacement{
				{Literal: "cat", With: "dog"},
				{Literal: "dog", With: "bird"},
			},
			want: "dog",
		},
		{
			name: "partially overlapping literals share the fallback",
			text: "x abcdef y",
			reps: []Replacement{
				{Literal: "abcd", With: "A"},
				{Literal: "cdef", With: "B", Fallback: "#"},
			},
			want: "x ***** y",
		},
		{
			name: "fallback of the longest literal",
			text: "abcdefg",
			reps: []Replacement{
				{Literal: "abcd", With: "A"},
				{Literal: "cdefg", With: "B", Fallback: "#"},
			},
			want: "#",
		},
		{
			name: "no replacements",
			text: "unchanged",
			reps: nil,
			want: "unchanged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Replace(tt.text, tt.reps); got != tt.want {
				t.Errorf("Replace() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactOverlappingNames(t *testing.T) {
	r := NewRedactor(PersonalDataRules(), "")
	text := "Иван Петров Иван Петров Иван Петров"
	findings := Findings{{Category: CategoryName, Literals: []string{"Иван Петров Иван", "Петров Иван Петров"}}}

	if got := r.Redact(text, findings, ModeMask); got != "***** Иван Петров" {
		t.Errorf("masked = %q", got)
	}
	if got := r.Redact(text, findings, ModeDelete); got != DefaultPlaceholder+" Иван Петров" {
		t.Errorf("deleted = %q", got)
	}
	if got := r.Redact("Иван Петров и Иван Петров", findings[:1], ModeMask); got != "Иван Петров и Иван Петров" {
		t.Errorf("unrelated text = %q", got)
	}
}

func TestRedactModes(t *testing.T) {
	reg := PersonalDataRules()
	r := NewRedactor(reg, "")
	findings := Findings{
		{Category: CategoryPhone, Literals: []string{"+79123456789"}},
		{Category: CategoryEmail, Literals: []string{"test@example.com"}},
	}
	text := "Тел +79123456789, почта test@example.com"

	masked := r.Redact(text, findings, ModeMask)
	if masked != "Тел +7*****9, почта t*****m" {
		t.Errorf("mask mode = %q", masked)
	}

	deleted := r.Redact(text, findings, ModeDelete)
	if deleted != "Тел [УДАЛЕНО], почта [УДАЛЕНО]" {
		t.Errorf("delete mode = %q", deleted)
	}

	custom := NewRedactor(reg, "<removed>").Redact(text, findings, ModeDelete)
	if strings.Contains(custom, DefaultPlaceholder) || strings.Count(custom, "<removed>") != 2 {
		t.Errorf("custom placeholder = %q", custom)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"1": ModeDelete, "delete": ModeDelete, "2": ModeMask, "mask": ModeMask, "anonymize": ModeMask} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("3"); err == nil {
		t.Error("expected error")
	}
}
