package privacy

import (
	"context"
	"strings"
	"testing"
)

func literals(t *testing.T, m Matcher, text string) []string {
	t.Helper()
	spans, err := m.FindAll(context.Background(), text)
	if err != nil {
		t.Fatalf("FindAll(%q): %v", text, err)
	}
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, text[sp.Start:sp.End])
	}
	return out
}

func TestGrammars(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		text    string
		want    []string
	}{
		{"phone plain", PhonePrimary(), "звоните +79123456789 завтра", []string{"+79123456789"}},
		{"phone parens", PhonePrimary(), "тел. +7 (912) 345-67-89", []string{"+7 (912) 345-67-89"}},
		{"phone trunk", PhonePrimary(), "8 912 345 67 89", []string{"8 912 345 67 89"}},
		{"phone hyphens", PhonePrimary(), "8-912-345-67-89.", []string{"8-912-345-67-89"}},
		{"phone bare", PhonePrimary(), "номер 9123456789", []string{"9123456789"}},
		{"phone too short", PhonePrimary(), "+7912345678", nil},
		{"phone inside digits", PhonePrimary(), "0089123456789", nil},
		{"phone foreign", PhoneSupplementary(), "call +1 555 123 45 67", []string{"+1 555 123 45 67"}},
		{"phone wide spacing", PhoneSupplementary(), "8  912  345  67  89", []string{"8  912  345  67  89"}},
		{"phone dash run", PhoneSupplementary(), "+7-912-3456-789", []string{"+7-912-3456-789"}},
		{"card spaced", CardPrimary(), "карта 1234 5678 9012 3456", []string{"1234 5678 9012 3456"}},
		{"card hyphen", CardSupplementary(), "1234-5678-9012-3456", []string{"1234-5678-9012-3456"}},
		{"card solid", CardSupplementary(), "1234567890123456", []string{"1234567890123456"}},
		{"card 17 digits", CardSupplementary(), "12345678901234567", nil},
		{"passport", Passport(), "паспорт 4510 123456", []string{"4510 123456"}},
		{"passport numero", Passport(), "паспорт 4510 № 123456", []string{"4510 № 123456"}},
		{"passport solid", Passport(), "4510123456", []string{"4510123456"}},
		{"snils", SNILS(), "СНИЛС 123-456-789 01", []string{"123-456-789 01"}},
		{"inn", INN(), "ИНН 7707083893", []string{"7707083893"}},
		{"inn twelve", INN(), "ИНН 500100732259", []string{"500100732259"}},
		{"inn ignores phone digits", INN(), "+79123456789", nil},
		{"inn needs boundary", INN(), "abc7707083893", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := literals(t, tt.matcher, tt.text)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGrammarHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	text := strings.Repeat("1 ", 5000)
	if _, err := PhonePrimary().FindAll(ctx, text); err == nil {
		t.Error("expected context error")
	}
}

func TestGrammarLongRunsStayLinear(t *testing.T) {
	// Pathological inputs for backtracking engines
	text := strings.Repeat("8-", 50000) + "x"
	if _, err := PhoneSupplementary().FindAll(context.Background(), text); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
