package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

func TestSummarize(t *testing.T) {
	findings := privacy.Findings{
		{Category: "email", Literals: []string{"a@b.ru", "c@d.ru"}},
		{Category: "phone", Literals: []string{"1", "2", "3", "4", "5", "6", "7"}},
	}

	s := Summarize(findings)
	if s.Total != 9 {
		t.Errorf("total = %d", s.Total)
	}
	if got := s.PerCategory(); got["email"] != 2 || got["phone"] != 7 {
		t.Errorf("per category = %v", got)
	}
	if len(s.Categories[1].Examples) != MaxExamples {
		t.Errorf("examples = %d", len(s.Categories[1].Examples))
	}

	if empty := Summarize(nil); empty.Total != 0 || len(empty.Categories) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"короткий", 500, "короткий"},
		{"абвгд", 3, "абв..."},
		{"abc", 3, "abc"},
	}
	for _, tt := range tests {
		if got := Preview(tt.text, tt.n); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
	}
	if got := Preview(strings.Repeat("я", 600), 0); len([]rune(got)) != DefaultPreviewLength+3 {
		t.Errorf("default preview has %d runes", len([]rune(got)))
	}
}

func TestLegalBasis(t *testing.T) {
	reg := privacy.ConfidentialRules()
	if got := LegalBasis(reg, []string{privacy.CategoryMilitary}); got != privacy.BasisMilitary {
		t.Errorf("military basis = %q", got)
	}
	if got := LegalBasis(reg, nil); got != privacy.BasisPersonalData {
		t.Errorf("default basis = %q", got)
	}
}

func TestForResultBlocked(t *testing.T) {
	reg := privacy.ConfidentialRules()
	log := logger.NewNop()
	engine := workflow.NewEngine(privacy.NewDetector(reg, log), privacy.NewRedactor(reg, ""), workflow.Options{}, log)

	ignore := workflow.DeciderFunc(func(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
		return workflow.Ignore, nil
	})
	res, err := engine.Process(context.Background(), "Рядом военный полигон. Погода хорошая.", ignore)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	r := ForResult(engine.Registry(), "memo.txt", res, 0)
	if !r.Blocked || r.Status != StatusBlocked || r.LegalBasis != privacy.BasisMilitary {
		t.Errorf("report = %+v", r)
	}
	if r.Decisions[workflow.Ignore] != 1 {
		t.Errorf("decisions = %v", r.Decisions)
	}

	var out bytes.Buffer
	if err := Render(&out, r); err != nil {
		t.Fatalf("Render: %v", err)
	}
	text := out.String()
	for _, want := range []string{"BLOCKED: memo.txt", "MILITARY_INFO", "Legal basis: " + privacy.BasisMilitary} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered report missing %q:\n%s", want, text)
		}
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"status":"blocked"`) {
		t.Errorf("json = %s", data)
	}
}

func TestForScanAndAnonymize(t *testing.T) {
	reg := privacy.PersonalDataRules()

	clean := ForScan(reg, "a.txt", nil)
	if clean.Status != StatusClean || clean.LegalBasis != "" {
		t.Errorf("clean scan = %+v", clean)
	}

	findings := privacy.Findings{{Category: privacy.CategoryPhone, Literals: []string{"+79123456789"}}}
	flagged := ForScan(reg, "a.txt", findings)
	if flagged.Status != StatusFlagged || flagged.LegalBasis != privacy.BasisPersonalData {
		t.Errorf("flagged scan = %+v", flagged)
	}

	res := &workflow.AnonymizeResult{
		Mode:     privacy.ModeDelete,
		Text:     "Телефон [УДАЛЕНО]",
		Findings: findings,
		Stats:    workflow.Stats{Categories: 1, Matches: 1, OriginalLength: 20, ProcessedLength: 17},
	}
	r := ForAnonymize(reg, "a.txt", res, 10)
	if r.Stats == nil || r.Stats.Matches != 1 || r.Preview != "Телефон [У..." {
		t.Errorf("anonymize report = %+v", r)
	}

	var out bytes.Buffer
	if err := Render(&out, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Total matches: 1") {
		t.Errorf("rendered:\n%s", out.String())
	}
}
