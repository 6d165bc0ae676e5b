package privacy

import (
	"errors"
	"regexp"
	"testing"
)

func testRule(expr string) Rule {
	return Rule{Matchers: []Matcher{Regex(regexp.MustCompile(expr))}, Source: expr}
}

func TestRegistry(t *testing.T) {
	t.Run("RegisterKeepsOrder", func(t *testing.T) {
		r := NewRegistry("test", "default basis")
		r.MustRegister("b", testRule("b"), "basis b")
		r.MustRegister("a", testRule("a"), "")

		names := r.Names()
		if len(names) != 2 || names[0] != "b" || names[1] != "a" {
			t.Fatalf("unexpected order: %v", names)
		}
		if len(r.Rules()) != 2 {
			t.Errorf("Rules() returned %d entries", len(r.Rules()))
		}
		cat, ok := r.Lookup("a")
		if !ok || cat.Mask != MaskFull {
			t.Errorf("Lookup(a) = %+v, %v", cat, ok)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		r := NewRegistry("test", "")
		if err := r.Register("", testRule("x"), ""); err == nil {
			t.Error("expected error for empty name")
		}
		if err := r.Register("x", Rule{}, ""); err == nil {
			t.Error("expected error for rule without matchers")
		}
		r.MustRegister("x", testRule("x"), "")
		if err := r.Register("x", testRule("x"), ""); err == nil {
			t.Error("expected error for duplicate name")
		}
	})

	t.Run("FreezeIsSnapshot", func(t *testing.T) {
		r := NewRegistry("test", "")
		r.MustRegister("x", testRule("x"), "")
		snap := r.Freeze()

		if err := snap.Register("y", testRule("y"), ""); !errors.Is(err, ErrRegistryFrozen) {
			t.Errorf("expected ErrRegistryFrozen, got %v", err)
		}
		r.MustRegister("y", testRule("y"), "")
		if snap.Len() != 1 {
			t.Errorf("snapshot changed after source registration: %d", snap.Len())
		}
		if snap.Freeze() != snap {
			t.Error("freezing a snapshot should return it")
		}

		clone := snap.Clone()
		if err := clone.Register("z", testRule("z"), ""); err != nil {
			t.Errorf("clone register failed: %v", err)
		}
	})

	t.Run("Fingerprint", func(t *testing.T) {
		a := ConfidentialRules()
		b := ConfidentialRules()
		if a.Fingerprint() != b.Fingerprint() {
			t.Error("identical packs should share a fingerprint")
		}
		if a.Fingerprint() == PersonalDataRules().Fingerprint() {
			t.Error("different packs should differ")
		}
		b.MustRegister("extra", testRule("extra"), "")
		if a.Fingerprint() == b.Fingerprint() {
			t.Error("extended pack should change fingerprint")
		}
	})
}

func TestRegistryLegalBasis(t *testing.T) {
	r := ConfidentialRules()

	tests := []struct {
		name       string
		categories []string
		want       string
	}{
		{"military", []string{CategoryMilitary}, BasisMilitary},
		{"first in registry order", []string{CategoryMilitary, CategoryMedical}, BasisMedical},
		{"context only falls back", []string{CategorySensitiveContext}, BasisPersonalData},
		{"empty falls back", nil, BasisPersonalData},
		{"unknown falls back", []string{"nope"}, BasisPersonalData},
		{"coordinates", []string{CategoryCoordinates}, BasisStateSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.LegalBasis(tt.categories); got != tt.want {
				t.Errorf("LegalBasis(%v) = %q, want %q", tt.categories, got, tt.want)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	for _, profile := range []string{"", ProfileConfidential, ProfilePersonalData} {
		r, err := DefaultRegistry(profile)
		if err != nil {
			t.Fatalf("DefaultRegistry(%q): %v", profile, err)
		}
		if r.Len() == 0 || r.Freeze() == r {
			t.Errorf("profile %q: unexpected registry state", profile)
		}
	}
	if _, err := DefaultRegistry("unknown"); err == nil {
		t.Error("expected error for unknown profile")
	}
}
