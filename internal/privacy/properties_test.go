package privacy

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allStyles = []MaskStyle{MaskFull, MaskEdges, MaskPhone, MaskCard, MaskName, MaskAddress}

func TestShortLiteralsFullyMasked(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lit := rapid.StringOfN(rapid.Rune(), 1, 3, -1).Draw(t, "literal")
		style := rapid.SampledFrom(allStyles).Draw(t, "style")

		if got := MaskLiteral(style, lit); got != "***" {
			t.Fatalf("MaskLiteral(%s, %q) = %q", style, lit, got)
		}
	})
}

func TestEdgesKeepOnlyFirstAndLast(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lit := rapid.StringMatching(`[a-zA-Z0-9а-яА-Я@.\-]{7,40}`).Draw(t, "literal")
		runes := []rune(lit)

		got := MaskLiteral(MaskEdges, lit)
		want := string(runes[0]) + "*****" + string(runes[len(runes)-1])
		if got != want {
			t.Fatalf("MaskLiteral(edges, %q) = %q, want %q", lit, got, want)
		}
	})
}

func TestCardKeepsFirstAndLastFour(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		digits := rapid.StringMatching(`[0-9]{16}`).Draw(t, "digits")
		sep := rapid.SampledFrom([]string{"", " ", "-"}).Draw(t, "sep")
		lit := digits[0:4] + sep + digits[4:8] + sep + digits[8:12] + sep + digits[12:16]

		got := MaskLiteral(MaskCard, lit)
		if got != digits[:4]+"********"+digits[12:] {
			t.Fatalf("MaskLiteral(card, %q) = %q", lit, got)
		}
		if strings.Contains(got, digits[4:12]) {
			t.Fatalf("interior digits leaked: %q", got)
		}
	})
}

func TestAddressKeepsSeparators(t *testing.T) {
	countSeparators := func(s string) int {
		n := 0
		for _, r := range s {
			if r == ',' || r == ' ' {
				n++
			}
		}
		return n
	}

	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOfN(rapid.StringMatching(`(ул\.|д\.|кв\.|[А-Я][а-я]{0,8}|[0-9]{1,5})`), 1, 8).Draw(t, "tokens")
		var b strings.Builder
		for i, tok := range tokens {
			if i > 0 {
				b.WriteString(rapid.SampledFrom([]string{" ", ", ", ","}).Draw(t, "sep"))
			}
			b.WriteString(tok)
		}
		lit := b.String()

		got := maskAddress(lit)
		if countSeparators(got) != countSeparators(lit) {
			t.Fatalf("maskAddress(%q) = %q changed separator count", lit, got)
		}
	})
}

func TestReplaceRemovesLiterals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		literal := rapid.StringMatching(`[a-z]{4,10}`).Draw(t, "literal")
		filler := rapid.StringMatching(`[0-9 ]{0,20}`).Draw(t, "filler")
		text := filler + literal + filler + strings.ToUpper(literal)

		got := Replace(text, []Replacement{{Literal: literal, With: "#"}})
		if strings.Contains(strings.ToLower(got), literal) {
			t.Fatalf("Replace left %q in %q", literal, got)
		}
	})
}
