package privacy

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Fixed mask runs
const (
	shortMask = "***"
	longMask  = "*****"
	cardMask  = "********"
)

var (
	addressSeparators = regexp.MustCompile(`[,\s]+`)
	addressKeywords   = map[string]bool{
		"ул.": true, "улица": true,
		"пр.": true, "проспект": true,
		"пер.": true, "переулок": true,
		"д.": true, "дом": true,
		"кв.": true, "квартира": true,
	}
)

// Replacement swaps every case-insensitive occurrence of Literal for With.
// Fallback covers a region where occurrences of different literals
// partially overlap; empty means the full mask.
type Replacement struct {
	Literal  string
	With     string
	Fallback string
}

// Redactor computes masks for the categories of one registry
type Redactor struct {
	registry    *Registry
	placeholder string
}

// NewRedactor creates a redactor. An empty placeholder selects the default.
func NewRedactor(reg *Registry, placeholder string) *Redactor {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Redactor{registry: reg, placeholder: placeholder}
}

// Placeholder returns the text used in delete mode
func (r *Redactor) Placeholder() string {
	return r.placeholder
}

// Mask returns the masked form of a literal found for category
func (r *Redactor) Mask(category, literal string) string {
	style := MaskFull
	if cat, ok := r.registry.Lookup(category); ok {
		style = cat.Mask
	}
	return MaskLiteral(style, literal)
}

// Replacements builds the substitutions that redact the findings
func (r *Redactor) Replacements(findings Findings, mode Mode) []Replacement {
	var reps []Replacement
	for _, m := range findings {
		for _, lit := range m.Literals {
			rep := Replacement{Literal: lit, With: r.placeholder, Fallback: r.placeholder}
			if mode != ModeDelete {
				rep.With = r.Mask(m.Category, lit)
				rep.Fallback = longMask
			}
			reps = append(reps, rep)
		}
	}
	return reps
}

// Redact replaces every finding in text with its mask or the placeholder
func (r *Redactor) Redact(text string, findings Findings, mode Mode) string {
	return Replace(text, r.Replacements(findings, mode))
}

// MaskLiteral applies a mask style to a literal. Literals of three runes
// or fewer are always fully masked.
func MaskLiteral(style MaskStyle, literal string) string {
	runes := []rune(literal)
	if len(runes) <= 3 {
		return shortMask
	}

	switch style {
	case MaskEdges:
		return maskEdges(runes)
	case MaskCard:
		if digits := digitsOnly(literal); len(digits) == 16 {
			return digits[:4] + cardMask + digits[12:]
		}
		return maskEdges(runes)
	case MaskPhone:
		return maskPhone(literal, runes)
	case MaskName:
		return maskName(literal)
	case MaskAddress:
		return maskAddress(literal)
	default:
		return longMask
	}
}

func maskEdges(runes []rune) string {
	switch {
	case len(runes) <= 3:
		return shortMask
	case len(runes) <= 6:
		return string(runes[0]) + shortMask + string(runes[len(runes)-1])
	default:
		return string(runes[0]) + longMask + string(runes[len(runes)-1])
	}
}

func maskPhone(literal string, runes []rune) string {
	var prefix string
	switch {
	case strings.HasPrefix(literal, "+7"):
		prefix = "+7"
	case strings.HasPrefix(literal, "8"):
		prefix = "8"
	case strings.HasPrefix(digitsOnly(literal), "7"):
		prefix = "+7"
	default:
		prefix = string(runes[0])
	}

	if len(runes) <= 5 {
		return prefix + shortMask
	}
	return prefix + longMask + string(runes[len(runes)-1])
}

// maskName keeps the given names and reduces the surname to an initial
func maskName(literal string) string {
	words := strings.Fields(literal)
	if len(words) < 2 {
		return literal
	}
	surname, _ := utf8.DecodeRuneInString(words[len(words)-1])
	return strings.Join(words[:len(words)-1], " ") + " " + string(surname) + "."
}

// maskAddress masks each token while keeping separators verbatim
func maskAddress(literal string) string {
	var b strings.Builder
	last := 0
	for _, loc := range addressSeparators.FindAllStringIndex(literal, -1) {
		b.WriteString(maskAddressToken(literal[last:loc[0]]))
		b.WriteString(literal[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(maskAddressToken(literal[last:]))
	return b.String()
}

func maskAddressToken(token string) string {
	if token == "" {
		return ""
	}
	if addressKeywords[strings.ToLower(token)] {
		return shortMask
	}
	runes := []rune(token)
	if digitsOnly(token) == token {
		if len(runes) <= 3 {
			return shortMask
		}
		return string(runes[0]) + shortMask + string(runes[len(runes)-1])
	}
	return maskEdges(runes)
}

// Spans returns the byte ranges of every case-insensitive occurrence of
// the literals in text, ordered by start.
func (f Findings) Spans(text string) []Span {
	var spans []Span
	for _, m := range f {
		for _, lit := range m.Literals {
			re := literalPattern(lit)
			if re == nil {
				continue
			}
			for _, loc := range re.FindAllStringIndex(text, -1) {
				spans = append(spans, Span{Start: loc[0], End: loc[1]})
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

func literalPattern(literal string) *regexp.Regexp {
	if literal == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(literal))
	if err != nil {
		return nil
	}
	return re
}

// Replace substitutes every case-insensitive occurrence of each literal in
// a single pass, so replacement text is never rescanned. Occurrences that
// overlap form one region: when the longest occurrence contains the rest,
// its replacement wins; otherwise the whole region gets the fallback, since
// rewriting only part of it would leave a literal behind.
func Replace(text string, reps []Replacement) string {
	type candidate struct {
		start, end int
		order      int
	}

	var candidates []candidate
	for i, rep := range reps {
		re := literalPattern(rep.Literal)
		if re == nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			candidates = append(candidates, candidate{start: loc[0], end: loc[1], order: i})
		}
	}
	if len(candidates) == 0 {
		return text
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		if candidates[i].end != candidates[j].end {
			return candidates[i].end > candidates[j].end
		}
		return candidates[i].order < candidates[j].order
	})

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i := 0; i < len(candidates); {
		region := candidates[i]
		winner := candidates[i]
		j := i + 1
		for ; j < len(candidates) && candidates[j].start < region.end; j++ {
			c := candidates[j]
			region.end = max(region.end, c.end)
			if c.end-c.start > winner.end-winner.start {
				winner = c
			}
		}

		with := reps[winner.order].With
		if winner.start != region.start || winner.end != region.end {
			with = reps[winner.order].Fallback
			if with == "" {
				with = longMask
			}
		}
		b.WriteString(text[last:region.start])
		b.WriteString(with)
		last = region.end
		i = j
	}
	b.WriteString(text[last:])
	return b.String()
}
