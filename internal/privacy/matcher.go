package privacy

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is a half-open byte range inside the scanned view
type Span struct {
	Start int
	End   int
}

// Matcher finds candidate literals in a text view
type Matcher interface {
	FindAll(ctx context.Context, text string) ([]Span, error)
}

// regexMatcher applies a compiled pattern and resolves multi-group matches
// to the first non-empty captured group.
type regexMatcher struct {
	re       *regexp.Regexp
	trailing bool
	validate func(string) bool
}

// Regex wraps an arbitrary pattern as a matcher
func Regex(re *regexp.Regexp) Matcher {
	return &regexMatcher{re: re}
}

// wordPattern compiles expr so it only starts at a Unicode word boundary.
// The boundary rune is consumed outside the capture group.
func wordPattern(expr string, ignoreCase bool) *regexp.Regexp {
	flags := ""
	if ignoreCase {
		flags = "(?i)"
	}
	return regexp.MustCompile(flags + `(?:^|[^\p{L}\p{N}_])(` + expr + `)`)
}

// Words matches expr as whole words in either script
func Words(expr string) Matcher {
	return &regexMatcher{re: wordPattern(expr, true), trailing: true}
}

func (m *regexMatcher) FindAll(ctx context.Context, text string) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var spans []Span
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := firstGroup(loc)
		if start < 0 || start == end {
			continue
		}
		if m.trailing && !boundaryAfter(text, end) {
			continue
		}
		if m.validate != nil && !m.validate(text[start:end]) {
			continue
		}
		spans = append(spans, Span{Start: start, End: end})
	}

	// RE2 runs in linear time, so the deadline is only checked once the
	// scan has finished.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return spans, nil
}

// firstGroup picks the first non-empty capture group, or the whole match
// when the pattern has no groups.
func firstGroup(loc []int) (int, int) {
	if len(loc) == 2 {
		return loc[0], loc[1]
	}
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 && loc[i+1] > loc[i] {
			return loc[i], loc[i+1]
		}
	}
	return -1, -1
}

// phraseMatcher finds fixed phrases in an already lower-cased view
type phraseMatcher struct {
	phrases []string
}

// Phrases matches any of the given phrases, case-insensitively
func Phrases(phrases ...string) Matcher {
	lower := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lower = append(lower, p)
		}
	}
	return &phraseMatcher{phrases: lower}
}

func (m *phraseMatcher) FindAll(ctx context.Context, text string) ([]Span, error) {
	var spans []Span
	for _, phrase := range m.phrases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := 0
		for {
			idx := strings.Index(text[offset:], phrase)
			if idx < 0 {
				break
			}
			start := offset + idx
			spans = append(spans, Span{Start: start, End: start + len(phrase)})
			offset = start + len(phrase)
		}
	}
	return spans, nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// boundaryBefore reports whether no word rune precedes position i
func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

// boundaryAfter reports whether no word rune follows position i
func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

// foldView lower-cases text and reports whether every rune kept its
// encoded width, in which case spans in the view index the original too.
func foldView(text string) (string, bool) {
	var b strings.Builder
	b.Grow(len(text))
	aligned := true
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		lr := unicode.ToLower(r)
		if utf8.RuneLen(lr) != size {
			aligned = false
		}
		b.WriteRune(lr)
		i += size
	}
	return b.String(), aligned
}
