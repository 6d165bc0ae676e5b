package privacy

import (
	"context"
	"strings"
	"unicode/utf8"
)

// scanFunc tries to parse one candidate starting at i and returns its end
type scanFunc func(text string, i int) (int, bool)

// boundaryKind decides which neighbours may surround a structured literal
type boundaryKind int

const (
	// digitBoundary only forbids adjacent digits (phone numbers)
	digitBoundary boundaryKind = iota
	// wordBoundary forbids adjacent word runes and a leading '+', so the
	// digits of a "+7..." phone number are never read as an identifier
	wordBoundary
)

// grammarMatcher scans structured identifiers with explicit format grammars
// and validates their digit count. It runs in linear time per scanner.
type grammarMatcher struct {
	scanners []scanFunc
	boundary boundaryKind
	validate func(digits int) bool
}

func (m *grammarMatcher) FindAll(ctx context.Context, text string) ([]Span, error) {
	var spans []Span
	steps := 0
	for i := 0; i < len(text); {
		steps++
		if steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := text[i]
		if (c == '+' || c == '(' || isDigit(c)) && m.before(text, i) {
			best := -1
			for _, scan := range m.scanners {
				end, ok := scan(text, i)
				if !ok || end <= best || !m.after(text, end) {
					continue
				}
				if m.validate != nil && !m.validate(countDigits(text[i:end])) {
					continue
				}
				best = end
			}
			if best > i {
				spans = append(spans, Span{Start: i, End: best})
				i = best
				continue
			}
		}
		i++
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return spans, nil
}

func (m *grammarMatcher) before(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	if m.boundary == digitBoundary {
		return r >= utf8.RuneSelf || !isDigit(byte(r))
	}
	return r != '+' && boundaryBefore(text, i)
}

func (m *grammarMatcher) after(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	if m.boundary == digitBoundary {
		return !isDigit(text[end])
	}
	return boundaryAfter(text, end)
}

// digitFormat describes a run of digit groups such as "+7 (912) 345-67-89"
type digitFormat struct {
	prefix     string // literal leading marker, '#' stands for any digit
	groups     []int  // digit group sizes
	firstIn    string // allowed first digits of the first group, empty = any
	separators string // bytes allowed between groups
	maxSep     int    // separator bytes allowed between two groups
	parens     bool   // the first group may be wrapped in parentheses
}

func (f digitFormat) scan(text string, i int) (int, bool) {
	j, ok := matchPrefix(text, i, f.prefix)
	if !ok {
		return 0, false
	}
	if f.prefix != "" {
		j = skipSeparators(text, j, f.separators, f.maxSep)
	}

	for gi, size := range f.groups {
		if gi > 0 {
			j = skipSeparators(text, j, f.separators, f.maxSep)
		}
		open := false
		if gi == 0 && f.parens && j < len(text) && text[j] == '(' {
			open = true
			j++
		}
		if gi == 0 && f.firstIn != "" && (j >= len(text) || strings.IndexByte(f.firstIn, text[j]) < 0) {
			return 0, false
		}
		for k := 0; k < size; k++ {
			if j >= len(text) || !isDigit(text[j]) {
				return 0, false
			}
			j++
		}
		if open {
			if j >= len(text) || text[j] != ')' {
				return 0, false
			}
			j++
		}
	}
	return j, true
}

// dashRun matches a marker followed by digits and hyphens, e.g. 8-912-345-67-89
func dashRun(prefix string, min, max int) scanFunc {
	return func(text string, i int) (int, bool) {
		j, ok := matchPrefix(text, i, prefix)
		if !ok {
			return 0, false
		}
		n := 0
		for j < len(text) && n < max && (isDigit(text[j]) || text[j] == '-') {
			j++
			n++
		}
		for n > 0 && text[j-1] == '-' {
			j--
			n--
		}
		if n < min {
			return 0, false
		}
		return j, true
	}
}

// digitRun matches between min and max contiguous digits
func digitRun(min, max int) scanFunc {
	return func(text string, i int) (int, bool) {
		j := i
		for j < len(text) && isDigit(text[j]) {
			j++
		}
		if n := j - i; n < min || n > max {
			return 0, false
		}
		return j, true
	}
}

const numeroSign = "№"

// passportScan matches DDDD[ ][№|#][ ]DDDDDD
func passportScan(text string, i int) (int, bool) {
	j := i
	for k := 0; k < 4; k++ {
		if j >= len(text) || !isDigit(text[j]) {
			return 0, false
		}
		j++
	}
	if j < len(text) && text[j] == ' ' {
		j++
	}
	switch {
	case strings.HasPrefix(text[j:], numeroSign):
		j += len(numeroSign)
	case j < len(text) && text[j] == '#':
		j++
	}
	if j < len(text) && text[j] == ' ' {
		j++
	}
	for k := 0; k < 6; k++ {
		if j >= len(text) || !isDigit(text[j]) {
			return 0, false
		}
		j++
	}
	return j, true
}

func matchPrefix(text string, i int, prefix string) (int, bool) {
	if i+len(prefix) > len(text) {
		return 0, false
	}
	for k := 0; k < len(prefix); k++ {
		c := text[i+k]
		if prefix[k] == '#' {
			if !isDigit(c) {
				return 0, false
			}
			continue
		}
		if c != prefix[k] {
			return 0, false
		}
	}
	return i + len(prefix), true
}

func skipSeparators(text string, j int, seps string, max int) int {
	for n := 0; n < max && j < len(text) && strings.IndexByte(seps, text[j]) >= 0; n++ {
		j++
	}
	return j
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			n++
		}
	}
	return n
}

// digitsOnly strips everything but ASCII digits
func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func digitsBetween(min, max int) func(int) bool {
	return func(n int) bool { return n >= min && n <= max }
}

// PhonePrimary matches an optional +7/8 marker followed by a (4|8|9)XX
// area code and 3-2-2 subscriber groups.
func PhonePrimary() Matcher {
	format := func(prefix string) scanFunc {
		return digitFormat{
			prefix:     prefix,
			groups:     []int{3, 3, 2, 2},
			firstIn:    "489",
			separators: " -",
			maxSep:     1,
			parens:     true,
		}.scan
	}
	return &grammarMatcher{
		scanners: []scanFunc{format("+7"), format("8"), format("")},
		boundary: digitBoundary,
		validate: digitsBetween(10, 15),
	}
}

// PhoneSupplementary catches formats the primary grammar misses:
// any +N country marker, looser spacing around parentheses and
// free-form hyphenated runs.
func PhoneSupplementary() Matcher {
	format := func(prefix string) scanFunc {
		return digitFormat{
			prefix:     prefix,
			groups:     []int{3, 3, 2, 2},
			separators: " -",
			maxSep:     2,
			parens:     true,
		}.scan
	}
	return &grammarMatcher{
		scanners: []scanFunc{
			format("+#"),
			format("8"),
			dashRun("+#", 10, 15),
			dashRun("8", 10, 15),
		},
		boundary: digitBoundary,
		validate: digitsBetween(10, 15),
	}
}

// CardPrimary matches four groups of four digits with optional separators
func CardPrimary() Matcher {
	return &grammarMatcher{
		scanners: []scanFunc{digitFormat{groups: []int{4, 4, 4, 4}, separators: " -", maxSep: 1}.scan},
		boundary: wordBoundary,
		validate: digitsBetween(16, 16),
	}
}

// CardSupplementary matches the uniform layouts 1234 5678 9012 3456,
// 1234-5678-9012-3456 and 1234567890123456.
func CardSupplementary() Matcher {
	uniform := func(sep string, max int) scanFunc {
		return digitFormat{groups: []int{4, 4, 4, 4}, separators: sep, maxSep: max}.scan
	}
	return &grammarMatcher{
		scanners: []scanFunc{uniform(" ", 1), uniform("-", 1), digitRun(16, 16)},
		boundary: wordBoundary,
		validate: digitsBetween(16, 16),
	}
}

// Passport matches a 4+6 digit series and number, optionally with №
func Passport() Matcher {
	return &grammarMatcher{
		scanners: []scanFunc{passportScan},
		boundary: wordBoundary,
		validate: digitsBetween(10, 10),
	}
}

// SNILS matches the 3-3-3-2 insurance account layout
func SNILS() Matcher {
	return &grammarMatcher{
		scanners: []scanFunc{digitFormat{groups: []int{3, 3, 3, 2}, separators: " -", maxSep: 1}.scan},
		boundary: wordBoundary,
		validate: digitsBetween(11, 11),
	}
}

// INN matches a 10 to 12 digit taxpayer number
func INN() Matcher {
	return &grammarMatcher{
		scanners: []scanFunc{digitRun(10, 12)},
		boundary: wordBoundary,
		validate: digitsBetween(10, 12),
	}
}
