package privacy

import "fmt"

// Finding is a single detected literal scoped to the text unit it came from
type Finding struct {
	Category string `json:"category"`
	Literal  string `json:"literal"`
	Unit     int    `json:"unit"`
}

// CategoryMatch holds the distinct literals one category produced
type CategoryMatch struct {
	Category string   `json:"category"`
	Literals []string `json:"literals"`
}

// Findings is the detector output, ordered by registry order
type Findings []CategoryMatch

// Get returns the literals found for a category
func (f Findings) Get(category string) []string {
	for _, m := range f {
		if m.Category == category {
			return m.Literals
		}
	}
	return nil
}

// Has reports whether the category produced at least one literal
func (f Findings) Has(category string) bool {
	return len(f.Get(category)) > 0
}

// Categories returns the category names in order
func (f Findings) Categories() []string {
	names := make([]string, 0, len(f))
	for _, m := range f {
		names = append(names, m.Category)
	}
	return names
}

// Total returns the number of distinct literals across all categories
func (f Findings) Total() int {
	total := 0
	for _, m := range f {
		total += len(m.Literals)
	}
	return total
}

// Map converts the findings to a plain category -> literals map
func (f Findings) Map() map[string][]string {
	out := make(map[string][]string, len(f))
	for _, m := range f {
		out[m.Category] = append([]string(nil), m.Literals...)
	}
	return out
}

// Flatten expands the findings into individual Finding values for a unit
func (f Findings) Flatten(unit int) []Finding {
	var out []Finding
	for _, m := range f {
		for _, lit := range m.Literals {
			out = append(out, Finding{Category: m.Category, Literal: lit, Unit: unit})
		}
	}
	return out
}

// MaskStyle selects how the redactor preserves structure for a category
type MaskStyle string

const (
	MaskFull    MaskStyle = "full"
	MaskEdges   MaskStyle = "edges"
	MaskPhone   MaskStyle = "phone"
	MaskCard    MaskStyle = "card"
	MaskName    MaskStyle = "name"
	MaskAddress MaskStyle = "address"
)

// ParseMaskStyle validates a mask style name, empty means full
func ParseMaskStyle(s string) (MaskStyle, error) {
	switch MaskStyle(s) {
	case "":
		return MaskFull, nil
	case MaskFull, MaskEdges, MaskPhone, MaskCard, MaskName, MaskAddress:
		return MaskStyle(s), nil
	default:
		return "", fmt.Errorf("unknown mask style: %s", s)
	}
}

// Mode selects what replaces a finding during whole-text redaction
type Mode string

const (
	ModeMask   Mode = "anonymize"
	ModeDelete Mode = "delete"
)

// ParseMode accepts the mode names and the original menu numbers
func ParseMode(s string) (Mode, error) {
	switch s {
	case "anonymize", "mask", "2":
		return ModeMask, nil
	case "delete", "1":
		return ModeDelete, nil
	default:
		return "", fmt.Errorf("unknown redaction mode: %s", s)
	}
}

// DefaultPlaceholder replaces findings in delete mode
const DefaultPlaceholder = "[УДАЛЕНО]"

// PatternEvaluationError reports a detection rule that failed on an input.
// The detector treats it as a miss for that category only.
type PatternEvaluationError struct {
	Category string
	Err      error
}

func (e *PatternEvaluationError) Error() string {
	return fmt.Sprintf("pattern evaluation failed for %s: %v", e.Category, e.Err)
}

func (e *PatternEvaluationError) Unwrap() error {
	return e.Err
}
