// Package report builds verdict summaries and renders them for people.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

// MaxExamples is how many literals are listed per category
const MaxExamples = 5

// DefaultPreviewLength is the number of runes shown of processed text
const DefaultPreviewLength = 500

// Report kinds
const (
	KindScan      = "scan"
	KindProcess   = "process"
	KindAnonymize = "anonymize"
)

// Report statuses
const (
	StatusClean   = "clean"
	StatusFlagged = "flagged"
	StatusSafe    = "safe"
	StatusBlocked = "blocked"
)

// CategoryCount is the number of distinct literals of one category
type CategoryCount struct {
	Category string   `json:"category"`
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

// Summary aggregates findings per category
type Summary struct {
	Categories []CategoryCount `json:"categories"`
	Total      int             `json:"total"`
}

// PerCategory returns the counts as a map
func (s Summary) PerCategory() map[string]int {
	out := make(map[string]int, len(s.Categories))
	for _, c := range s.Categories {
		out[c.Category] = c.Count
	}
	return out
}

// Report is the JSON-friendly outcome of one document run
type Report struct {
	ID          string                    `json:"id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Kind        string                    `json:"kind"`
	Document    string                    `json:"document"`
	Profile     string                    `json:"profile"`
	Status      string                    `json:"status"`
	Blocked     bool                      `json:"blocked"`
	Categories  []string                  `json:"categories,omitempty"`
	LegalBasis  string                    `json:"legal_basis,omitempty"`
	Summary     Summary                   `json:"summary"`
	Decisions   map[workflow.Decision]int `json:"decisions,omitempty"`
	Stats       *workflow.Stats           `json:"stats,omitempty"`
	Preview     string                    `json:"preview,omitempty"`
	OutputPath  string                    `json:"output_path,omitempty"`
	Complete    bool                      `json:"complete"`
}

// LegalBasis returns the basis of the first category in registry order
// that defines one, else the registry default.
func LegalBasis(reg *privacy.Registry, categories []string) string {
	return reg.LegalBasis(categories)
}

// Summarize counts literals per category and keeps a few examples
func Summarize(findings privacy.Findings) Summary {
	s := Summary{Categories: make([]CategoryCount, 0, len(findings))}
	for _, m := range findings {
		examples := m.Literals
		if len(examples) > MaxExamples {
			examples = examples[:MaxExamples]
		}
		s.Categories = append(s.Categories, CategoryCount{
			Category: m.Category,
			Count:    len(m.Literals),
			Examples: append([]string(nil), examples...),
		})
		s.Total += len(m.Literals)
	}
	return s
}

// Preview returns the first n runes of text, followed by "..." when cut
func Preview(text string, n int) string {
	if n <= 0 {
		n = DefaultPreviewLength
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func newReport(kind, doc string, reg *privacy.Registry) *Report {
	return &Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Kind:        kind,
		Document:    doc,
		Profile:     reg.Name(),
		Complete:    true,
	}
}

// ForScan reports a detection-only pass
func ForScan(reg *privacy.Registry, doc string, findings privacy.Findings) *Report {
	r := newReport(KindScan, doc, reg)
	r.Summary = Summarize(findings)
	r.Status = StatusClean
	if len(findings) > 0 {
		r.Status = StatusFlagged
		r.Categories = findings.Categories()
		r.LegalBasis = LegalBasis(reg, r.Categories)
	}
	return r
}

// ForResult reports a sentence workflow run
func ForResult(reg *privacy.Registry, doc string, res *workflow.Result, previewLength int) *Report {
	r := newReport(KindProcess, doc, reg)
	r.Summary = Summarize(res.Findings)
	r.Decisions = res.Counts()
	r.Complete = res.Complete
	r.Preview = Preview(res.Text, previewLength)
	r.Status = StatusSafe
	if res.Blocked() {
		r.Status = StatusBlocked
		r.Blocked = true
		r.Categories = res.Categories
		r.LegalBasis = res.LegalBasis
		if r.LegalBasis == "" {
			r.LegalBasis = LegalBasis(reg, res.Categories)
		}
	}
	return r
}

// ForAnonymize reports a whole-text delete or mask pass
func ForAnonymize(reg *privacy.Registry, doc string, res *workflow.AnonymizeResult, previewLength int) *Report {
	r := newReport(KindAnonymize, doc, reg)
	r.Summary = Summarize(res.Findings)
	r.Categories = res.Findings.Categories()
	stats := res.Stats
	r.Stats = &stats
	r.Preview = Preview(res.Text, previewLength)
	r.Status = StatusSafe
	return r
}

// Render writes a human-readable report
func Render(w io.Writer, r *Report) error {
	var b strings.Builder

	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "%s REPORT: %s\n", strings.ToUpper(r.Kind), r.Document)
	b.WriteString(strings.Repeat("=", 80) + "\n")

	if r.Summary.Total == 0 {
		b.WriteString("No confidential information found.\n")
	} else {
		b.WriteString("Detected categories:\n")
		for _, c := range r.Summary.Categories {
			fmt.Fprintf(&b, "\n%s: %d match(es)\n", strings.ToUpper(c.Category), c.Count)
			for i, ex := range c.Examples {
				fmt.Fprintf(&b, "  %d. '%s'\n", i+1, ex)
			}
			if extra := c.Count - len(c.Examples); extra > 0 {
				fmt.Fprintf(&b, "  ... and %d more\n", extra)
			}
		}
		fmt.Fprintf(&b, "\nTotal confidential items: %d\n", r.Summary.Total)
	}

	if r.Stats != nil {
		fmt.Fprintf(&b, "\nMode: anonymization statistics\n")
		fmt.Fprintf(&b, "  Categories found: %d\n", r.Stats.Categories)
		fmt.Fprintf(&b, "  Total matches: %d\n", r.Stats.Matches)
		fmt.Fprintf(&b, "  Original length: %d\n", r.Stats.OriginalLength)
		fmt.Fprintf(&b, "  Processed length: %d\n", r.Stats.ProcessedLength)
	}

	if len(r.Decisions) > 0 {
		fmt.Fprintf(&b, "\nDecisions: erased %d, masked %d, ignored %d\n",
			r.Decisions[workflow.Erase], r.Decisions[workflow.Mask], r.Decisions[workflow.Ignore])
	}

	b.WriteString("\n")
	switch r.Status {
	case StatusBlocked:
		fmt.Fprintf(&b, "BLOCKED: %s\n", r.Document)
		fmt.Fprintf(&b, "Legal basis: %s\n", r.LegalBasis)
		b.WriteString("Reason: unresolved confidential information remains.\n")
	case StatusFlagged:
		fmt.Fprintf(&b, "FLAGGED: %s\n", r.Document)
		fmt.Fprintf(&b, "Legal basis: %s\n", r.LegalBasis)
	default:
		fmt.Fprintf(&b, "SAFE: %s\n", r.Document)
	}
	if !r.Complete {
		b.WriteString("Processing was interrupted; the result covers the sentences resolved so far.\n")
	}

	if r.OutputPath != "" {
		fmt.Fprintf(&b, "Saved to: %s\n", r.OutputPath)
	}
	if r.Preview != "" {
		b.WriteString("\nProcessed text:\n")
		b.WriteString(strings.Repeat("-", 50) + "\n")
		b.WriteString(r.Preview + "\n")
		b.WriteString(strings.Repeat("-", 50) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
