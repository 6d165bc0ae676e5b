package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raaihank/pdn-sentinel/internal/privacy"
)

var (
	// ErrInvalidDecision marks an answer the decision source should retry
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrDecisionAttemptsExceeded is returned when no valid answer arrived
	// within the configured number of attempts
	ErrDecisionAttemptsExceeded = errors.New("decision attempts exceeded")
)

// Decision is the action applied to a flagged sentence
type Decision string

const (
	// Erase removes the sentence from the output
	Erase Decision = "erase"
	// Mask replaces the sentence's findings and keeps it
	Mask Decision = "mask"
	// Ignore keeps the sentence verbatim and blocks the document
	Ignore Decision = "ignore"
)

// Valid reports whether d is one of the three actions
func (d Decision) Valid() bool {
	return d == Erase || d == Mask || d == Ignore
}

// Key returns the menu key of the decision
func (d Decision) Key() string {
	switch d {
	case Erase:
		return "a"
	case Mask:
		return "b"
	case Ignore:
		return "c"
	default:
		return ""
	}
}

// ParseDecision accepts menu keys (a/b/c), numbers (1/2/3) and names
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "1", "erase", "delete", "remove":
		return Erase, nil
	case "b", "2", "mask", "anonymize", "replace":
		return Mask, nil
	case "c", "3", "ignore", "keep", "skip":
		return Ignore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// Request describes a flagged sentence awaiting a decision
type Request struct {
	DocumentID string           `json:"document_id"`
	Index      int              `json:"index"`
	Total      int              `json:"total"`
	Sentence   string           `json:"sentence"`
	Categories []string         `json:"categories"`
	Findings   privacy.Findings `json:"findings"`
	Attempt    int              `json:"attempt"`
}

// Decider resolves flagged sentences. Returning an error wrapping
// ErrInvalidDecision asks the engine to try again.
type Decider interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(ctx context.Context, req Request) (Decision, error)

// Decide calls f
func (f DeciderFunc) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Status is the state of a sentence in the workflow
type Status string

const (
	StatusClean    Status = "clean"
	StatusFlagged  Status = "flagged"
	StatusResolved Status = "resolved"
)

// Verdict is the final determination for a processed document
type Verdict string

const (
	Safe    Verdict = "safe"
	Blocked Verdict = "blocked"
)

// SentenceOutcome records how one sentence was handled
type SentenceOutcome struct {
	Index    int              `json:"index"`
	Original string           `json:"original"`
	Output   string           `json:"output,omitempty"`
	Status   Status           `json:"status"`
	Decision Decision         `json:"decision,omitempty"`
	Findings privacy.Findings `json:"findings,omitempty"`
}

// Result is the outcome of the sentence workflow. When processing stops
// early, it holds the sentences resolved so far and Complete is false.
type Result struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Verdict    Verdict           `json:"verdict"`
	Categories []string          `json:"categories,omitempty"`
	LegalBasis string            `json:"legal_basis,omitempty"`
	Findings   privacy.Findings  `json:"findings"`
	Sentences  []SentenceOutcome `json:"sentences"`
	Complete   bool              `json:"complete"`
}

// Blocked reports whether any sentence was left unresolved
func (r *Result) Blocked() bool {
	return r.Verdict == Blocked
}

// Counts returns how many sentences resolved to each decision
func (r *Result) Counts() map[Decision]int {
	counts := make(map[Decision]int)
	for _, s := range r.Sentences {
		if s.Status == StatusResolved {
			counts[s.Decision]++
		}
	}
	return counts
}

// Stats summarizes a whole-text anonymization
type Stats struct {
	Categories      int `json:"categories"`
	Matches         int `json:"matches"`
	OriginalLength  int `json:"original_length"`
	ProcessedLength int `json:"processed_length"`
}

// AnonymizeResult is the outcome of a whole-text delete or mask pass
type AnonymizeResult struct {
	DocumentID string           `json:"document_id"`
	Mode       privacy.Mode     `json:"mode"`
	Text       string           `json:"text"`
	Findings   privacy.Findings `json:"findings"`
	Stats      Stats            `json:"stats"`
}
