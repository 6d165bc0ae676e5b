// Package decision provides the sources that resolve flagged sentences:
// an interactive terminal prompt, fixed and scripted answers, and a
// per-category policy.
package decision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

const rule = "================================================================================"

var choices = []workflow.Decision{workflow.Erase, workflow.Mask, workflow.Ignore}

var choiceText = map[workflow.Decision]string{
	workflow.Erase:  "Erase the sentence",
	workflow.Mask:   "Mask the confidential data",
	workflow.Ignore: "Leave it unchanged (the document will be blocked)",
}

// Prompter asks a person at a terminal
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a prompter reading answers from in
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Decide shows the flagged sentence and reads an a/b/c answer. An
// unrecognized answer returns ErrInvalidDecision so the engine asks again.
func (p *Prompter) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if req.Attempt <= 1 {
		fmt.Fprintf(p.out, "\n%s\n", rule)
		fmt.Fprintf(p.out, "Sentence %d/%d contains confidential information:\n", req.Index+1, req.Total)
		fmt.Fprintf(p.out, "Text: %s\n", req.Sentence)
		fmt.Fprintf(p.out, "Categories: %s\n", strings.Join(req.Categories, ", "))
		fmt.Fprintln(p.out, "Matches:")
		for _, f := range req.Findings.Flatten(req.Index) {
			fmt.Fprintf(p.out, "  - %s: '%s'\n", f.Category, f.Literal)
		}
	}

	fmt.Fprintln(p.out, "\nChoose an action for this sentence:")
	for _, d := range choices {
		fmt.Fprintf(p.out, "%s - %s\n", d.Key(), choiceText[d])
	}
	fmt.Fprint(p.out, "Your choice (a/b/c): ")

	line, err := p.readLine()
	if err != nil {
		return "", err
	}

	d, err := workflow.ParseDecision(line)
	if err != nil {
		fmt.Fprintln(p.out, "Invalid choice, try again.")
		return "", err
	}
	return d, nil
}

// SelectMode asks for the whole-text action: 1 deletes, 2 anonymizes
func (p *Prompter) SelectMode() (privacy.Mode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		fmt.Fprintln(p.out, "\nChoose an action:")
		fmt.Fprintln(p.out, "1 - Delete personal data")
		fmt.Fprintln(p.out, "2 - Anonymize personal data")
		fmt.Fprint(p.out, "Your choice (1/2): ")

		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if mode, err := privacy.ParseMode(line); err == nil {
			return mode, nil
		}
		fmt.Fprintln(p.out, "Invalid choice, try again.")
	}
}

// Confirm asks a yes/no question
func (p *Prompter) Confirm(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s (y/n): ", question)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes", "д", "да":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
