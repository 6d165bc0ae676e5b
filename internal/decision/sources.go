package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

// ErrScriptExhausted is returned when a scripted source runs out of answers
var ErrScriptExhausted = errors.New("scripted decisions exhausted")

// Fixed answers every flagged sentence the same way
type Fixed workflow.Decision

// Decide returns the fixed decision
func (f Fixed) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	return workflow.Decision(f), nil
}

// Scripted replays raw answers in order, as a test fixture or for
// per-request decisions sent over the API
type Scripted struct {
	mu      sync.Mutex
	answers []string
	next    int
}

// NewScripted creates a scripted source; answers use the ParseDecision forms
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

// Decide consumes the next answer
func (s *Scripted) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.answers) {
		return "", fmt.Errorf("%w at sentence %d", ErrScriptExhausted, req.Index+1)
	}
	answer := s.answers[s.next]
	s.next++
	return workflow.ParseDecision(answer)
}

// Remaining returns the number of unused answers
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers) - s.next
}

// restrictiveness orders decisions when categories disagree
var restrictiveness = map[workflow.Decision]int{
	workflow.Mask:   1,
	workflow.Ignore: 2,
	workflow.Erase:  3,
}

// Policy decides per category; when a sentence has several categories the
// most restrictive decision wins (erase, then ignore, then mask).
type Policy struct {
	rules    map[string]workflow.Decision
	fallback workflow.Decision
}

// NewPolicy builds a policy from category -> answer pairs and a fallback
func NewPolicy(rules map[string]string, fallback string) (*Policy, error) {
	if fallback == "" {
		fallback = string(workflow.Mask)
	}
	fb, err := workflow.ParseDecision(fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid default decision: %w", err)
	}

	p := &Policy{rules: make(map[string]workflow.Decision, len(rules)), fallback: fb}
	for category, answer := range rules {
		d, err := workflow.ParseDecision(answer)
		if err != nil {
			return nil, fmt.Errorf("invalid decision for %s: %w", category, err)
		}
		p.rules[category] = d
	}
	return p, nil
}

// Decide applies the policy to the sentence's categories
func (p *Policy) Decide(ctx context.Context, req workflow.Request) (workflow.Decision, error) {
	if len(req.Categories) == 0 {
		return p.fallback, nil
	}

	var chosen workflow.Decision
	for _, category := range req.Categories {
		d, ok := p.rules[category]
		if !ok {
			d = p.fallback
		}
		if restrictiveness[d] > restrictiveness[chosen] {
			chosen = d
		}
	}
	return chosen, nil
}
