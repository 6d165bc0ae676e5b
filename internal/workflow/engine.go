package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/raaihank/pdn-sentinel/internal/document"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxAttempts bounds how often a decision source is asked per sentence
const DefaultMaxAttempts = 5

// Options tunes the engine
type Options struct {
	// MaxAttempts is the number of answers requested per flagged sentence
	MaxAttempts int
	// Concurrency above one detects sentences in parallel before the
	// sequential decision pass
	Concurrency int
}

// Engine runs the sentence workflow over one registry snapshot
type Engine struct {
	detector *privacy.Detector
	redactor *privacy.Redactor
	opts     Options
	logger   *logger.Logger
}

// NewEngine creates an engine around a detector and redactor built from the
// same registry.
func NewEngine(detector *privacy.Detector, redactor *privacy.Redactor, opts Options, log *logger.Logger) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		detector: detector,
		redactor: redactor,
		opts:     opts,
		logger:   log.WithComponent("workflow"),
	}
}

// Registry returns the registry snapshot the engine detects with
func (e *Engine) Registry() *privacy.Registry {
	return e.detector.Registry()
}

// Redactor returns the engine's redactor
func (e *Engine) Redactor() *privacy.Redactor {
	return e.redactor
}

// Scan detects findings in the whole text without modifying it
func (e *Engine) Scan(ctx context.Context, text string) (privacy.Findings, error) {
	if err := document.CheckText(text); err != nil {
		return nil, err
	}
	return e.detector.Detect(ctx, text)
}

// Anonymize replaces every finding in the whole text, with masks or with
// the delete placeholder.
func (e *Engine) Anonymize(ctx context.Context, text string, mode privacy.Mode) (*AnonymizeResult, error) {
	if err := document.CheckText(text); err != nil {
		return nil, err
	}

	findings, err := e.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	processed := e.redactor.Redact(text, findings, mode)
	res := &AnonymizeResult{
		DocumentID: uuid.NewString(),
		Mode:       mode,
		Text:       processed,
		Findings:   findings,
		Stats: Stats{
			Categories:      len(findings),
			Matches:         findings.Total(),
			OriginalLength:  utf8.RuneCountInString(text),
			ProcessedLength: utf8.RuneCountInString(processed),
		},
	}

	e.logger.WithDocumentID(res.DocumentID).Info("Document anonymized",
		zap.String("mode", string(mode)),
		zap.Strings("categories", findings.Categories()),
		zap.Int("matches", res.Stats.Matches),
	)

	return res, nil
}

// Process runs the sentence workflow. Flagged sentences are resolved one
// at a time through decider and committed before the next one, so on
// cancellation or a decider error the returned Result holds the resolved
// prefix alongside the error.
func (e *Engine) Process(ctx context.Context, text string, decider Decider) (*Result, error) {
	if err := document.CheckText(text); err != nil {
		return nil, err
	}

	res := &Result{DocumentID: uuid.NewString(), Verdict: Safe}
	log := e.logger.WithDocumentID(res.DocumentID)

	whole, err := e.detector.Detect(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	res.Findings = whole

	sentences := SplitSentences(text, whole.Spans(text)...)
	if len(whole) == 0 {
		for i, s := range sentences {
			res.Sentences = append(res.Sentences, SentenceOutcome{Index: i, Original: s, Output: s, Status: StatusClean})
		}
		res.Text = text
		res.Complete = true
		log.Info("Document is clean", zap.Int("sentences", len(sentences)))
		return res, nil
	}

	log.Info("Confidential information detected",
		zap.Strings("categories", whole.Categories()),
		zap.Int("literals", whole.Total()),
		zap.Int("sentences", len(sentences)),
	)

	kept := make([]string, 0, len(sentences))
	violated := make(map[string]bool)
	finish := func(err error) (*Result, error) {
		res.Text = JoinSentences(kept)
		res.Complete = err == nil
		if len(violated) > 0 {
			res.Verdict = Blocked
			for _, name := range e.Registry().Names() {
				if violated[name] {
					res.Categories = append(res.Categories, name)
				}
			}
			res.LegalBasis = e.Registry().LegalBasis(res.Categories)
		}
		return res, err
	}

	var precomputed []privacy.Findings
	if e.opts.Concurrency > 1 && len(sentences) > 1 {
		precomputed, err = e.detectSentences(ctx, sentences, whole)
		if err != nil {
			return finish(err)
		}
	}

	for i, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		var found privacy.Findings
		if precomputed != nil {
			found = precomputed[i]
		} else {
			found, err = e.sentenceFindings(ctx, sentence, whole)
			if err != nil {
				return finish(err)
			}
		}

		outcome := SentenceOutcome{Index: i, Original: sentence, Status: StatusClean}
		if len(found) == 0 {
			outcome.Output = sentence
			kept = append(kept, sentence)
			res.Sentences = append(res.Sentences, outcome)
			continue
		}

		outcome.Findings = found
		req := Request{
			DocumentID: res.DocumentID,
			Index:      i,
			Total:      len(sentences),
			Sentence:   sentence,
			Categories: found.Categories(),
			Findings:   found,
		}
		decision, err := e.decide(ctx, decider, req)
		if err != nil {
			outcome.Status = StatusFlagged
			res.Sentences = append(res.Sentences, outcome)
			return finish(err)
		}

		outcome.Status = StatusResolved
		outcome.Decision = decision
		switch decision {
		case Erase:
		case Mask:
			outcome.Output = e.redactor.Redact(sentence, found, privacy.ModeMask)
			kept = append(kept, outcome.Output)
		case Ignore:
			outcome.Output = sentence
			kept = append(kept, sentence)
			for _, c := range found.Categories() {
				violated[c] = true
			}
		}
		res.Sentences = append(res.Sentences, outcome)

		log.Debug("Sentence resolved",
			zap.Int("index", i),
			zap.String("decision", string(decision)),
			zap.Strings("categories", req.Categories),
		)
	}

	res, err = finish(nil)
	log.Info("Document processed",
		zap.String("verdict", string(res.Verdict)),
		zap.Strings("violated", res.Categories),
	)
	return res, err
}

// sentenceFindings detects within one sentence, restricted to the
// categories of the whole-text pass, and adds whole-text literals that
// reappear case-insensitively in the sentence.
func (e *Engine) sentenceFindings(ctx context.Context, sentence string, whole privacy.Findings) (privacy.Findings, error) {
	scoped, err := e.detector.DetectCategories(ctx, sentence, whole.Categories())
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(sentence)
	found := make(privacy.Findings, 0)
	for _, m := range whole {
		literals := append([]string(nil), scoped.Get(m.Category)...)
		seen := make(map[string]bool, len(literals))
		for _, l := range literals {
			seen[l] = true
		}
		for _, l := range m.Literals {
			if !seen[l] && strings.Contains(lower, strings.ToLower(l)) {
				seen[l] = true
				literals = append(literals, l)
			}
		}
		if len(literals) > 0 {
			found = append(found, privacy.CategoryMatch{Category: m.Category, Literals: literals})
		}
	}
	return found, nil
}

// detectSentences runs sentence detection with a bounded worker group
func (e *Engine) detectSentences(ctx context.Context, sentences []string, whole privacy.Findings) ([]privacy.Findings, error) {
	out := make([]privacy.Findings, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, s := range sentences {
		i, s := i, s
		g.Go(func() error {
			found, err := e.sentenceFindings(gctx, s, whole)
			if err != nil {
				return err
			}
			out[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// decide asks the decider until it returns a valid decision
func (e *Engine) decide(ctx context.Context, decider Decider, req Request) (Decision, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req.Attempt = attempt
		decision, err := decider.Decide(ctx, req)
		if err == nil && !decision.Valid() {
			err = fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
		}
		if err == nil {
			return decision, nil
		}
		if !errors.Is(err, ErrInvalidDecision) {
			return "", err
		}

		lastErr = err
		e.logger.Warn("Invalid decision, asking again",
			zap.String("document_id", req.DocumentID),
			zap.Int("sentence", req.Index),
			zap.Int("attempt", attempt),
		)
	}
	return "", fmt.Errorf("%w: sentence %d after %d attempts: %v",
		ErrDecisionAttemptsExceeded, req.Index+1, e.opts.MaxAttempts, lastErr)
}
