package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/pdn-sentinel/internal/logger"
	"go.uber.org/zap"
)

// DefaultPatternTimeout bounds a single rule evaluation
const DefaultPatternTimeout = 2 * time.Second

// FindingsCache stores detector results keyed by rule set and text hash
type FindingsCache interface {
	Get(ctx context.Context, key string) (Findings, bool)
	Set(ctx context.Context, key string, findings Findings)
}

// Detector scans text against a frozen registry snapshot. It is safe for
// concurrent use.
type Detector struct {
	registry    *Registry
	logger      *logger.Logger
	timeout     time.Duration
	cache       FindingsCache
	fingerprint string
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithPatternTimeout sets the per-rule evaluation deadline, zero disables it
func WithPatternTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		d.timeout = timeout
	}
}

// WithCache enables the findings cache for whole-document scans
func WithCache(cache FindingsCache) DetectorOption {
	return func(d *Detector) {
		d.cache = cache
	}
}

// NewDetector creates a detector over a snapshot of the registry
func NewDetector(reg *Registry, log *logger.Logger, opts ...DetectorOption) *Detector {
	if log == nil {
		log = logger.NewNop()
	}
	snapshot := reg.Freeze()
	d := &Detector{
		registry:    snapshot,
		logger:      log.WithComponent("detector"),
		timeout:     DefaultPatternTimeout,
		fingerprint: snapshot.Fingerprint(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.logger.Info("Detector initialized",
		zap.String("profile", snapshot.Name()),
		zap.Int("categories", snapshot.Len()),
		zap.String("fingerprint", d.fingerprint),
		zap.Duration("pattern_timeout", d.timeout),
		zap.Bool("cache", d.cache != nil),
	)

	return d
}

// Registry returns the frozen snapshot the detector scans with
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Detect returns, per category in registry order, the distinct literals
// found in text in their original casing.
func (d *Detector) Detect(ctx context.Context, text string) (Findings, error) {
	var key string
	if d.cache != nil {
		key = d.cacheKey(text)
		if cached, ok := d.cache.Get(ctx, key); ok {
			d.logger.Debug("Findings served from cache", zap.Int("categories", len(cached)))
			return cached, nil
		}
	}

	findings, err := d.DetectCategories(ctx, text, nil)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Set(ctx, key, findings)
	}
	return findings, nil
}

// DetectCategories is Detect restricted to the named categories; a nil
// filter scans every category.
func (d *Detector) DetectCategories(ctx context.Context, text string, only []string) (Findings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allowed map[string]bool
	if only != nil {
		allowed = make(map[string]bool, len(only))
		for _, name := range only {
			allowed[name] = true
		}
	}

	var folded *foldedText
	findings := make(Findings, 0)

	for _, cat := range d.registry.categories {
		if allowed != nil && !allowed[cat.Name] {
			continue
		}

		view := viewText{text: text}
		if cat.Rule.Fold {
			if folded == nil {
				folded = newFoldedText(text)
			}
			view = viewText{text: folded.view, folded: folded}
		}

		literals, err := d.evaluate(ctx, cat, text, view)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var pe *PatternEvaluationError
			if errors.As(err, &pe) {
				d.logger.Warn("Detection rule failed, treating as no match",
					zap.String("category", pe.Category),
					zap.Error(pe.Err),
				)
				continue
			}
			return nil, err
		}

		if len(literals) > 0 {
			findings = append(findings, CategoryMatch{Category: cat.Name, Literals: literals})
		}
	}

	d.logger.Debug("Detection completed",
		zap.Int("text_length", utf8.RuneCountInString(text)),
		zap.Int("categories", len(findings)),
		zap.Int("literals", findings.Total()),
	)

	return findings, nil
}

// evaluate runs one category's matchers under the per-rule deadline
func (d *Detector) evaluate(ctx context.Context, cat Category, original string, view viewText) (literals []string, err error) {
	ruleCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ruleCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			literals = nil
			err = &PatternEvaluationError{Category: cat.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	seen := make(map[string]bool)
	for _, m := range cat.Rule.Matchers {
		spans, err := m.FindAll(ruleCtx, view.text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &PatternEvaluationError{Category: cat.Name, Err: err}
		}
		for _, sp := range spans {
			lit := view.literal(original, sp)
			if lit == "" || seen[lit] {
				continue
			}
			seen[lit] = true
			literals = append(literals, lit)
		}
	}
	return literals, nil
}

func (d *Detector) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return d.fingerprint + ":" + hex.EncodeToString(sum[:])
}

// viewText is the text a rule scans, plus how to map spans back
type viewText struct {
	text   string
	folded *foldedText
}

func (v viewText) literal(original string, sp Span) string {
	if v.folded == nil {
		return original[sp.Start:sp.End]
	}
	return v.folded.original(original, sp)
}

// foldedText is the lower-cased view of a text. When lower-casing changes
// the encoded width of some rune, offsets maps view bytes to original bytes.
type foldedText struct {
	view    string
	offsets []int
}

func newFoldedText(text string) *foldedText {
	view, aligned := foldView(text)
	f := &foldedText{view: view}
	if aligned {
		return f
	}

	f.offsets = make([]int, 0, len(view)+1)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		width := utf8.RuneLen(unicode.ToLower(r))
		if width < 0 {
			width = size
		}
		for k := 0; k < width; k++ {
			f.offsets = append(f.offsets, i)
		}
		i += size
	}
	f.offsets = append(f.offsets, len(text))
	return f
}

func (f *foldedText) original(text string, sp Span) string {
	if f.offsets == nil {
		return text[sp.Start:sp.End]
	}
	return text[f.offsets[sp.Start]:f.offsets[sp.End]]
}
