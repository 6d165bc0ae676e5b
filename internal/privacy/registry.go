package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrRegistryFrozen is returned when registering into a snapshot
var ErrRegistryFrozen = errors.New("registry is frozen")

// Rule binds the matchers of a category to the text view they scan
type Rule struct {
	// Fold scans the lower-cased view (lexical rules); otherwise the
	// original-case text is scanned (structured rules)
	Fold bool
	// Matchers holds the primary matcher followed by any supplementary
	// scanners; their results are unioned per category
	Matchers []Matcher
	// Source describes the rule for fingerprints and listings
	Source string
}

// Category is a named class of confidential information
type Category struct {
	Name       string
	Rule       Rule
	LegalBasis string
	Mask       MaskStyle
}

// Option customizes a category at registration
type Option func(*Category)

// WithMask sets the masking style of the category
func WithMask(style MaskStyle) Option {
	return func(c *Category) {
		c.Mask = style
	}
}

// Registry holds the detectors of one rule pack, in registration order
type Registry struct {
	name         string
	defaultBasis string
	categories   []Category
	index        map[string]int
	frozen       bool
}

// NewRegistry creates an empty registry with the fallback legal basis
func NewRegistry(name, defaultBasis string) *Registry {
	return &Registry{
		name:         name,
		defaultBasis: defaultBasis,
		index:        make(map[string]int),
	}
}

// Register adds a category. Names are unique within a registry.
func (r *Registry) Register(name string, rule Rule, legalBasis string, opts ...Option) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category name is required")
	}
	if len(rule.Matchers) == 0 {
		return fmt.Errorf("category %s: at least one matcher is required", name)
	}
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("category %s is already registered", name)
	}

	cat := Category{
		Name:       name,
		Rule:       rule,
		LegalBasis: legalBasis,
		Mask:       MaskFull,
	}
	for _, opt := range opts {
		opt(&cat)
	}

	r.index[name] = len(r.categories)
	r.categories = append(r.categories, cat)
	return nil
}

// MustRegister is Register for built-in rule packs
func (r *Registry) MustRegister(name string, rule Rule, legalBasis string, opts ...Option) {
	if err := r.Register(name, rule, legalBasis, opts...); err != nil {
		panic(err)
	}
}

// Rules returns the category -> rule mapping
func (r *Registry) Rules() map[string]Rule {
	rules := make(map[string]Rule, len(r.categories))
	for _, c := range r.categories {
		rules[c.Name] = c.Rule
	}
	return rules
}

// Categories returns the categories in registration order
func (r *Registry) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// Names returns the category names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.categories))
	for i, c := range r.categories {
		names[i] = c.Name
	}
	return names
}

// Lookup finds a category by name
func (r *Registry) Lookup(name string) (Category, bool) {
	i, ok := r.index[name]
	if !ok {
		return Category{}, false
	}
	return r.categories[i], true
}

// LegalBasis returns the basis of the first category, in registration
// order, that is among categories and has one; otherwise the default.
func (r *Registry) LegalBasis(categories []string) string {
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	for _, c := range r.categories {
		if wanted[c.Name] && c.LegalBasis != "" {
			return c.LegalBasis
		}
	}
	return r.defaultBasis
}

// Name returns the rule pack name
func (r *Registry) Name() string {
	return r.name
}

// DefaultBasis returns the fallback legal basis
func (r *Registry) DefaultBasis() string {
	return r.defaultBasis
}

// Len returns the number of registered categories
func (r *Registry) Len() int {
	return len(r.categories)
}

// Freeze returns an immutable snapshot of the registry
func (r *Registry) Freeze() *Registry {
	if r.frozen {
		return r
	}
	snap := r.Clone()
	snap.frozen = true
	return snap
}

// Clone returns a mutable copy, used to extend a built-in pack
func (r *Registry) Clone() *Registry {
	c := &Registry{
		name:         r.name,
		defaultBasis: r.defaultBasis,
		categories:   append([]Category(nil), r.categories...),
		index:        make(map[string]int, len(r.index)),
	}
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}

// Fingerprint identifies the rule set, used to key cached findings
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", r.name, r.defaultBasis)
	for _, c := range r.categories {
		fmt.Fprintf(h, "%s\x00%t\x00%s\x00%s\x00%s\x00", c.Name, c.Rule.Fold, c.Rule.Source, c.LegalBasis, c.Mask)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
