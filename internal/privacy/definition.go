package privacy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule kinds accepted in category definitions
const (
	KindLexical = "lexical"
	KindRegex   = "regex"
	KindPhrases = "phrases"
	KindGrammar = "grammar"
)

var grammars = map[string]func() []Matcher{
	"phone":    func() []Matcher { return []Matcher{PhonePrimary(), PhoneSupplementary()} },
	"card":     func() []Matcher { return []Matcher{CardPrimary(), CardSupplementary()} },
	"passport": func() []Matcher { return []Matcher{Passport()} },
	"snils":    func() []Matcher { return []Matcher{SNILS()} },
	"inn":      func() []Matcher { return []Matcher{INN()} },
}

// CategoryDef declares a custom category in a rules file or the store
type CategoryDef struct {
	Name          string   `yaml:"name" json:"name"`
	Kind          string   `yaml:"kind" json:"kind"`
	Pattern       string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Phrases       []string `yaml:"phrases,omitempty" json:"phrases,omitempty"`
	Grammar       string   `yaml:"grammar,omitempty" json:"grammar,omitempty"`
	LegalBasis    string   `yaml:"legal_basis,omitempty" json:"legal_basis,omitempty"`
	Mask          string   `yaml:"mask,omitempty" json:"mask,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"case_sensitive,omitempty"`
}

type rulesFile struct {
	Categories []CategoryDef `yaml:"categories"`
}

// LoadRules reads custom category definitions from a YAML file
func LoadRules(path string) ([]CategoryDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	defs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return defs, nil
}

// ParseRules decodes category definitions, rejecting unknown fields
func ParseRules(data []byte) ([]CategoryDef, error) {
	var file rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i, def := range file.Categories {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("category #%d: %w", i+1, err)
		}
	}
	return file.Categories, nil
}

// Validate checks that the definition can be compiled
func (d CategoryDef) Validate() error {
	_, _, err := CompileDefinition(d)
	return err
}

// CompileDefinition turns a definition into a rule and its options
func CompileDefinition(def CategoryDef) (Rule, []Option, error) {
	if strings.TrimSpace(def.Name) == "" {
		return Rule{}, nil, fmt.Errorf("category name is required")
	}

	mask, err := ParseMaskStyle(def.Mask)
	if err != nil {
		return Rule{}, nil, fmt.Errorf("category %s: %w", def.Name, err)
	}
	opts := []Option{WithMask(mask)}

	kind := def.Kind
	if kind == "" {
		kind = KindLexical
	}

	switch kind {
	case KindLexical:
		if def.Pattern == "" {
			return Rule{}, nil, fmt.Errorf("category %s: pattern is required", def.Name)
		}
		if _, err := regexp.Compile(def.Pattern); err != nil {
			return Rule{}, nil, fmt.Errorf("category %s: invalid pattern: %w", def.Name, err)
		}
		return Rule{Fold: true, Matchers: []Matcher{Words(def.Pattern)}, Source: def.Pattern}, opts, nil

	case KindRegex:
		if def.Pattern == "" {
			return Rule{}, nil, fmt.Errorf("category %s: pattern is required", def.Name)
		}
		expr := def.Pattern
		if !def.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return Rule{}, nil, fmt.Errorf("category %s: invalid pattern: %w", def.Name, err)
		}
		return Rule{Matchers: []Matcher{Regex(re)}, Source: expr}, opts, nil

	case KindPhrases:
		m := Phrases(def.Phrases...)
		if len(m.(*phraseMatcher).phrases) == 0 {
			return Rule{}, nil, fmt.Errorf("category %s: at least one phrase is required", def.Name)
		}
		return Rule{Fold: true, Matchers: []Matcher{m}, Source: "phrases:" + strings.Join(def.Phrases, "|")}, opts, nil

	case KindGrammar:
		build, ok := grammars[def.Grammar]
		if !ok {
			return Rule{}, nil, fmt.Errorf("category %s: unknown grammar %q", def.Name, def.Grammar)
		}
		return Rule{Matchers: build(), Source: "grammar:" + def.Grammar}, opts, nil

	default:
		return Rule{}, nil, fmt.Errorf("category %s: unknown kind %q", def.Name, kind)
	}
}

// Extend returns a copy of reg with the definitions registered after the
// built-in categories.
func Extend(reg *Registry, defs []CategoryDef) (*Registry, error) {
	out := reg.Clone()
	for _, def := range defs {
		rule, opts, err := CompileDefinition(def)
		if err != nil {
			return nil, err
		}
		if err := out.Register(def.Name, rule, def.LegalBasis, opts...); err != nil {
			return nil, err
		}
	}
	return out, nil
}
