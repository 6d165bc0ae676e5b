package privacy

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/pdn-sentinel/internal/logger"
)

type panicMatcher struct{}

func (panicMatcher) FindAll(ctx context.Context, text string) ([]Span, error) {
	panic("boom")
}

type slowMatcher struct{}

func (slowMatcher) FindAll(ctx context.Context, text string) ([]Span, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]Findings
	hits int
}

func (c *memoryCache) Get(ctx context.Context, key string) (Findings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.data[key]
	if ok {
		c.hits++
	}
	return f, ok
}

func (c *memoryCache) Set(ctx context.Context, key string, f Findings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = f
}

func TestDetectorEmailAndPhone(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())

	findings, err := d.Detect(context.Background(), "Мой email test@example.com и телефон +79123456789.")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	got := findings.Map()
	if len(got) != 2 {
		t.Fatalf("expected exactly email and phone, got %v", got)
	}
	if lits := got[CategoryEmail]; len(lits) != 1 || lits[0] != "test@example.com" {
		t.Errorf("email = %v", lits)
	}
	if lits := got[CategoryPhone]; len(lits) != 1 || lits[0] != "+79123456789" {
		t.Errorf("phone = %v", lits)
	}
	if cats := findings.Categories(); cats[0] != CategoryEmail || cats[1] != CategoryPhone {
		t.Errorf("categories not in registry order: %v", cats)
	}
}

func TestDetectorLexical(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())

	tests := []struct {
		name     string
		text     string
		category string
		literal  string
	}{
		{"medical keeps casing", "Диагноз пациента подтвержден", CategoryMedical, "Диагноз"},
		{"military", "Рядом находится ПОЛИГОН", CategoryMilitary, "ПОЛИГОН"},
		{"coordinates distance", "объект в 12,5 км от города", CategoryCoordinates, "12,5 км"},
		{"commercial english", "Our Trade Secret formula", CategoryCommercialSecret, "Trade Secret"},
		{"context phrase", "Скажу тебе по секрету кое-что", CategorySensitiveContext, "по секрету"},
		{"context english", "Confidentially, the deal is off", CategorySensitiveContext, "Confidentially"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := d.Detect(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			lits := findings.Get(tt.category)
			found := false
			for _, l := range lits {
				if l == tt.literal {
					found = true
				}
			}
			if !found {
				t.Errorf("%s literals = %v, want %q (all: %v)", tt.category, lits, tt.literal, findings.Map())
			}
		})
	}
}

func TestDetectorWordBoundaries(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())

	// "имя" must not match inside other words
	findings, err := d.Detect(context.Background(), "Применять подходы")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if findings.Has(CategoryPersonalData) {
		t.Errorf("unexpected personal_data: %v", findings.Get(CategoryPersonalData))
	}
}

func TestDetectorDeduplicates(t *testing.T) {
	d := NewDetector(PersonalDataRules(), logger.NewNop())

	findings, err := d.Detect(context.Background(), "a@b.ru, a@b.ru и снова a@b.ru; тел 8-912-345-67-89")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if lits := findings.Get(CategoryEmail); len(lits) != 1 {
		t.Errorf("email literals = %v", lits)
	}
	// primary and supplementary phone scanners agree on this literal
	if lits := findings.Get(CategoryPhone); len(lits) != 1 || lits[0] != "8-912-345-67-89" {
		t.Errorf("phone literals = %v", lits)
	}
}

func TestDetectorPersonalData(t *testing.T) {
	d := NewDetector(PersonalDataRules(), logger.NewNop())

	text := "Иван Петров живет по адресу ул. Ленина, д. 5, кв. 12, СНИЛС 123-456-789 01, паспорт 4510 123456."
	findings, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	want := map[string]string{
		CategoryName:     "Иван Петров",
		CategoryAddress:  "ул. Ленина, д. 5, кв. 12",
		CategorySNILS:    "123-456-789 01",
		CategoryPassport: "4510 123456",
	}
	for cat, lit := range want {
		lits := findings.Get(cat)
		if len(lits) == 0 || lits[0] != lit {
			t.Errorf("%s = %v, want %q", cat, lits, lit)
		}
	}
}

func TestDetectorNoFindings(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())

	findings, err := d.Detect(context.Background(), "The weather is nice today")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings.Map())
	}
}

func TestDetectorFailedRuleIsSilentMiss(t *testing.T) {
	reg := NewRegistry("test", "")
	reg.MustRegister("panics", Rule{Matchers: []Matcher{panicMatcher{}}}, "")
	reg.MustRegister("slow", Rule{Matchers: []Matcher{slowMatcher{}}}, "")
	reg.MustRegister("word", testRule(`secret`), "")

	d := NewDetector(reg, logger.NewNop(), WithPatternTimeout(10*time.Millisecond))
	findings, err := d.Detect(context.Background(), "a secret")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if cats := findings.Categories(); len(cats) != 1 || cats[0] != "word" {
		t.Errorf("categories = %v, want [word]", cats)
	}
}

func TestDetectorEvaluateReportsPatternError(t *testing.T) {
	reg := NewRegistry("test", "")
	reg.MustRegister("panics", Rule{Matchers: []Matcher{panicMatcher{}}}, "")
	d := NewDetector(reg, logger.NewNop())

	cat, _ := d.Registry().Lookup("panics")
	_, err := d.evaluate(context.Background(), cat, "x", viewText{text: "x"})

	var pe *PatternEvaluationError
	if !errors.As(err, &pe) || pe.Category != "panics" {
		t.Errorf("expected PatternEvaluationError, got %v", err)
	}
}

func TestDetectorParentCancellation(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Detect(ctx, "секрет"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDetectorCategoryFilter(t *testing.T) {
	d := NewDetector(ConfidentialRules(), logger.NewNop())

	findings, err := d.DetectCategories(context.Background(),
		"Мой email test@example.com и телефон +79123456789", []string{CategoryPhone})
	if err != nil {
		t.Fatalf("DetectCategories: %v", err)
	}
	if cats := findings.Categories(); len(cats) != 1 || cats[0] != CategoryPhone {
		t.Errorf("categories = %v", cats)
	}
}

func TestDetectorUnalignedFold(t *testing.T) {
	reg := NewRegistry("test", "")
	reg.MustRegister("city", Rule{Fold: true, Matchers: []Matcher{Words("istanbul")}}, "")
	d := NewDetector(reg, logger.NewNop())

	findings, err := d.Detect(context.Background(), "Офис İSTANBUL открыт")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if lits := findings.Get("city"); len(lits) != 1 || lits[0] != "İSTANBUL" {
		t.Errorf("city = %q", lits)
	}
}

func TestDetectorCache(t *testing.T) {
	cache := &memoryCache{data: make(map[string]Findings)}
	d := NewDetector(ConfidentialRules(), logger.NewNop(), WithCache(cache))

	text := "пишите на test@example.com"
	first, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	second, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}
	if strings.Join(first.Get(CategoryEmail), ",") != strings.Join(second.Get(CategoryEmail), ",") {
		t.Error("cached findings differ")
	}
	for key := range cache.data {
		if !strings.HasPrefix(key, d.Registry().Fingerprint()+":") {
			t.Errorf("cache key %q lacks fingerprint prefix", key)
		}
	}
}

func TestDetectorIgnoresRegistryChanges(t *testing.T) {
	reg := NewRegistry("test", "")
	reg.MustRegister("a", Rule{Matchers: []Matcher{Regex(regexp.MustCompile("a"))}}, "")
	d := NewDetector(reg, logger.NewNop())

	reg.MustRegister("b", Rule{Matchers: []Matcher{Regex(regexp.MustCompile("b"))}}, "")
	findings, err := d.Detect(context.Background(), "ab")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if findings.Has("b") {
		t.Error("detector should scan its own snapshot")
	}
}
