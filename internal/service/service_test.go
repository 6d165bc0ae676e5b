package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

func TestNewBuildsEngine(t *testing.T) {
	cfg := config.GetDefaults()
	s, err := New(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	reg := s.Engine().Registry()
	if reg.Name() != privacy.ProfileConfidential {
		t.Errorf("registry = %s", reg.Name())
	}
	if err := reg.Register("extra", privacy.Rule{}, ""); !errors.Is(err, privacy.ErrRegistryFrozen) {
		t.Errorf("engine registry accepted a registration: %v", err)
	}
	if !s.IsBuiltin(privacy.CategoryMilitary) || s.IsBuiltin("project_codes") {
		t.Error("builtin lookup is wrong")
	}
}

func TestRulesFileAndApplyConfig(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	body := "categories:\n  - name: project_codes\n    kind: phrases\n    phrases: [\"проект Сапфир\"]\n    legal_basis: NDA\n"
	if err := os.WriteFile(rules, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.GetDefaults()
	cfg.Scanner.RulesFile = rules
	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	findings, err := s.Engine().Scan(context.Background(), "Обсудили проект Сапфир вчера")
	if err != nil {
		t.Fatal(err)
	}
	if !findings.Has("project_codes") {
		t.Errorf("findings = %v", findings)
	}

	before := s.Engine()
	next := config.GetDefaults()
	next.Scanner.Profile = privacy.ProfilePersonalData
	if err := s.ApplyConfig(context.Background(), next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if s.Engine() == before || s.Engine().Registry().Name() != privacy.ProfilePersonalData {
		t.Error("engine was not swapped")
	}

	broken := config.GetDefaults()
	broken.Scanner.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := s.ApplyConfig(context.Background(), broken); err == nil {
		t.Fatal("expected reload error")
	}
	if s.Config() != next {
		t.Error("failed reload must keep the previous configuration")
	}
}

func TestCategoryOperationsNeedStore(t *testing.T) {
	s, err := New(context.Background(), config.GetDefaults(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.SaveCategory(context.Background(), privacy.CategoryDef{Name: "x", Kind: "regex", Pattern: "x"}); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("SaveCategory error = %v", err)
	}
	if err := s.DeleteCategory(context.Background(), "x"); !errors.Is(err, ErrStoreDisabled) {
		t.Errorf("DeleteCategory error = %v", err)
	}
}

func TestPolicy(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Decision.Policy = map[string]string{privacy.CategoryMilitary: "erase"}
	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.Policy()
	if err != nil {
		t.Fatal(err)
	}
	d, err := p.Decide(context.Background(), workflow.Request{Categories: []string{privacy.CategoryMilitary}})
	if err != nil || d != workflow.Erase {
		t.Errorf("Decide = %q, %v", d, err)
	}
}
