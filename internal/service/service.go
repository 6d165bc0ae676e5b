// Package service wires configuration into a ready engine together with
// the optional Redis cache and PostgreSQL category store, and rebuilds the
// engine when configuration or stored categories change.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/raaihank/pdn-sentinel/internal/cache"
	"github.com/raaihank/pdn-sentinel/internal/config"
	"github.com/raaihank/pdn-sentinel/internal/decision"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"github.com/raaihank/pdn-sentinel/internal/store"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
	"go.uber.org/zap"
)

// ErrStoreDisabled is returned by category operations without a store
var ErrStoreDisabled = errors.New("category store is not enabled")

// ErrBuiltinCategory is returned when a custom category would shadow a
// built-in one
var ErrBuiltinCategory = errors.New("category is built in")

// Services holds the engine and the backends it was built from
type Services struct {
	Store *store.Store
	Cache *cache.FindingsCache

	logger *logger.Logger
	config atomic.Pointer[config.Config]
	engine atomic.Pointer[workflow.Engine]

	mu       sync.Mutex
	builtins map[string]bool
}

// New connects the enabled backends and builds the first engine
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Services{logger: log.WithComponent("service")}
	s.config.Store(cfg)

	if cfg.Store.Enabled {
		st, err := store.NewStore(&cfg.Store, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize category store: %w", err)
		}
		s.Store = st
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewFindingsCache(&cfg.Cache, log)
		if err != nil {
			// Scans work without the cache
			s.logger.Warn("Findings cache unavailable, continuing without it", zap.Error(err))
		} else {
			s.Cache = c
		}
	}

	if err := s.Reload(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Config returns the configuration currently in effect
func (s *Services) Config() *config.Config {
	return s.config.Load()
}

// Engine returns the engine currently in effect
func (s *Services) Engine() *workflow.Engine {
	return s.engine.Load()
}

// Reload rebuilds the registry from the profile, the rules file and the
// store, then swaps the engine. Runs already in flight keep their engine.
func (s *Services) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.Config()
	base, err := privacy.DefaultRegistry(cfg.Scanner.Profile)
	if err != nil {
		return err
	}

	builtins := make(map[string]bool, base.Len())
	for _, name := range base.Names() {
		builtins[name] = true
	}

	var defs []privacy.CategoryDef
	if cfg.Scanner.RulesFile != "" {
		fileDefs, err := privacy.LoadRules(cfg.Scanner.RulesFile)
		if err != nil {
			return err
		}
		defs = append(defs, fileDefs...)
	}
	if s.Store != nil {
		stored, err := s.Store.Definitions(ctx)
		if err != nil {
			return err
		}
		defs = append(defs, stored...)
	}

	reg, err := privacy.Extend(base, defs)
	if err != nil {
		return fmt.Errorf("failed to build categories: %w", err)
	}

	var findingsCache privacy.FindingsCache
	if s.Cache != nil {
		findingsCache = s.Cache
	}
	s.engine.Store(BuildEngine(cfg, reg, findingsCache, s.logger))
	s.builtins = builtins

	s.logger.Info("Engine ready",
		zap.String("profile", reg.Name()),
		zap.Int("categories", reg.Len()),
		zap.Int("custom_categories", len(defs)),
		zap.Bool("cache", s.Cache != nil))
	return nil
}

// ApplyConfig swaps the configuration and rebuilds the engine. The old
// configuration stays in effect when the rebuild fails.
func (s *Services) ApplyConfig(ctx context.Context, cfg *config.Config) error {
	old := s.config.Swap(cfg)
	if err := s.Reload(ctx); err != nil {
		s.config.Store(old)
		return err
	}
	return nil
}

// BuildEngine creates an engine over a registry using the scanner,
// redaction and decision settings
func BuildEngine(cfg *config.Config, reg *privacy.Registry, findingsCache privacy.FindingsCache, log *logger.Logger) *workflow.Engine {
	opts := []privacy.DetectorOption{privacy.WithPatternTimeout(cfg.Scanner.PatternTimeout)}
	if findingsCache != nil {
		opts = append(opts, privacy.WithCache(findingsCache))
	}
	detector := privacy.NewDetector(reg, log, opts...)
	redactor := privacy.NewRedactor(detector.Registry(), cfg.Redaction.Placeholder)

	return workflow.NewEngine(detector, redactor, workflow.Options{
		MaxAttempts: cfg.Decision.MaxAttempts,
		Concurrency: cfg.Scanner.Concurrency,
	}, log)
}

// Policy returns the configured non-interactive decision source
func (s *Services) Policy() (*decision.Policy, error) {
	cfg := s.Config()
	return decision.NewPolicy(cfg.Decision.Policy, cfg.Decision.Default)
}

// SaveCategory stores a custom category and rebuilds the engine
func (s *Services) SaveCategory(ctx context.Context, def privacy.CategoryDef) (*store.CategoryRecord, error) {
	if s.Store == nil {
		return nil, ErrStoreDisabled
	}
	if s.IsBuiltin(def.Name) {
		return nil, fmt.Errorf("%w: %s", ErrBuiltinCategory, def.Name)
	}

	record, err := s.Store.Upsert(ctx, def)
	if err != nil {
		return nil, err
	}
	if err := s.Reload(ctx); err != nil {
		return record, fmt.Errorf("category stored but engine reload failed: %w", err)
	}
	return record, nil
}

// DeleteCategory removes a custom category and rebuilds the engine
func (s *Services) DeleteCategory(ctx context.Context, name string) error {
	if s.Store == nil {
		return ErrStoreDisabled
	}
	if err := s.Store.Delete(ctx, name); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// IsBuiltin reports whether name belongs to the active profile's rule pack
func (s *Services) IsBuiltin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builtins[name]
}

// Close releases the backends
func (s *Services) Close() {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.logger.Warn("Failed to close category store", zap.Error(err))
		}
	}
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			s.logger.Warn("Failed to close findings cache", zap.Error(err))
		}
	}
}
