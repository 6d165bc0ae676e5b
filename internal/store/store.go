// Package store keeps custom detection categories in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/pdn-sentinel/internal/logger"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// ErrCategoryNotFound is returned when a named category has no row
var ErrCategoryNotFound = errors.New("category not found")

const schema = `
CREATE TABLE IF NOT EXISTS custom_categories (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	kind           TEXT NOT NULL,
	pattern        TEXT NOT NULL DEFAULT '',
	phrases        TEXT[] NOT NULL DEFAULT '{}',
	grammar        TEXT NOT NULL DEFAULT '',
	legal_basis    TEXT NOT NULL DEFAULT '',
	mask           TEXT NOT NULL DEFAULT '',
	case_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertQuery = `
	INSERT INTO custom_categories (name, kind, pattern, phrases, grammar, legal_basis, mask, case_sensitive)
	VALUES (:name, :kind, :pattern, :phrases, :grammar, :legal_basis, :mask, :case_sensitive)
	ON CONFLICT (name) DO UPDATE SET
		kind = EXCLUDED.kind,
		pattern = EXCLUDED.pattern,
		phrases = EXCLUDED.phrases,
		grammar = EXCLUDED.grammar,
		legal_basis = EXCLUDED.legal_basis,
		mask = EXCLUDED.mask,
		case_sensitive = EXCLUDED.case_sensitive,
		updated_at = NOW()
	RETURNING id, created_at, updated_at`

// Store handles custom category storage in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects, configures the pool and migrates the schema
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	s := NewWithDB(db, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	s.logger.Info("Category store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return s, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{db: db, logger: log.WithComponent("store")}
}

// Migrate creates the categories table when missing
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create custom_categories: %w", err)
	}
	return nil
}

// List returns all stored categories ordered by creation, which is the
// order they are registered in.
func (s *Store) List(ctx context.Context) ([]CategoryRecord, error) {
	var records []CategoryRecord
	query := `SELECT id, name, kind, pattern, phrases, grammar, legal_basis, mask, case_sensitive, created_at, updated_at
		FROM custom_categories ORDER BY id`
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return records, nil
}

// Definitions returns the stored categories as definitions
func (s *Store) Definitions(ctx context.Context) ([]privacy.CategoryDef, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]privacy.CategoryDef, len(records))
	for i, r := range records {
		defs[i] = r.Definition()
	}
	return defs, nil
}

// Get returns one category by name
func (s *Store) Get(ctx context.Context, name string) (*CategoryRecord, error) {
	var r CategoryRecord
	query := `SELECT id, name, kind, pattern, phrases, grammar, legal_basis, mask, case_sensitive, created_at, updated_at
		FROM custom_categories WHERE name = $1`
	err := s.db.GetContext(ctx, &r, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", name, err)
	}
	return &r, nil
}

// Upsert validates and stores a definition, replacing any row with the same name
func (s *Store) Upsert(ctx context.Context, def privacy.CategoryDef) (*CategoryRecord, error) {
	if _, _, err := privacy.CompileDefinition(def); err != nil {
		return nil, err
	}

	record := RecordFromDefinition(def)
	rows, err := s.db.NamedQueryContext(ctx, upsertQuery, record)
	if err != nil {
		s.logger.Error("Failed to upsert category", zap.String("category", def.Name), zap.Error(err))
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to read upserted category: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}

	s.logger.Info("Category stored",
		zap.String("category", record.Name),
		zap.String("kind", record.Kind))
	return &record, nil
}

// Delete removes a category by name
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_categories WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		return nil
	}
	if n == 0 {
		return notFound(name)
	}

	s.logger.Info("Category deleted", zap.String("category", name))
	return nil
}

// GetStats returns counts per category kind
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int64  `db:"count"`
	}
	query := `SELECT kind, COUNT(*) AS count FROM custom_categories GROUP BY kind`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}

	stats := &Stats{ByKind: make(map[string]int64, len(rows))}
	for _, r := range rows {
		stats.ByKind[r.Kind] = r.Count
		stats.TotalCategories += r.Count
	}
	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}
