package store

import (
	"time"

	"github.com/lib/pq"
	"github.com/raaihank/pdn-sentinel/internal/privacy"
)

// Config contains database configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CategoryRecord is one row of the custom_categories table
type CategoryRecord struct {
	ID            int64          `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Kind          string         `db:"kind" json:"kind"`
	Pattern       string         `db:"pattern" json:"pattern,omitempty"`
	Phrases       pq.StringArray `db:"phrases" json:"phrases,omitempty"`
	Grammar       string         `db:"grammar" json:"grammar,omitempty"`
	LegalBasis    string         `db:"legal_basis" json:"legal_basis,omitempty"`
	Mask          string         `db:"mask" json:"mask,omitempty"`
	CaseSensitive bool           `db:"case_sensitive" json:"case_sensitive,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Definition converts the row to a category definition
func (r CategoryRecord) Definition() privacy.CategoryDef {
	return privacy.CategoryDef{
		Name:          r.Name,
		Kind:          r.Kind,
		Pattern:       r.Pattern,
		Phrases:       []string(r.Phrases),
		Grammar:       r.Grammar,
		LegalBasis:    r.LegalBasis,
		Mask:          r.Mask,
		CaseSensitive: r.CaseSensitive,
	}
}

// RecordFromDefinition converts a definition to a row
func RecordFromDefinition(def privacy.CategoryDef) CategoryRecord {
	phrases := pq.StringArray{}
	if len(def.Phrases) > 0 {
		phrases = pq.StringArray(def.Phrases)
	}
	return CategoryRecord{
		Name:          def.Name,
		Kind:          def.Kind,
		Pattern:       def.Pattern,
		Phrases:       phrases,
		Grammar:       def.Grammar,
		LegalBasis:    def.LegalBasis,
		Mask:          def.Mask,
		CaseSensitive: def.CaseSensitive,
	}
}

// Stats represents database statistics
type Stats struct {
	TotalCategories int64            `json:"total_categories"`
	ByKind          map[string]int64 `json:"by_kind"`
}
