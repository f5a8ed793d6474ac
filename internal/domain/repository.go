package domain

import (
	"context"
	"time"
)

// Repository defines the interface for configuration and audit persistence.
// All methods require tenantID for strict multi-tenancy isolation. The core
// reads configuration and append-writes audit records; configuration
// management happens through the API layer.
type Repository interface {
	// Scoring factor configuration
	SaveScoringFactor(ctx context.Context, tenantID string, factor *ScoringFactorConfig) error
	GetScoringFactor(ctx context.Context, tenantID string, id string) (*ScoringFactorConfig, error)
	ListScoringFactors(ctx context.Context, tenantID string, onlyEnabled bool) ([]*ScoringFactorConfig, error)
	DeleteScoringFactor(ctx context.Context, tenantID string, id string) error

	// Score range configuration
	SaveScoreRange(ctx context.Context, tenantID string, rng *ScoreRangeConfig) error
	GetScoreRange(ctx context.Context, tenantID string, id string) (*ScoreRangeConfig, error)
	ListScoreRanges(ctx context.Context, tenantID string, onlyEnabled bool) ([]*ScoreRangeConfig, error)
	DeleteScoreRange(ctx context.Context, tenantID string, id string) error
	SetScoreRangeEnabled(ctx context.Context, tenantID string, id string, enabled bool) error

	// Rule configuration
	SaveRule(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRule(ctx context.Context, tenantID string, id string) (*RuleConfig, error)
	ListRules(ctx context.Context, tenantID string, onlyEnabled bool) ([]*RuleConfig, error)
	// DeleteRule refuses to delete rules still referenced by execution
	// audit records.
	DeleteRule(ctx context.Context, tenantID string, id string) error
	SetRuleEnabled(ctx context.Context, tenantID string, id string, enabled bool) error

	// Decision and execution audit, append-only
	SaveDecision(ctx context.Context, tenantID string, decision *Decision) error
	GetDecision(ctx context.Context, tenantID string, id string) (*Decision, error)
	AppendRuleExecutions(ctx context.Context, tenantID string, records []*RuleExecutionRecord) error
	ListRuleExecutions(ctx context.Context, tenantID string, decisionID string) ([]*RuleExecutionRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
