// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrConstraint is returned when deleting a rule still referenced by
	// execution audit history.
	ErrConstraint = errors.New("record is referenced by audit history")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveScoringFactor upserts a scoring factor configuration.
func (r *SQLRepository) SaveScoringFactor(ctx context.Context, tenantID string, factor *domain.ScoringFactorConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	spec, _ := json.Marshal(factor.Spec)
	now := time.Now().UTC()

	query := `
		INSERT INTO scoring_factors (
			id, tenant_id, factor_key, name, category, max_points, weight,
			calculation_type, spec, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			factor_key = excluded.factor_key,
			name = excluded.name,
			category = excluded.category,
			max_points = excluded.max_points,
			weight = excluded.weight,
			calculation_type = excluded.calculation_type,
			spec = excluded.spec,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		factor.ID, tenantID, factor.FactorKey, factor.Name, factor.Category,
		factor.MaxPoints, factor.Weight, string(factor.CalculationType),
		string(spec), boolToInt(factor.Enabled), now, now,
	)
	return err
}

// GetScoringFactor retrieves a scoring factor by ID with tenant isolation.
func (r *SQLRepository) GetScoringFactor(ctx context.Context, tenantID string, id string) (*domain.ScoringFactorConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, factor_key, name, category, max_points, weight,
			   calculation_type, spec, enabled, created_at, updated_at
		FROM scoring_factors
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id)
	factor, err := scanScoringFactor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return factor, err
}

// ListScoringFactors retrieves factor configurations for a tenant.
func (r *SQLRepository) ListScoringFactors(ctx context.Context, tenantID string, onlyEnabled bool) ([]*domain.ScoringFactorConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, factor_key, name, category, max_points, weight,
			   calculation_type, spec, enabled, created_at, updated_at
		FROM scoring_factors
		WHERE tenant_id = ?` + enabledClause(onlyEnabled) + `
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []*domain.ScoringFactorConfig
	for rows.Next() {
		factor, err := scanScoringFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, factor)
	}
	return factors, rows.Err()
}

// DeleteScoringFactor removes a factor configuration.
func (r *SQLRepository) DeleteScoringFactor(ctx context.Context, tenantID string, id string) error {
	return r.deleteRow(ctx, "scoring_factors", tenantID, id)
}

// SaveScoreRange upserts a score range configuration.
func (r *SQLRepository) SaveScoreRange(ctx context.Context, tenantID string, rng *domain.ScoreRangeConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO score_ranges (
			id, tenant_id, name, description, color, min_score, max_score,
			approval_status, risk_level, rate_adjustment, limit_adjustment,
			priority, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			color = excluded.color,
			min_score = excluded.min_score,
			max_score = excluded.max_score,
			approval_status = excluded.approval_status,
			risk_level = excluded.risk_level,
			rate_adjustment = excluded.rate_adjustment,
			limit_adjustment = excluded.limit_adjustment,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	var maxScore any
	if rng.MaxScore != nil {
		maxScore = *rng.MaxScore
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rng.ID, tenantID, rng.Name, rng.Description, rng.Color,
		rng.MinScore, maxScore, rng.ApprovalStatus, rng.RiskLevel,
		rng.InterestRateAdjustment, rng.LoanLimitAdjustment,
		rng.Priority, boolToInt(rng.Enabled), now, now,
	)
	return err
}

// GetScoreRange retrieves a score range by ID with tenant isolation.
func (r *SQLRepository) GetScoreRange(ctx context.Context, tenantID string, id string) (*domain.ScoreRangeConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, color, min_score, max_score,
			   approval_status, risk_level, rate_adjustment, limit_adjustment,
			   priority, enabled, created_at, updated_at
		FROM score_ranges
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id)
	rng, err := scanScoreRange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rng, err
}

// ListScoreRanges retrieves range configurations for a tenant.
func (r *SQLRepository) ListScoreRanges(ctx context.Context, tenantID string, onlyEnabled bool) ([]*domain.ScoreRangeConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, color, min_score, max_score,
			   approval_status, risk_level, rate_adjustment, limit_adjustment,
			   priority, enabled, created_at, updated_at
		FROM score_ranges
		WHERE tenant_id = ?` + enabledClause(onlyEnabled) + `
		ORDER BY min_score
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []*domain.ScoreRangeConfig
	for rows.Next() {
		rng, err := scanScoreRange(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, rng)
	}
	return ranges, rows.Err()
}

// DeleteScoreRange removes a range configuration.
func (r *SQLRepository) DeleteScoreRange(ctx context.Context, tenantID string, id string) error {
	return r.deleteRow(ctx, "score_ranges", tenantID, id)
}

// SetScoreRangeEnabled toggles a range's active flag.
func (r *SQLRepository) SetScoreRangeEnabled(ctx context.Context, tenantID string, id string, enabled bool) error {
	return r.setEnabled(ctx, "score_ranges", tenantID, id, enabled)
}

// SaveRule upserts a rule configuration.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	condition, _ := json.Marshal(rule.Condition)
	action, _ := json.Marshal(rule.Action)
	now := time.Now().UTC()

	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO rules (
			id, tenant_id, name, description, type, category, condition,
			action, priority, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			category = excluded.category,
			condition = excluded.condition,
			action = excluded.action,
			priority = excluded.priority,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, string(rule.Type),
		rule.Category, string(condition), string(action),
		rule.Priority, rule.Weight, boolToInt(rule.Enabled), createdAt, now,
	)
	return err
}

// GetRule retrieves a rule by ID with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, id string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, type, category, condition,
			   action, priority, weight, enabled, created_at, updated_at
		FROM rules
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves rule configurations for a tenant, ordered by
// descending priority with creation time as the tie-break.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string, onlyEnabled bool) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, type, category, condition,
			   action, priority, weight, enabled, created_at, updated_at
		FROM rules
		WHERE tenant_id = ?` + enabledClause(onlyEnabled) + `
		ORDER BY priority DESC, created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule unless execution audit records still reference
// it. Dependent records must be removed first.
func (r *SQLRepository) DeleteRule(ctx context.Context, tenantID string, id string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var refs int64
	countQuery := `SELECT COUNT(*) FROM rule_executions WHERE tenant_id = ? AND rule_id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(countQuery), tenantID, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: rule %s has %d execution records", ErrConstraint, id, refs)
	}

	return r.deleteRow(ctx, "rules", tenantID, id)
}

// SetRuleEnabled toggles a rule's active flag.
func (r *SQLRepository) SetRuleEnabled(ctx context.Context, tenantID string, id string, enabled bool) error {
	return r.setEnabled(ctx, "rules", tenantID, id, enabled)
}

// SaveDecision stores the audit copy of a decision. Append-only.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, d *domain.Decision) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	interpretation, _ := json.Marshal(d.Interpretation)
	factorResults, _ := json.Marshal(d.FactorResults)
	breakdown, _ := json.Marshal(d.Breakdown)
	ruleResults, _ := json.Marshal(d.RuleResults)
	flags, _ := json.Marshal(d.Flags)
	metadata, _ := json.Marshal(d.Metadata)

	query := `
		INSERT INTO decisions (
			id, tenant_id, final_score, base_score, max_score,
			approval_status, risk_level, interpretation, factor_results,
			breakdown, rule_results, score_adjustment, limit_adjustment,
			status_override, flags, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.FinalScore, d.BaseScore, d.MaxScore,
		d.ApprovalStatus, d.RiskLevel, string(interpretation),
		string(factorResults), string(breakdown), string(ruleResults),
		d.ScoreAdjustment, d.LimitAdjustment, d.StatusOverride,
		string(flags), d.Timestamp, string(metadata),
	)
	return err
}

// GetDecision retrieves a persisted decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, id string) (*domain.Decision, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, final_score, base_score, max_score,
			   approval_status, risk_level, interpretation, factor_results,
			   breakdown, rule_results, score_adjustment, limit_adjustment,
			   status_override, flags, timestamp, metadata
		FROM decisions
		WHERE tenant_id = ? AND id = ?
	`

	var d domain.Decision
	var interpretation, factorResults, breakdown, ruleResults, metadata string
	var statusOverride, flags sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&d.ID, &d.TenantID, &d.FinalScore, &d.BaseScore, &d.MaxScore,
		&d.ApprovalStatus, &d.RiskLevel, &interpretation, &factorResults,
		&breakdown, &ruleResults, &d.ScoreAdjustment, &d.LimitAdjustment,
		&statusOverride, &flags, &d.Timestamp, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.StatusOverride = statusOverride.String
	json.Unmarshal([]byte(interpretation), &d.Interpretation)
	json.Unmarshal([]byte(factorResults), &d.FactorResults)
	json.Unmarshal([]byte(breakdown), &d.Breakdown)
	json.Unmarshal([]byte(ruleResults), &d.RuleResults)
	json.Unmarshal([]byte(metadata), &d.Metadata)
	if flags.Valid {
		json.Unmarshal([]byte(flags.String), &d.Flags)
	}

	return &d, nil
}

// AppendRuleExecutions stores execution audit records. Append-only; rows
// are never updated.
func (r *SQLRepository) AppendRuleExecutions(ctx context.Context, tenantID string, records []*domain.RuleExecutionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO rule_executions (
			id, tenant_id, decision_id, rule_id, triggered, result,
			score_adjustment, status_override, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, r.rebind(query),
			rec.ID, tenantID, rec.DecisionID, rec.RuleID,
			boolToInt(rec.Triggered), rec.Result,
			rec.ScoreAdjustment, rec.StatusOverride, rec.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRuleExecutions retrieves the audit records for one decision.
func (r *SQLRepository) ListRuleExecutions(ctx context.Context, tenantID string, decisionID string) ([]*domain.RuleExecutionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, decision_id, rule_id, triggered, result,
			   score_adjustment, status_override, created_at
		FROM rule_executions
		WHERE tenant_id = ? AND decision_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.RuleExecutionRecord
	for rows.Next() {
		var rec domain.RuleExecutionRecord
		var triggered int
		var statusOverride sql.NullString

		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.DecisionID, &rec.RuleID,
			&triggered, &rec.Result, &rec.ScoreAdjustment,
			&statusOverride, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		rec.Triggered = triggered == 1
		rec.StatusOverride = statusOverride.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScoringFactor(row rowScanner) (*domain.ScoringFactorConfig, error) {
	var f domain.ScoringFactorConfig
	var calcType, spec string
	var enabled int

	err := row.Scan(
		&f.ID, &f.TenantID, &f.FactorKey, &f.Name, &f.Category,
		&f.MaxPoints, &f.Weight, &calcType, &spec, &enabled,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.CalculationType = domain.CalculationType(calcType)
	f.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(spec), &f.Spec); err != nil {
		return nil, fmt.Errorf("failed to parse factor spec for %s: %w", f.ID, err)
	}
	return &f, nil
}

func scanScoreRange(row rowScanner) (*domain.ScoreRangeConfig, error) {
	var rng domain.ScoreRangeConfig
	var description, color sql.NullString
	var maxScore sql.NullFloat64
	var enabled int

	err := row.Scan(
		&rng.ID, &rng.TenantID, &rng.Name, &description, &color,
		&rng.MinScore, &maxScore, &rng.ApprovalStatus, &rng.RiskLevel,
		&rng.InterestRateAdjustment, &rng.LoanLimitAdjustment,
		&rng.Priority, &enabled, &rng.CreatedAt, &rng.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rng.Description = description.String
	rng.Color = color.String
	if maxScore.Valid {
		v := maxScore.Float64
		rng.MaxScore = &v
	}
	rng.Enabled = enabled == 1
	return &rng, nil
}

func scanRule(row rowScanner) (*domain.RuleConfig, error) {
	var rule domain.RuleConfig
	var description, category sql.NullString
	var ruleType, condition, action string
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &ruleType,
		&category, &condition, &action, &rule.Priority, &rule.Weight,
		&enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Category = category.String
	rule.Type = domain.RuleType(ruleType)
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(condition), &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to parse condition for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(action), &rule.Action); err != nil {
		return nil, fmt.Errorf("failed to parse action for rule %s: %w", rule.ID, err)
	}
	return &rule, nil
}

func (r *SQLRepository) deleteRow(ctx context.Context, table, tenantID, id string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `DELETE FROM ` + table + ` WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) setEnabled(ctx context.Context, table, tenantID, id string, enabled bool) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE ` + table + ` SET enabled = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), boolToInt(enabled), time.Now().UTC(), tenantID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func enabledClause(onlyEnabled bool) string {
	if onlyEnabled {
		return ` AND enabled = 1`
	}
	return ``
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
