package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaScoringFactors = `
CREATE TABLE IF NOT EXISTS scoring_factors (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    factor_key TEXT NOT NULL,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    max_points REAL NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    calculation_type TEXT NOT NULL,
    spec TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_scoring_factors_tenant ON scoring_factors(tenant_id);
CREATE INDEX IF NOT EXISTS idx_scoring_factors_enabled ON scoring_factors(tenant_id, enabled);
`

const schemaScoreRanges = `
CREATE TABLE IF NOT EXISTS score_ranges (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    color TEXT,
    min_score REAL NOT NULL,
    max_score REAL,
    approval_status TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    rate_adjustment REAL NOT NULL DEFAULT 0,
    limit_adjustment REAL NOT NULL DEFAULT 1.0,
    priority INTEGER NOT NULL DEFAULT 5,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_score_ranges_tenant ON score_ranges(tenant_id);
CREATE INDEX IF NOT EXISTS idx_score_ranges_enabled ON score_ranges(tenant_id, enabled);
`

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    type TEXT NOT NULL,
    category TEXT,
    condition TEXT NOT NULL,
    action TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 5,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rules_tenant ON rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rules(tenant_id, enabled);
CREATE INDEX IF NOT EXISTS idx_rules_priority ON rules(tenant_id, priority);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    final_score REAL NOT NULL,
    base_score REAL NOT NULL,
    max_score REAL NOT NULL,
    approval_status TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    interpretation TEXT NOT NULL,
    factor_results TEXT NOT NULL,
    breakdown TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    score_adjustment REAL NOT NULL DEFAULT 0,
    limit_adjustment REAL NOT NULL DEFAULT 0,
    status_override TEXT,
    flags TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(tenant_id, approval_status);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(tenant_id, timestamp);
`

// rule_executions is append-only: rows are inserted once and never updated.
const schemaRuleExecutions = `
CREATE TABLE IF NOT EXISTS rule_executions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    decision_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    triggered INTEGER NOT NULL,
    result TEXT NOT NULL,
    score_adjustment REAL NOT NULL DEFAULT 0,
    status_override TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_executions_tenant ON rule_executions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_executions_decision ON rule_executions(tenant_id, decision_id);
CREATE INDEX IF NOT EXISTS idx_rule_executions_rule ON rule_executions(tenant_id, rule_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaScoringFactors,
		schemaScoreRanges,
		schemaRules,
		schemaDecisions,
		schemaRuleExecutions,
	}
}
