package sqlite

import "github.com/steveyegge/rcagov/internal/storage/migrations"

const schemaTables = `
-- Root cause reports
CREATE TABLE IF NOT EXISTS root_cause_reports (
    id TEXT PRIMARY KEY,
    scope_type TEXT NOT NULL CHECK(scope_type IN ('PIPELINE', 'SUB_AGENT', 'RUNTIME', 'SD')),
    scope_id TEXT NOT NULL,
    trigger_source TEXT NOT NULL,
    trigger_tier INTEGER NOT NULL CHECK(trigger_tier >= 1 AND trigger_tier <= 4),
    trigger_code TEXT NOT NULL DEFAULT '',
    failure_signature TEXT NOT NULL,
    recurrence_count INTEGER NOT NULL DEFAULT 1 CHECK(recurrence_count >= 1),
    problem_statement TEXT NOT NULL,
    observed TEXT NOT NULL DEFAULT '{}',
    expected TEXT NOT NULL DEFAULT '{}',
    evidence TEXT NOT NULL DEFAULT '{}',
    impact_level TEXT NOT NULL CHECK(impact_level IN ('LOW', 'MEDIUM', 'HIGH', 'CRITICAL')),
    likelihood_level TEXT NOT NULL CHECK(likelihood_level IN ('RARE', 'OCCASIONAL', 'FREQUENT')),
    severity_priority TEXT NOT NULL CHECK(severity_priority IN ('P0', 'P1', 'P2', 'P3', 'P4')),
    confidence INTEGER NOT NULL CHECK(confidence >= 40 AND confidence <= 100),
    log_quality INTEGER NOT NULL DEFAULT 0,
    evidence_strength INTEGER NOT NULL DEFAULT 0,
    pattern_match_score INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'OPEN',
    root_cause_category TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL,
    first_occurrence_at DATETIME NOT NULL,
    resolved_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rcr_scope ON root_cause_reports(scope_id, status);
CREATE INDEX IF NOT EXISTS idx_rcr_signature ON root_cause_reports(failure_signature);
CREATE INDEX IF NOT EXISTS idx_rcr_detected_at ON root_cause_reports(detected_at);

-- At most one open report per signature
CREATE UNIQUE INDEX IF NOT EXISTS idx_rcr_open_signature
    ON root_cause_reports(failure_signature)
    WHERE status NOT IN ('RESOLVED', 'CLOSED_WONT_FIX');

-- Remediation manifests (CAPA)
CREATE TABLE IF NOT EXISTS remediation_manifests (
    id TEXT PRIMARY KEY,
    rcr_id TEXT NOT NULL,
    root_cause_category TEXT NOT NULL DEFAULT '',
    proposed_changes TEXT NOT NULL DEFAULT '{}',
    verification_plan TEXT NOT NULL DEFAULT '{}',
    risk_score INTEGER NOT NULL DEFAULT 0 CHECK(risk_score >= 0 AND risk_score <= 100),
    affected_sd_count INTEGER NOT NULL DEFAULT 1 CHECK(affected_sd_count >= 1),
    status TEXT NOT NULL DEFAULT 'PENDING',
    approved_at DATETIME,
    verified_at DATETIME,
    verification_notes TEXT NOT NULL DEFAULT '',
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    FOREIGN KEY (rcr_id) REFERENCES root_cause_reports(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_capa_rcr ON remediation_manifests(rcr_id);

-- At most one active CAPA per report
CREATE UNIQUE INDEX IF NOT EXISTS idx_capa_active_rcr
    ON remediation_manifests(rcr_id)
    WHERE status NOT IN ('REJECTED', 'ABANDONED');

-- Learning corpus
CREATE TABLE IF NOT EXISTS rca_learning_records (
    id TEXT PRIMARY KEY,
    rcr_id TEXT NOT NULL UNIQUE,
    features TEXT NOT NULL DEFAULT '{}',
    label TEXT NOT NULL,
    defect_class TEXT NOT NULL,
    preventable INTEGER NOT NULL DEFAULT 0,
    prevention_stage TEXT NOT NULL,
    prevention_reason TEXT NOT NULL DEFAULT '',
    time_to_detect_hours REAL NOT NULL DEFAULT 0,
    time_to_resolve_hours REAL NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    FOREIGN KEY (rcr_id) REFERENCES root_cause_reports(id) ON DELETE CASCADE
);

-- Events table (audit trail)
CREATE TABLE IF NOT EXISTS rca_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rca_events_entity ON rca_events(entity_id);
CREATE INDEX IF NOT EXISTS idx_rca_events_created_at ON rca_events(created_at);
`

const schemaViews = `
-- Summary view
CREATE VIEW IF NOT EXISTS v_rca_analytics AS
SELECT
    COUNT(*) AS total,
    COALESCE(SUM(CASE WHEN status NOT IN ('RESOLVED', 'CLOSED_WONT_FIX') THEN 1 ELSE 0 END), 0) AS open_count,
    COALESCE(SUM(CASE WHEN status = 'RESOLVED' THEN 1 ELSE 0 END), 0) AS resolved_count,
    COALESCE(SUM(CASE WHEN status = 'CLOSED_WONT_FIX' THEN 1 ELSE 0 END), 0) AS closed_wont_fix_count,
    COALESCE(SUM(CASE WHEN severity_priority = 'P0' AND status NOT IN ('RESOLVED', 'CLOSED_WONT_FIX') THEN 1 ELSE 0 END), 0) AS p0_open,
    COALESCE(SUM(CASE WHEN severity_priority = 'P1' AND status NOT IN ('RESOLVED', 'CLOSED_WONT_FIX') THEN 1 ELSE 0 END), 0) AS p1_open,
    CAST(COALESCE(AVG(confidence), 0) AS REAL) AS avg_confidence
FROM root_cause_reports;

-- Pattern recurrence view
CREATE VIEW IF NOT EXISTS v_rca_pattern_recurrence AS
SELECT
    failure_signature,
    MAX(scope_type) AS scope_type,
    COUNT(*) AS report_count,
    SUM(recurrence_count) AS occurrence_count,
    SUM(CASE WHEN status NOT IN ('RESOLVED', 'CLOSED_WONT_FIX') THEN 1 ELSE 0 END) AS open_count,
    MAX(detected_at) AS last_detected_at
FROM root_cause_reports
GROUP BY failure_signature;
`

const schemaAnalyses = `
-- Latest analysis per report
CREATE TABLE IF NOT EXISTS rca_analyses (
    rcr_id TEXT PRIMARY KEY,
    root_cause_category TEXT NOT NULL DEFAULT '',
    pattern_id TEXT NOT NULL DEFAULT '',
    pattern_matches TEXT NOT NULL DEFAULT '[]',
    contributing_factors TEXT NOT NULL DEFAULT '[]',
    recommendations TEXT NOT NULL DEFAULT '[]',
    related_rcr_ids TEXT NOT NULL DEFAULT '[]',
    attempts INTEGER NOT NULL DEFAULT 1 CHECK(attempts >= 1),
    analyzed_at DATETIME NOT NULL,
    FOREIGN KEY (rcr_id) REFERENCES root_cause_reports(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_rca_analyses_pattern ON rca_analyses(pattern_id);
`

// schemaMigrations builds the SQLite schema.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "Create reports, remediation manifests, learning records and events",
		Up:          schemaTables,
		Down: `
			DROP TABLE IF EXISTS rca_events;
			DROP TABLE IF EXISTS rca_learning_records;
			DROP TABLE IF EXISTS remediation_manifests;
			DROP TABLE IF EXISTS root_cause_reports;
		`,
	},
	{
		Version:     2,
		Description: "Create analytics and recurrence views",
		Up:          schemaViews,
		Down: `
			DROP VIEW IF EXISTS v_rca_pattern_recurrence;
			DROP VIEW IF EXISTS v_rca_analytics;
		`,
	},
	{
		Version:     3,
		Description: "Create report analyses",
		Up:          schemaAnalyses,
		Down:        `DROP TABLE IF EXISTS rca_analyses;`,
	},
}
