package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 2

// Schema contains the SQL statements to create the canary database schema.
// Timestamps are stored as Unix nanoseconds so both SQLite drivers round-trip
// them identically.
const Schema = `
CREATE TABLE IF NOT EXISTS prompt_versions (
    id TEXT PRIMARY KEY,
    prompt_id TEXT NOT NULL,
    number INTEGER NOT NULL,
    text TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS releases (
    id TEXT PRIMARY KEY,
    prompt_id TEXT NOT NULL UNIQUE,
    active_version_id TEXT NOT NULL,
    canary_version_id TEXT,
    canary_percent INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    cycle_started_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);

-- Evaluation records are write-once
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    release_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    is_canary INTEGER NOT NULL,
    composite_score REAL NOT NULL,
    category_scores TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transition_events (
    id TEXT PRIMARY KEY,
    release_id TEXT NOT NULL,
    prompt_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    state TEXT NOT NULL,
    from_version_id TEXT,
    to_version_id TEXT,
    percent INTEGER NOT NULL DEFAULT 0,
    trigger_kind TEXT NOT NULL,
    recommendation TEXT,
    reason TEXT,
    canary_mean REAL NOT NULL DEFAULT 0,
    active_mean REAL NOT NULL DEFAULT 0,
    occurred_at INTEGER NOT NULL
);

-- Welford state per (release, version); survives evaluation pruning
CREATE TABLE IF NOT EXISTS bucket_stats (
    release_id TEXT NOT NULL,
    version_id TEXT NOT NULL,
    since INTEGER NOT NULL DEFAULT 0,
    count INTEGER NOT NULL,
    mean REAL NOT NULL,
    m2 REAL NOT NULL,
    last_updated INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (release_id, version_id)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_prompt ON prompt_versions(prompt_id, number);
CREATE INDEX IF NOT EXISTS idx_evaluations_release_time ON evaluations(release_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_time ON evaluations(recorded_at);
CREATE INDEX IF NOT EXISTS idx_events_release_time ON transition_events(release_id, occurred_at);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
