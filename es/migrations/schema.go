package migrations

import "text/template"

// Statements are separated by semicolons, so comments must not contain any.
var schemas = map[Dialect]*template.Template{
	Postgres: template.Must(template.New("postgres").Parse(postgresSchema)),
	SQLite:   template.Must(template.New("sqlite").Parse(sqliteSchema)),
	MySQL:    template.Must(template.New("mysql").Parse(mysqlSchema)),
}

const postgresSchema = `
-- Append-only event log. global_position orders the change feed.
CREATE TABLE IF NOT EXISTS {{.EventsTable}} (
    global_position BIGSERIAL PRIMARY KEY,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    aggregate_version BIGINT NOT NULL,
    event_id UUID NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    event_version INT NOT NULL DEFAULT 1,
    payload BYTEA NOT NULL,
    trace_id TEXT,
    correlation_id TEXT,
    causation_id TEXT,
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (aggregate_type, aggregate_id, aggregate_version)
);

CREATE INDEX IF NOT EXISTS idx_{{.EventsTable}}_event_type
    ON {{.EventsTable}} (event_type, global_position);

-- Current version per stream, for O(1) version checks on append.
CREATE TABLE IF NOT EXISTS {{.AggregateHeadsTable}} (
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    aggregate_version BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (aggregate_type, aggregate_id)
);

-- Last delivered global position per subscription.
CREATE TABLE IF NOT EXISTS {{.CheckpointsTable}} (
    subscription_name TEXT PRIMARY KEY,
    last_global_position BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const sqliteSchema = `
-- Append-only event log. global_position orders the change feed.
CREATE TABLE IF NOT EXISTS {{.EventsTable}} (
    global_position INTEGER PRIMARY KEY AUTOINCREMENT,
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    aggregate_version INTEGER NOT NULL,
    event_id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    event_version INTEGER NOT NULL DEFAULT 1,
    payload BLOB NOT NULL,
    trace_id TEXT,
    correlation_id TEXT,
    causation_id TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (aggregate_type, aggregate_id, aggregate_version)
);

CREATE INDEX IF NOT EXISTS idx_{{.EventsTable}}_event_type
    ON {{.EventsTable}} (event_type, global_position);

-- Current version per stream, for O(1) version checks on append.
CREATE TABLE IF NOT EXISTS {{.AggregateHeadsTable}} (
    aggregate_type TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    aggregate_version INTEGER NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (aggregate_type, aggregate_id)
);

-- Last delivered global position per subscription.
CREATE TABLE IF NOT EXISTS {{.CheckpointsTable}} (
    subscription_name TEXT PRIMARY KEY,
    last_global_position INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

const mysqlSchema = `
-- Append-only event log. global_position orders the change feed.
CREATE TABLE IF NOT EXISTS {{.EventsTable}} (
    global_position BIGINT AUTO_INCREMENT PRIMARY KEY,
    aggregate_type VARCHAR(255) NOT NULL,
    aggregate_id VARCHAR(255) NOT NULL,
    aggregate_version BIGINT NOT NULL,
    event_id CHAR(36) NOT NULL UNIQUE,
    event_type VARCHAR(255) NOT NULL,
    event_version INT NOT NULL DEFAULT 1,
    payload LONGBLOB NOT NULL,
    trace_id VARCHAR(255),
    correlation_id VARCHAR(255),
    causation_id VARCHAR(255),
    metadata JSON,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    UNIQUE KEY uq_{{.EventsTable}}_stream_version (aggregate_type, aggregate_id, aggregate_version),
    INDEX idx_{{.EventsTable}}_event_type (event_type, global_position)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Current version per stream, for O(1) version checks on append.
CREATE TABLE IF NOT EXISTS {{.AggregateHeadsTable}} (
    aggregate_type VARCHAR(255) NOT NULL,
    aggregate_id VARCHAR(255) NOT NULL,
    aggregate_version BIGINT NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
    PRIMARY KEY (aggregate_type, aggregate_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Last delivered global position per subscription.
CREATE TABLE IF NOT EXISTS {{.CheckpointsTable}} (
    subscription_name VARCHAR(255) PRIMARY KEY,
    last_global_position BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
