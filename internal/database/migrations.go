package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "analysis cache",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS analysis_cache (
    domain TEXT NOT NULL,
    topic TEXT NOT NULL,
    mode TEXT NOT NULL CHECK(mode IN ('graded', 'binary')),
    verdict TEXT,
    topic_match TEXT NOT NULL DEFAULT 'unknown',
    digest TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    analyzed_at TEXT NOT NULL,
    hit_count INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TEXT NOT NULL,
    PRIMARY KEY (domain, topic, mode)
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_analyzed ON analysis_cache(analyzed_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "enrichment run history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS enrichment_runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL DEFAULT 'enrich',
    topic TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    total_input INTEGER NOT NULL DEFAULT 0,
    total_processed INTEGER NOT NULL DEFAULT 0,
    total_retained INTEGER NOT NULL DEFAULT 0,
    excluded INTEGER NOT NULL DEFAULT 0,
    scraped INTEGER NOT NULL DEFAULT 0,
    scrape_failed INTEGER NOT NULL DEFAULT 0,
    cache_hits INTEGER NOT NULL DEFAULT 0,
    unscored INTEGER NOT NULL DEFAULT 0,
    report_markdown TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_enrichment_runs_started ON enrichment_runs(started_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
