package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Run is one recorded enrichment, match or posts run.
type Run struct {
	ID             string
	Kind           string
	Topic          string
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalInput     int
	TotalProcessed int
	TotalRetained  int
	Excluded       int
	Scraped        int
	ScrapeFailed   int
	CacheHits      int
	Unscored       int
	ReportMarkdown string
}

// InsertRun records a finished run.
func (db *DB) InsertRun(ctx context.Context, r Run) error {
	_, err := db.conn.ExecContext(ctx, `
INSERT INTO enrichment_runs
    (id, kind, topic, started_at, finished_at, total_input, total_processed, total_retained,
     excluded, scraped, scrape_failed, cache_hits, unscored, report_markdown)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Topic, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.TotalInput, r.TotalProcessed, r.TotalRetained,
		r.Excluded, r.Scraped, r.ScrapeFailed, r.CacheHits, r.Unscored, r.ReportMarkdown,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	db.logger.Debug("run recorded", zap.String("id", r.ID), zap.String("kind", r.Kind))
	return nil
}

const runColumns = `id, kind, topic, started_at, finished_at, total_input, total_processed, total_retained,
    excluded, scraped, scrape_failed, cache_hits, unscored, report_markdown`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	err := s.Scan(&r.ID, &r.Kind, &r.Topic, &started, &finished,
		&r.TotalInput, &r.TotalProcessed, &r.TotalRetained,
		&r.Excluded, &r.Scraped, &r.ScrapeFailed, &r.CacheHits, &r.Unscored, &r.ReportMarkdown)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+runColumns+" FROM enrichment_runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM enrichment_runs ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of recorded runs.
func (db *DB) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM enrichment_runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}
