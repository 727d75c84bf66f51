package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AnalysisCache exposes the analysis_cache table as a cache.Store. Closing
// it leaves the DB open.
type AnalysisCache struct {
	db *DB
}

var _ cache.Store = (*AnalysisCache)(nil)

// AnalysisCache returns the cache.Store view of db.
func (db *DB) AnalysisCache() *AnalysisCache {
	return &AnalysisCache{db: db}
}

func (c *AnalysisCache) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	e := cache.Entry{Key: key}
	var (
		verdict            sql.NullString
		match              string
		analyzed, accessed string
	)
	err := c.db.conn.QueryRowContext(ctx, `
SELECT verdict, topic_match, digest, content_hash, analyzed_at, hit_count, last_accessed_at
FROM analysis_cache WHERE domain = ? AND topic = ? AND mode = ?`,
		key.Domain, key.Topic, string(key.Mode),
	).Scan(&verdict, &match, &e.Digest, &e.ContentHash, &analyzed, &e.HitCount, &accessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	if e.Verdict, err = cache.DecodeVerdict(verdict.String); err != nil {
		return nil, err
	}
	if e.Match, err = oracle.ParseTopicMatch(match); err != nil {
		return nil, err
	}
	e.AnalyzedAt = parseTime(analyzed)
	e.LastAccessedAt = parseTime(accessed)
	return &e, nil
}

func (c *AnalysisCache) Upsert(ctx context.Context, e cache.Entry) error {
	encoded, err := cache.EncodeVerdict(e.Verdict)
	if err != nil {
		return err
	}
	verdict := sql.NullString{String: encoded, Valid: encoded != ""}
	lastAccessed := e.LastAccessedAt
	if lastAccessed.IsZero() {
		lastAccessed = e.AnalyzedAt
	}

	_, err = c.db.conn.ExecContext(ctx, `
INSERT INTO analysis_cache
    (domain, topic, mode, verdict, topic_match, digest, content_hash, analyzed_at, hit_count, last_accessed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT(domain, topic, mode) DO UPDATE SET
    verdict = excluded.verdict,
    topic_match = excluded.topic_match,
    digest = excluded.digest,
    content_hash = excluded.content_hash,
    analyzed_at = excluded.analyzed_at,
    last_accessed_at = excluded.last_accessed_at,
    hit_count = analysis_cache.hit_count + 1`,
		e.Key.Domain, e.Key.Topic, string(e.Key.Mode), verdict, e.Match.String(),
		e.Digest, e.ContentHash, formatTime(e.AnalyzedAt), formatTime(lastAccessed),
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.Key, err)
	}
	return nil
}

func (c *AnalysisCache) Touch(ctx context.Context, key cache.Key, at time.Time) error {
	_, err := c.db.conn.ExecContext(ctx, `
UPDATE analysis_cache SET last_accessed_at = ?
WHERE domain = ? AND topic = ? AND mode = ?`,
		formatTime(at), key.Domain, key.Topic, string(key.Mode),
	)
	if err != nil {
		return fmt.Errorf("touching %s: %w", key, err)
	}
	return nil
}

func (c *AnalysisCache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.conn.ExecContext(ctx, "DELETE FROM analysis_cache WHERE analyzed_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning analysis cache: %w", err)
	}
	return res.RowsAffected()
}

func (c *AnalysisCache) Stats(ctx context.Context) (cache.Stats, error) {
	var (
		st             cache.Stats
		oldest, newest sql.NullString
	)
	err := c.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(analyzed_at), MAX(analyzed_at) FROM analysis_cache",
	).Scan(&st.Entries, &oldest, &newest)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	st.Oldest = parseTime(oldest.String)
	st.Newest = parseTime(newest.String)
	return st, nil
}

// Close is a no-op; the owner of the DB closes it.
func (c *AnalysisCache) Close() error { return nil }
