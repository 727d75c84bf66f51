// Package postgres keeps cache entries in a shared Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const table = "leadscout_analysis_cache"

const schema = `
CREATE TABLE IF NOT EXISTS leadscout_analysis_cache (
	domain TEXT NOT NULL,
	topic TEXT NOT NULL,
	mode TEXT NOT NULL,
	verdict JSONB,
	topic_match TEXT NOT NULL DEFAULT 'unknown',
	digest TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	analyzed_at TIMESTAMPTZ NOT NULL,
	hit_count BIGINT NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (domain, topic, mode)
);
CREATE INDEX IF NOT EXISTS idx_leadscout_analysis_cache_analyzed ON leadscout_analysis_cache (analyzed_at);
`

// ON CONFLICT replaces the analysis and bumps hit_count in the same row lock.
const upsertSuffix = `ON CONFLICT (domain, topic, mode) DO UPDATE SET
	verdict = EXCLUDED.verdict,
	topic_match = EXCLUDED.topic_match,
	digest = EXCLUDED.digest,
	content_hash = EXCLUDED.content_hash,
	analyzed_at = EXCLUDED.analyzed_at,
	last_accessed_at = EXCLUDED.last_accessed_at,
	hit_count = ` + table + `.hit_count + 1`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is a cache.Store backed by pgx.
type Store struct {
	pool *pgxpool.Pool
}

var _ cache.Store = (*Store)(nil)

// New connects to dsn and ensures the cache table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	query, args, err := psql.
		Select("verdict", "topic_match", "digest", "content_hash", "analyzed_at", "hit_count", "last_accessed_at").
		From(table).
		Where(sq.Eq{"domain": key.Domain, "topic": key.Topic, "mode": string(key.Mode)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	e := cache.Entry{Key: key}
	var (
		verdict []byte
		match   string
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(
		&verdict, &match, &e.Digest, &e.ContentHash, &e.AnalyzedAt, &e.HitCount, &e.LastAccessedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	if e.Verdict, err = cache.DecodeVerdict(string(verdict)); err != nil {
		return nil, err
	}
	if e.Match, err = oracle.ParseTopicMatch(match); err != nil {
		return nil, err
	}
	e.AnalyzedAt = e.AnalyzedAt.UTC()
	e.LastAccessedAt = e.LastAccessedAt.UTC()
	return &e, nil
}

func (s *Store) Upsert(ctx context.Context, e cache.Entry) error {
	encoded, err := cache.EncodeVerdict(e.Verdict)
	if err != nil {
		return err
	}
	var verdict []byte
	if encoded != "" {
		verdict = []byte(encoded)
	}
	lastAccessed := e.LastAccessedAt
	if lastAccessed.IsZero() {
		lastAccessed = e.AnalyzedAt
	}

	query, args, err := psql.
		Insert(table).
		Columns("domain", "topic", "mode", "verdict", "topic_match", "digest", "content_hash", "analyzed_at", "hit_count", "last_accessed_at").
		Values(e.Key.Domain, e.Key.Topic, string(e.Key.Mode), verdict, e.Match.String(), e.Digest, e.ContentHash, e.AnalyzedAt, 1, lastAccessed).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting %s: %w", e.Key, err)
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, key cache.Key, at time.Time) error {
	query, args, err := psql.
		Update(table).
		Set("last_accessed_at", at).
		Where(sq.Eq{"domain": key.Domain, "topic": key.Topic, "mode": string(key.Mode)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("touching %s: %w", key, err)
	}
	return nil
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.Delete(table).Where(sq.Lt{"analyzed_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	query, args, err := psql.Select("COUNT(*)", "MIN(analyzed_at)", "MAX(analyzed_at)").From(table).ToSql()
	if err != nil {
		return cache.Stats{}, fmt.Errorf("building stats query: %w", err)
	}

	var (
		st             cache.Stats
		oldest, newest *time.Time
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&st.Entries, &oldest, &newest); err != nil {
		return cache.Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	if oldest != nil {
		st.Oldest = oldest.UTC()
	}
	if newest != nil {
		st.Newest = newest.UTC()
	}
	return st, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
