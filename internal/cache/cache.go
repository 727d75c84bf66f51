// Package cache memoizes website analyses per (domain, topic, mode).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/metrics"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const (
	DefaultFreshness    = 7 * 24 * time.Hour
	DefaultPruneHorizon = 30 * 24 * time.Hour
)

// Entry is one cached analysis.
type Entry struct {
	Key Key
	// Verdict is set for graded entries, Match for binary ones.
	Verdict *oracle.Verdict
	Match   oracle.TopicMatch
	// Digest is the page text the analysis was based on.
	Digest         string
	ContentHash    string
	AnalyzedAt     time.Time
	HitCount       int64
	LastAccessedAt time.Time
}

// Stats summarizes a store.
type Stats struct {
	Entries int64
	Oldest  time.Time
	Newest  time.Time
}

// Store persists entries. Get returns (nil, nil) for a missing key. Upsert
// replaces every analysis field of an existing entry and increments its
// HitCount without losing concurrent increments. Touch sets LastAccessedAt
// of an existing entry and ignores missing keys. Prune deletes entries
// analyzed before cutoff.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Touch(ctx context.Context, key Key, at time.Time) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// HashDigest returns the hex sha256 of a digest.
func HashDigest(digest string) string {
	sum := sha256.Sum256([]byte(digest))
	return hex.EncodeToString(sum[:])
}

// ResultCache applies the freshness policy on top of a Store. Store failures
// are logged and treated as misses. A nil *ResultCache is a disabled cache.
type ResultCache struct {
	store     Store
	freshness time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New wraps store. A freshness <= 0 selects DefaultFreshness.
func New(store Store, freshness time.Duration, logger *zap.Logger) *ResultCache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{store: store, freshness: freshness, logger: logger, now: time.Now}
}

// Lookup returns the entry for key when it was analyzed within the
// freshness window. A hit refreshes the entry's LastAccessedAt.
func (c *ResultCache) Lookup(ctx context.Context, key Key) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup(string(key.Mode), "error")
		c.logger.Warn("cache lookup failed", zap.Stringer("key", key), zap.Error(err))
		return nil, false
	}
	if e == nil {
		metrics.RecordCacheLookup(string(key.Mode), "miss")
		return nil, false
	}
	now := c.now().UTC()
	if now.Sub(e.AnalyzedAt) > c.freshness {
		metrics.RecordCacheLookup(string(key.Mode), "stale")
		return nil, false
	}
	metrics.RecordCacheLookup(string(key.Mode), "hit")
	if err := c.store.Touch(ctx, key, now); err != nil {
		c.logger.Warn("cache touch failed", zap.Stringer("key", key), zap.Error(err))
	} else {
		e.LastAccessedAt = now
	}
	return e, true
}

// Put records an analysis, filling AnalyzedAt and ContentHash when unset.
func (c *ResultCache) Put(ctx context.Context, e Entry) {
	if c == nil {
		return
	}
	now := c.now().UTC()
	if e.AnalyzedAt.IsZero() {
		e.AnalyzedAt = now
	}
	e.LastAccessedAt = now
	if e.ContentHash == "" && e.Digest != "" {
		e.ContentHash = HashDigest(e.Digest)
	}
	if err := c.store.Upsert(ctx, e); err != nil {
		c.logger.Warn("cache upsert failed", zap.Stringer("key", e.Key), zap.Error(err))
	}
}

// Prune deletes entries older than horizon.
func (c *ResultCache) Prune(ctx context.Context, horizon time.Duration) (int64, error) {
	if c == nil {
		return 0, nil
	}
	if horizon <= 0 {
		horizon = DefaultPruneHorizon
	}
	n, err := c.store.Prune(ctx, c.now().Add(-horizon))
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	c.logger.Info("cache pruned", zap.Int64("deleted", n), zap.Duration("horizon", horizon))
	return n, nil
}

// Stats reports store statistics.
func (c *ResultCache) Stats(ctx context.Context) (Stats, error) {
	if c == nil {
		return Stats{}, nil
	}
	return c.store.Stats(ctx)
}

// Close closes the underlying store.
func (c *ResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}
