// Package redisstore keeps cache entries in Redis hashes.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const keyPrefix = "leadscout:cache:"

// touchScript updates last_accessed_at only on an existing hash, so a touch
// racing a prune never leaves a partial entry behind. ARGV[2] is the TTL in
// milliseconds, 0 for none.
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "last_accessed_at", ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

// Store is a cache.Store backed by one Redis hash per key.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ cache.Store = (*Store)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL expires untouched entries; zero keeps them until pruned.
	TTL time.Duration
}

// New connects and pings Redis.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Store{client: client, ttl: opts.TTL}, nil
}

func redisKey(k cache.Key) string {
	return keyPrefix + k.String()
}

func (s *Store) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeEntry(key, fields)
}

// Upsert writes all analysis fields and increments hit_count in one
// MULTI/EXEC so concurrent writers never lose an increment.
func (s *Store) Upsert(ctx context.Context, e cache.Entry) error {
	verdict, err := cache.EncodeVerdict(e.Verdict)
	if err != nil {
		return err
	}
	k := redisKey(e.Key)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, map[string]any{
			"domain":           e.Key.Domain,
			"topic":            e.Key.Topic,
			"mode":             string(e.Key.Mode),
			"verdict":          verdict,
			"match":            e.Match.String(),
			"digest":           e.Digest,
			"content_hash":     e.ContentHash,
			"analyzed_at":      strconv.FormatInt(e.AnalyzedAt.UnixNano(), 10),
			"last_accessed_at": strconv.FormatInt(e.LastAccessedAt.UnixNano(), 10),
		})
		pipe.HIncrBy(ctx, k, "hit_count", 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", e.Key, err)
	}
	return nil
}

// Touch refreshes last_accessed_at and, with a TTL configured, the expiry.
func (s *Store) Touch(ctx context.Context, key cache.Key, at time.Time) error {
	err := touchScript.Run(ctx, s.client, []string{redisKey(key)},
		strconv.FormatInt(at.UnixNano(), 10), s.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("touching %s: %w", key, err)
	}
	return nil
}

// Prune scans every cache hash and deletes those analyzed before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.scan(ctx, func(k string, analyzedAt time.Time) error {
		if !analyzedAt.Before(cutoff) {
			return nil
		}
		n, err := s.client.Del(ctx, k).Result()
		deleted += n
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("pruning: %w", err)
	}
	return deleted, nil
}

func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	var st cache.Stats
	err := s.scan(ctx, func(_ string, analyzedAt time.Time) error {
		st.Entries++
		if st.Oldest.IsZero() || analyzedAt.Before(st.Oldest) {
			st.Oldest = analyzedAt
		}
		if analyzedAt.After(st.Newest) {
			st.Newest = analyzedAt
		}
		return nil
	})
	if err != nil {
		return cache.Stats{}, fmt.Errorf("collecting stats: %w", err)
	}
	return st, nil
}

func (s *Store) scan(ctx context.Context, fn func(key string, analyzedAt time.Time) error) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		raw, err := s.client.HGet(ctx, k, "analyzed_at").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(k, parseNanos(raw)); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decodeEntry(key cache.Key, f map[string]string) (*cache.Entry, error) {
	verdict, err := cache.DecodeVerdict(f["verdict"])
	if err != nil {
		return nil, err
	}
	match, err := oracle.ParseTopicMatch(f["match"])
	if err != nil {
		return nil, err
	}
	hits, _ := strconv.ParseInt(f["hit_count"], 10, 64)
	return &cache.Entry{
		Key:            key,
		Verdict:        verdict,
		Match:          match,
		Digest:         f["digest"],
		ContentHash:    f["content_hash"],
		AnalyzedAt:     parseNanos(f["analyzed_at"]),
		HitCount:       hits,
		LastAccessedAt: parseNanos(f["last_accessed_at"]),
	}, nil
}

func parseNanos(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
