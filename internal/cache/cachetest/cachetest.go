// Package cachetest holds the behavioural checks every cache.Store must pass.
package cachetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

// Run exercises store, which must start empty.
func Run(t *testing.T, store cache.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	relevant := true

	graded := cache.Key{Domain: "acme.io", Topic: "cloud infrastructure", Mode: cache.ModeGraded}
	binary := cache.Key{Domain: "acme.io", Topic: "cloud infrastructure", Mode: cache.ModeBinary}

	t.Run("missing key", func(t *testing.T) {
		e, err := store.Get(ctx, graded)
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("upsert then get", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, cache.Entry{
			Key: graded,
			Verdict: &oracle.Verdict{
				IsRelevant: &relevant,
				Confidence: 80,
				Score:      8.5,
				Reasoning:  "Kubernetes hosting",
				KeyMatches: []string{"Kubernetes", "AWS"},
			},
			Digest:         "Acme Cloud",
			ContentHash:    cache.HashDigest("Acme Cloud"),
			AnalyzedAt:     now,
			LastAccessedAt: now,
		}))

		e, err := store.Get(ctx, graded)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, graded, e.Key)
		require.NotNil(t, e.Verdict)
		require.NotNil(t, e.Verdict.IsRelevant)
		assert.True(t, *e.Verdict.IsRelevant)
		assert.Equal(t, 8.5, e.Verdict.Score)
		assert.Equal(t, []string{"Kubernetes", "AWS"}, e.Verdict.KeyMatches)
		assert.Equal(t, "Acme Cloud", e.Digest)
		assert.Equal(t, cache.HashDigest("Acme Cloud"), e.ContentHash)
		assert.WithinDuration(t, now, e.AnalyzedAt, time.Millisecond)
		assert.Equal(t, int64(1), e.HitCount)
	})

	t.Run("touch", func(t *testing.T) {
		touched := now.Add(30 * time.Second)
		require.NoError(t, store.Touch(ctx, graded, touched))

		e, err := store.Get(ctx, graded)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.WithinDuration(t, touched, e.LastAccessedAt, time.Millisecond)
		assert.WithinDuration(t, now, e.AnalyzedAt, time.Millisecond, "touch keeps the analysis time")
		assert.Equal(t, int64(1), e.HitCount, "touch is not an upsert")

		missing := cache.Key{Domain: "nobody.example", Topic: "cloud", Mode: cache.ModeGraded}
		require.NoError(t, store.Touch(ctx, missing, touched))
		e, err = store.Get(ctx, missing)
		require.NoError(t, err)
		assert.Nil(t, e, "touch never creates entries")
	})

	t.Run("modes are separate", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, cache.Entry{Key: binary, Match: oracle.MatchYes, AnalyzedAt: now}))

		b, err := store.Get(ctx, binary)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, oracle.MatchYes, b.Match)
		assert.Nil(t, b.Verdict)

		g, err := store.Get(ctx, graded)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.NotNil(t, g.Verdict, "binary upsert must not touch the graded entry")
	})

	t.Run("upsert overwrites and counts", func(t *testing.T) {
		later := now.Add(time.Minute)
		require.NoError(t, store.Upsert(ctx, cache.Entry{
			Key:        graded,
			Verdict:    &oracle.Verdict{Score: 2, Reasoning: "changed focus"},
			AnalyzedAt: later,
		}))

		e, err := store.Get(ctx, graded)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, 2.0, e.Verdict.Score)
		assert.Nil(t, e.Verdict.IsRelevant)
		assert.Empty(t, e.Verdict.KeyMatches, "upsert replaces, never merges")
		assert.Empty(t, e.Digest)
		assert.WithinDuration(t, later, e.AnalyzedAt, time.Millisecond)
		assert.Equal(t, int64(2), e.HitCount)
	})

	t.Run("concurrent upserts keep every increment", func(t *testing.T) {
		key := cache.Key{Domain: "busy.example", Topic: "cloud", Mode: cache.ModeBinary}
		const writers = 20

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Upsert(ctx, cache.Entry{Key: key, Match: oracle.MatchNo, AnalyzedAt: now}))
			}()
		}
		wg.Wait()

		e, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, int64(writers), e.HitCount)
	})

	t.Run("stats", func(t *testing.T) {
		s, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.Entries)
		assert.False(t, s.Oldest.After(s.Newest))
	})

	t.Run("prune", func(t *testing.T) {
		old := cache.Key{Domain: "old.example", Topic: "cloud", Mode: cache.ModeGraded}
		require.NoError(t, store.Upsert(ctx, cache.Entry{
			Key:        old,
			Verdict:    &oracle.Verdict{Score: 5},
			AnalyzedAt: now.Add(-40 * 24 * time.Hour),
		}))

		n, err := store.Prune(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		e, err := store.Get(ctx, old)
		require.NoError(t, err)
		assert.Nil(t, e)

		e, err = store.Get(ctx, graded)
		require.NoError(t, err)
		assert.NotNil(t, e)
	})
}
