package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/cache/postgres"
	"github.com/TobiSchelling/leadscout/internal/cache/redisstore"
	"github.com/TobiSchelling/leadscout/internal/database"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/llm"
	"github.com/TobiSchelling/leadscout/internal/oracle"
	"github.com/TobiSchelling/leadscout/internal/ratelimit"
)

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(filepath.Join(dataDir, "leadscout.db"), logger)
}

// openCache builds the configured cache backend. The sqlite backend shares
// db with the run history.
func openCache(ctx context.Context, db *database.DB) (*cache.ResultCache, error) {
	var store cache.Store
	switch strings.ToLower(cfg.Cache.Backend) {
	case "postgres":
		s, err := postgres.New(ctx, cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store = s
	case "redis":
		s, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: os.Getenv("LEADSCOUT_REDIS_PASSWORD"),
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.PruneHorizon,
		})
		if err != nil {
			return nil, err
		}
		store = s
	case "memory":
		store = cache.NewMemoryStore()
	default:
		store = db.AnalysisCache()
	}
	return cache.New(store, cfg.Cache.Freshness, logger), nil
}

func newFetcher() (*fetch.Fetcher, error) {
	profile, err := fetch.ParseProfile(cfg.Fetch.TLSProfile)
	if err != nil {
		return nil, err
	}
	return fetch.New(fetch.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Profile:      profile,
		UserAgents:   cfg.Fetch.UserAgents,
		Logger:       logger,
	})
}

func newOracle(ctx context.Context) *oracle.Oracle {
	provider := llm.CreateProvider(ctx, cfg.Scoring, logger)
	return oracle.New(provider, oracle.Options{
		Pacer:         ratelimit.NewPacer(cfg.Enrichment.CallInterval, 1),
		MaxTokens:     cfg.Scoring.MaxTokens,
		PostChunkSize: cfg.Posts.ChunkSize,
		Logger:        logger,
	})
}

// readLeads loads and validates a JSON lead file. "-" reads stdin.
func readLeads(path string) ([]lead.Lead, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading leads: %w", err)
	}
	if err := lead.Validate(data); err != nil {
		return nil, err
	}
	return lead.Decode(data)
}
