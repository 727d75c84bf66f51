package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err, "failed to parse default config")

	assert.Equal(t, "openai", cfg.Scoring.Provider)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(50*1024), cfg.Fetch.MaxBodyBytes)
	assert.Equal(t, 5, cfg.Fetch.Concurrency)
	assert.Equal(t, 50, cfg.Enrichment.MaxBatch)
	assert.Equal(t, 5.0, cfg.Enrichment.MinRelevanceScore)
	assert.Equal(t, 500*time.Millisecond, cfg.Enrichment.CallInterval)
	assert.Equal(t, 10, cfg.Matcher.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.Matcher.RequestTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.Freshness)
	assert.Equal(t, 20, cfg.Posts.ChunkSize)
	assert.NotEmpty(t, cfg.Posts.Feeds)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
scoring:
  provider: ollama
  model: llama3.1:8b
fetch:
  concurrency: 8
server:
  port: 9000
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Scoring.Provider)
	assert.Equal(t, "llama3.1:8b", cfg.Scoring.Model)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Defaults should still be set for unspecified fields
	assert.Equal(t, "http://localhost:11434", cfg.Scoring.OllamaURL)
	assert.Equal(t, time.Second, cfg.Fetch.BatchDelay)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
}

func TestParseRejectsInvalidSettings(t *testing.T) {
	_, err := parse([]byte("enrichment:\n  min_relevance_score: 11\n"))
	assert.Error(t, err)

	_, err = parse([]byte("cache:\n  backend: mongo\n"))
	assert.Error(t, err)

	_, err = parse([]byte("cache:\n  backend: postgres\n"))
	assert.Error(t, err, "postgres without dsn")
}

func TestLoadResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("LEADSCOUT_TEST_KEY", "sk-test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  api_key_env: LEADSCOUT_TEST_KEY\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Scoring.APIKey)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Posts.Feeds)
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.GetDataDir())

	cfg.Output.DataDir = "/custom/path"
	assert.Equal(t, "/custom/path", cfg.GetDataDir())
}
