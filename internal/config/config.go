package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Scoring    Scoring    `yaml:"scoring"`
	Fetch      Fetch      `yaml:"fetch"`
	Enrichment Enrichment `yaml:"enrichment"`
	Matcher    Matcher    `yaml:"matcher"`
	Cache      Cache      `yaml:"cache"`
	Posts      Posts      `yaml:"posts"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Output     Output     `yaml:"output"`
}

// Scoring selects and configures the relevance-scoring LLM.
type Scoring struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	OllamaURL   string        `yaml:"ollama_url"`
	OpenAIModel string        `yaml:"openai_model"`
	OpenAIURL   string        `yaml:"openai_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	APIKey      string        `yaml:"-"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Fetch struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Concurrency  int           `yaml:"concurrency"`
	BatchDelay   time.Duration `yaml:"batch_delay"`
	TLSProfile   string        `yaml:"tls_profile"`
	UserAgents   []string      `yaml:"user_agents"`
}

type Enrichment struct {
	MaxBatch          int           `yaml:"max_batch"`
	MinRelevanceScore float64       `yaml:"min_relevance_score"`
	CallInterval      time.Duration `yaml:"call_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

type Matcher struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Cache configures the (domain, topic) analysis cache.
type Cache struct {
	Backend      string        `yaml:"backend"` // sqlite, postgres, redis, memory
	PostgresDSN  string        `yaml:"postgres_dsn"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisDB      int           `yaml:"redis_db"`
	Freshness    time.Duration `yaml:"freshness"`
	PruneHorizon time.Duration `yaml:"prune_horizon"`
}

type Posts struct {
	ChunkSize int      `yaml:"chunk_size"`
	Feeds     []string `yaml:"feeds"`
	MaxItems  int      `yaml:"max_items"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

// ConfigDir returns the XDG config directory for leadscout.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "leadscout")
}

// DataDir returns the XDG data directory for leadscout.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "leadscout")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/leadscout/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'leadscout init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads KEY=value pairs from a .env file in the working directory
// or the config directory. Existing environment variables win. Missing files
// are not an error.
func LoadDotEnv() error {
	for _, path := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file and resolves the scoring credential
// from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.Scoring.APIKeyEnv != "" {
		cfg.Scoring.APIKey = os.Getenv(cfg.Scoring.APIKeyEnv)
	}
	return cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	return &Config{
		Scoring: Scoring{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			OpenAIURL:   "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxTokens:   800,
			Timeout:     60 * time.Second,
		},
		Fetch: Fetch{
			Timeout:      10 * time.Second,
			MaxBodyBytes: 50 * 1024,
			Concurrency:  5,
			BatchDelay:   time.Second,
			TLSProfile:   "go",
		},
		Enrichment: Enrichment{
			MaxBatch:          50,
			MinRelevanceScore: 5,
			CallInterval:      500 * time.Millisecond,
			RequestTimeout:    2 * time.Minute,
		},
		Matcher: Matcher{
			MaxConcurrent:  10,
			BatchDelay:     time.Second,
			RequestTimeout: 5 * time.Minute,
		},
		Cache: Cache{
			Backend:      "sqlite",
			RedisAddr:    "localhost:6379",
			Freshness:    7 * 24 * time.Hour,
			PruneHorizon: 30 * 24 * time.Hour,
		},
		Posts: Posts{
			ChunkSize: 20,
			MaxItems:  100,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Enrichment.MinRelevanceScore < 0 || c.Enrichment.MinRelevanceScore > 10 {
		return fmt.Errorf("enrichment.min_relevance_score must be within 0-10, got %v", c.Enrichment.MinRelevanceScore)
	}
	if c.Enrichment.MaxBatch <= 0 {
		return fmt.Errorf("enrichment.max_batch must be positive, got %d", c.Enrichment.MaxBatch)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if strings.EqualFold(c.Cache.Backend, "postgres") && c.Cache.PostgresDSN == "" {
		return fmt.Errorf("cache.postgres_dsn is required for the postgres backend")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
