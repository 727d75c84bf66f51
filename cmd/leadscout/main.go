package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/config"
	"github.com/TobiSchelling/leadscout/internal/logging"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "leadscout",
	Short:   "Score company websites against a target profile",
	Long:    "LeadScout fetches lead websites, asks an LLM how well each company fits a topic, and keeps the relevant ones.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(intelCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("leadscout", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/leadscout/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the scoring provider and cache backend.")
		fmt.Println("Put the API key in the environment variable named by scoring.api_key_env, or in a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache and run history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rc, err := openCache(ctx, db)
		if err != nil {
			return err
		}
		defer rc.Close()

		st, err := rc.Stats(ctx)
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		runs, err := db.CountRuns(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Printf("Cache (%s):\n", cfg.Cache.Backend)
		fmt.Printf("  Entries: %d\n", st.Entries)
		if st.Entries > 0 {
			fmt.Printf("  Oldest: %s\n", st.Oldest.Local().Format("2006-01-02 15:04"))
			fmt.Printf("  Newest: %s\n", st.Newest.Local().Format("2006-01-02 15:04"))
		}
		fmt.Printf("  Freshness: %s\n", cfg.Cache.Freshness)
		fmt.Println("\nRuns:")
		fmt.Printf("  Recorded: %d\n", runs)
		fmt.Println("\nScoring:")
		fmt.Printf("  Provider: %s\n", cfg.Scoring.Provider)
		if cfg.Scoring.APIKey == "" {
			fmt.Printf("  API key: not set (%s)\n", cfg.Scoring.APIKeyEnv)
		} else {
			fmt.Println("  API key: set")
		}
		return nil
	},
}
