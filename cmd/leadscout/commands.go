package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/enrich"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/matcher"
	"github.com/TobiSchelling/leadscout/internal/posts"
	"github.com/TobiSchelling/leadscout/internal/report"
	"github.com/TobiSchelling/leadscout/internal/server"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- enrich command ---

var (
	leadsPath  string
	topic      string
	minScore   float64
	noScrape   bool
	noAnalysis bool
	allBatches bool
	jsonOutput bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Scrape, score and rank leads against a topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		leads, err := readLeads(leadsPath)
		if err != nil {
			return err
		}

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

		f, err := newFetcher()
		if err != nil {
			return err
		}
		pool := fetch.NewPool(f, cfg.Fetch.Concurrency, cfg.Fetch.BatchDelay, logger)
		pipe := enrich.New(pool, newOracle(ctx), enrich.Options{
			Cache:             rc,
			MaxBatch:          cfg.Enrichment.MaxBatch,
			MinRelevanceScore: cfg.Enrichment.MinRelevanceScore,
			RequestTimeout:    cfg.Enrichment.RequestTimeout,
			Logger:            logger,
		})

		req := enrich.Request{
			Leads:          leads,
			Topic:          topic,
			EnableScraping: !noScrape,
			EnableAnalysis: !noAnalysis,
		}
		if cmd.Flags().Changed("min-score") {
			req.MinRelevanceScore = &minScore
		}

		var res *enrich.Result
		if allBatches {
			batches, err := pipe.RunBatches(ctx, req)
			if err != nil {
				return err
			}
			for _, b := range batches {
				if b.Err != nil {
					fmt.Fprintf(os.Stderr, "batch %d failed: %v\n", b.Index+1, b.Err)
				}
			}
			res = enrich.Merge(batches)
		} else {
			res, err = pipe.Run(ctx, req)
			if err != nil {
				return err
			}
		}

		run, err := report.NewComposer(db, logger).RecordEnrichment(ctx, started, res)
		if err != nil {
			logger.Warn("run not recorded", zap.Error(err))
		}

		if jsonOutput {
			return printJSON(res)
		}
		fmt.Print(report.Enrichment(res))
		if run != nil {
			fmt.Printf("\nRun %s recorded. View it with 'leadscout serve'.\n", run.ID)
		}
		if len(res.Excluded) > 0 && !allBatches {
			fmt.Printf("%d leads were not processed; rerun with --all to process every lead.\n", len(res.Excluded))
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVarP(&leadsPath, "leads", "l", "", "JSON file with lead records (- for stdin)")
	enrichCmd.Flags().StringVarP(&topic, "topic", "t", "", "Target profile to score against")
	enrichCmd.Flags().Float64Var(&minScore, "min-score", 5, "Minimum relevance score (0-10) to keep a lead")
	enrichCmd.Flags().BoolVar(&noScrape, "no-scrape", false, "Skip fetching websites")
	enrichCmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "Skip scoring and keep every lead")
	enrichCmd.Flags().BoolVar(&allBatches, "all", false, "Process every lead in batches instead of stopping at the batch limit")
	enrichCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	_ = enrichCmd.MarkFlagRequired("leads")
	_ = enrichCmd.MarkFlagRequired("topic")
}

// --- match command ---

var matchConcurrency int

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Ask a yes/no topic question for every company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		companies, err := readLeads(leadsPath)
		if err != nil {
			return err
		}

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

		f, err := newFetcher()
		if err != nil {
			return err
		}
		m := matcher.New(f, newOracle(ctx), matcher.Options{
			Cache:          rc,
			WindowPause:    cfg.Matcher.BatchDelay,
			RequestTimeout: cfg.Matcher.RequestTimeout,
			Logger:         logger,
		})

		concurrency := matchConcurrency
		if !cmd.Flags().Changed("concurrency") {
			concurrency = cfg.Matcher.MaxConcurrent
		}
		res, err := m.Match(ctx, matcher.Request{Companies: companies, Topic: topic, MaxConcurrent: concurrency})
		if err != nil {
			return err
		}

		if _, err := report.NewComposer(db, logger).RecordMatch(ctx, started, res); err != nil {
			logger.Warn("run not recorded", zap.Error(err))
		}

		if jsonOutput {
			return printJSON(res)
		}
		fmt.Print(report.Match(res))
		return nil
	},
}

func init() {
	matchCmd.Flags().StringVarP(&leadsPath, "leads", "l", "", "JSON file with company records (- for stdin)")
	matchCmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to match companies against")
	matchCmd.Flags().IntVar(&matchConcurrency, "concurrency", matcher.DefaultMaxConcurrent, "Companies checked at once (1-10)")
	matchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	_ = matchCmd.MarkFlagRequired("leads")
	_ = matchCmd.MarkFlagRequired("topic")
}

// --- intel command ---

var (
	intelName    string
	intelWebsite string
)

var intelCmd = &cobra.Command{
	Use:   "intel",
	Short: "Draft a sales brief for one company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := lead.Lead{Name: intelName, Website: intelWebsite}

		f, err := newFetcher()
		if err != nil {
			return err
		}
		content, err := f.Fetch(ctx, intelWebsite)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Website not scraped: %v\n", err)
		}

		si := newOracle(ctx).GenerateSalesIntelligence(ctx, l, content, topic)
		if jsonOutput {
			return printJSON(si)
		}
		fmt.Print(report.Intel(l, si))
		return nil
	},
}

func init() {
	intelCmd.Flags().StringVar(&intelName, "name", "", "Company name")
	intelCmd.Flags().StringVar(&intelWebsite, "website", "", "Company website")
	intelCmd.Flags().StringVarP(&topic, "topic", "t", "", "What you sell")
	intelCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	_ = intelCmd.MarkFlagRequired("website")
	_ = intelCmd.MarkFlagRequired("topic")
}

// --- posts command ---

var postsDays int

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Collect feed posts and keep those about a topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()
		if len(cfg.Posts.Feeds) == 0 {
			return errors.New("no feeds configured under posts.feeds")
		}

		collector := posts.NewCollector(cfg.Posts.Feeds, cfg.Posts.MaxItems, logger)
		all := collector.Collect(ctx, started.AddDate(0, 0, -postsDays))
		relevant := newOracle(ctx).FilterPostsByTopic(ctx, all, topic)

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := report.NewComposer(db, logger).RecordPosts(ctx, started, topic, len(all), relevant); err != nil {
			logger.Warn("run not recorded", zap.Error(err))
		}

		if jsonOutput {
			return printJSON(relevant)
		}
		fmt.Print(report.Posts(topic, len(all), relevant))
		return nil
	},
}

func init() {
	postsCmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to filter posts by")
	postsCmd.Flags().IntVar(&postsDays, "days", 7, "Only consider posts from the last N days")
	postsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	_ = postsCmd.MarkFlagRequired("topic")
}

// --- prune command ---

var pruneHorizon time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cached analyses older than the prune horizon",
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

		horizon := pruneHorizon
		if horizon == 0 {
			horizon = cfg.Cache.PruneHorizon
		}
		n, err := rc.Prune(ctx, horizon)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d cache entries older than %s\n", n, horizon)
		return nil
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneHorizon, "horizon", 0, "Age limit (default from cache.prune_horizon)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local run history server",
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

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, rc, port, logger)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from server.port)")
}
