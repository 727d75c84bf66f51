// Package enrich runs the graded enrichment pipeline: cache lookup, website
// scraping, sequential paced scoring, threshold filtering and ranking.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/extract"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/metrics"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const (
	DefaultMaxBatch          = 50
	DefaultMinRelevanceScore = 5.0
	DefaultRequestTimeout    = 2 * time.Minute
)

// Reasons a processed lead was left out of the ranked output.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonNotEvaluated   = "not_evaluated"
)

var (
	ErrNoLeads         = errors.New("no leads provided")
	ErrNoTopic         = errors.New("topic is required")
	ErrInvalidMinScore = errors.New("min relevance score must be within 0-10")
)

// ContentSource fetches many websites at once. *fetch.Pool satisfies it.
type ContentSource interface {
	FetchAll(ctx context.Context, urls []string) map[string]*fetch.ScrapedContent
}

// Scorer grades candidates sequentially. *oracle.Oracle satisfies it.
type Scorer interface {
	AnalyzeCompanies(ctx context.Context, candidates []oracle.Candidate, topic string) []oracle.Analysis
}

// Request is one enrichment call.
type Request struct {
	Leads []lead.Lead
	Topic string
	// MinRelevanceScore overrides the pipeline default when set.
	MinRelevanceScore *float64
	EnableScraping    bool
	EnableAnalysis    bool
}

// Record is one processed lead.
type Record struct {
	Lead    lead.Lead             `json:"lead"`
	Content *fetch.ScrapedContent `json:"content,omitempty"`
	// Verdict is nil when analysis was disabled.
	Verdict      *oracle.Verdict `json:"verdict,omitempty"`
	Cached       bool            `json:"cached,omitempty"`
	FilterReason string          `json:"filter_reason,omitempty"`
}

// Score is the verdict score, or 0 without a verdict.
func (r Record) Score() float64 {
	if r.Verdict == nil {
		return 0
	}
	return r.Verdict.Score
}

type Stats struct {
	TotalInput     int `json:"total_input"`
	TotalProcessed int `json:"total_processed"`
	TotalEnriched  int `json:"total_enriched"`
	Excluded       int `json:"excluded"`
	Scraped        int `json:"scraped"`
	ScrapeFailed   int `json:"scrape_failed"`
	CacheHits      int `json:"cache_hits"`
	Unscored       int `json:"unscored"`
}

// Result is the outcome of Run. Every input lead appears in exactly one of
// Leads, Filtered or Excluded.
type Result struct {
	Topic             string      `json:"topic"`
	MinRelevanceScore float64     `json:"min_relevance_score"`
	Leads             []Record    `json:"leads"`
	Filtered          []Record    `json:"filtered"`
	Excluded          []lead.Lead `json:"excluded"`
	Stats             Stats       `json:"stats"`
}

// Options configures a Pipeline. Zero values select the defaults.
type Options struct {
	Cache             *cache.ResultCache
	MaxBatch          int
	MinRelevanceScore float64
	RequestTimeout    time.Duration
	Logger            *zap.Logger
}

// Pipeline enriches lead batches.
type Pipeline struct {
	source   ContentSource
	scorer   Scorer
	cache    *cache.ResultCache
	maxBatch int
	minScore float64
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Pipeline. A nil cache disables caching.
func New(source ContentSource, scorer Scorer, opts Options) *Pipeline {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.MinRelevanceScore < 0 || opts.MinRelevanceScore > 10 {
		opts.MinRelevanceScore = DefaultMinRelevanceScore
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		source:   source,
		scorer:   scorer,
		cache:    opts.Cache,
		maxBatch: opts.MaxBatch,
		minScore: opts.MinRelevanceScore,
		timeout:  opts.RequestTimeout,
		logger:   opts.Logger,
	}
}

// MaxBatch returns the number of leads Run processes per call.
func (p *Pipeline) MaxBatch() int {
	return p.maxBatch
}

func (p *Pipeline) validate(req Request) (float64, error) {
	if len(req.Leads) == 0 {
		return 0, ErrNoLeads
	}
	if strings.TrimSpace(req.Topic) == "" {
		return 0, ErrNoTopic
	}
	minScore := p.minScore
	if req.MinRelevanceScore != nil {
		minScore = *req.MinRelevanceScore
	}
	if minScore < 0 || minScore > 10 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidMinScore, minScore)
	}
	return minScore, nil
}

// Run enriches at most MaxBatch leads. Leads past the cap are returned in
// Result.Excluded untouched. Input errors are returned before any network
// call; per-lead failures only ever degrade that lead's record.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	minScore, err := p.validate(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrichment not started: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	batch := req.Leads
	res := &Result{Topic: req.Topic, MinRelevanceScore: minScore}
	res.Stats.TotalInput = len(req.Leads)
	if len(batch) > p.maxBatch {
		res.Excluded = slices.Clone(batch[p.maxBatch:])
		batch = batch[:p.maxBatch]
		p.logger.Warn("batch capped",
			zap.Int("input", len(req.Leads)),
			zap.Int("processed", p.maxBatch),
			zap.Int("excluded", len(res.Excluded)),
		)
	}
	res.Stats.TotalProcessed = len(batch)
	res.Stats.Excluded = len(res.Excluded)

	records := make([]Record, len(batch))
	for i, l := range batch {
		records[i].Lead = l
	}

	keys := make([]*cache.Key, len(batch))
	if req.EnableAnalysis {
		p.lookupCached(ctx, req.Topic, records, keys, &res.Stats)
	}
	if req.EnableScraping {
		p.scrape(ctx, records, &res.Stats)
	}
	if req.EnableAnalysis {
		p.score(ctx, req.Topic, records, keys)
	}

	for _, r := range records {
		if r.Verdict != nil && !r.Verdict.Known() {
			res.Stats.Unscored++
		}
		switch {
		case !req.EnableAnalysis:
			res.Leads = append(res.Leads, r)
		case r.Verdict == nil || !r.Verdict.Known():
			if minScore == 0 {
				res.Leads = append(res.Leads, r)
				continue
			}
			r.FilterReason = ReasonNotEvaluated
			res.Filtered = append(res.Filtered, r)
		case r.Verdict.Score >= minScore:
			res.Leads = append(res.Leads, r)
		default:
			r.FilterReason = ReasonBelowThreshold
			res.Filtered = append(res.Filtered, r)
		}
	}
	slices.SortStableFunc(res.Leads, byScoreDesc)
	res.Stats.TotalEnriched = len(res.Leads)

	metrics.EnrichedLeadsTotal.WithLabelValues("retained").Add(float64(len(res.Leads)))
	for _, r := range res.Filtered {
		metrics.EnrichedLeadsTotal.WithLabelValues(r.FilterReason).Inc()
	}
	metrics.EnrichedLeadsTotal.WithLabelValues("excluded").Add(float64(len(res.Excluded)))

	p.logger.Info("enrichment complete",
		zap.String("topic", req.Topic),
		zap.Int("input", res.Stats.TotalInput),
		zap.Int("processed", res.Stats.TotalProcessed),
		zap.Int("retained", res.Stats.TotalEnriched),
		zap.Int("cache_hits", res.Stats.CacheHits),
		zap.Int("unscored", res.Stats.Unscored),
	)
	return res, nil
}

// lookupCached fills records that have a fresh graded analysis and records
// the cache key of every lead with a usable domain.
func (p *Pipeline) lookupCached(ctx context.Context, topic string, records []Record, keys []*cache.Key, stats *Stats) {
	for i := range records {
		if !records[i].Lead.HasWebsite() {
			continue
		}
		key, err := cache.NewKey(records[i].Lead.Website, topic, cache.ModeGraded)
		if err != nil {
			continue
		}
		keys[i] = &key
		e, ok := p.cache.Lookup(ctx, key)
		if !ok || e.Verdict == nil {
			continue
		}
		v := *e.Verdict
		records[i].Verdict = &v
		records[i].Cached = true
		stats.CacheHits++
	}
}

func (p *Pipeline) scrape(ctx context.Context, records []Record, stats *Stats) {
	var urls []string
	for _, r := range records {
		if r.Cached || !r.Lead.HasWebsite() {
			continue
		}
		urls = append(urls, r.Lead.Website)
	}
	if len(urls) == 0 {
		return
	}

	pages := p.source.FetchAll(ctx, urls)
	for i := range records {
		if records[i].Cached || !records[i].Lead.HasWebsite() {
			continue
		}
		if content, ok := pages[records[i].Lead.Website]; ok && content != nil {
			records[i].Content = content
			stats.Scraped++
		} else {
			stats.ScrapeFailed++
		}
	}
}

// score grades every record without a cached verdict and caches the known
// verdicts that were based on scraped content.
func (p *Pipeline) score(ctx context.Context, topic string, records []Record, keys []*cache.Key) {
	var candidates []oracle.Candidate
	for i, r := range records {
		if r.Cached {
			continue
		}
		candidates = append(candidates, oracle.Candidate{Ref: i, Lead: r.Lead, Content: r.Content})
	}
	if len(candidates) == 0 {
		return
	}

	for _, a := range p.scorer.AnalyzeCompanies(ctx, candidates, topic) {
		i := a.Ref
		v := a.Verdict
		records[i].Verdict = &v

		if keys[i] == nil || !v.Known() || records[i].Content == nil {
			continue
		}
		p.cache.Put(ctx, cache.Entry{
			Key:     *keys[i],
			Verdict: &v,
			Digest:  extract.Digest(records[i].Content),
		})
	}
}

// BatchResult is the outcome of one sub-batch of RunBatches. Leads holds the
// sub-batch input so a failed batch can still be accounted for.
type BatchResult struct {
	Index  int
	Leads  []lead.Lead
	Result *Result
	Err    error
}

// RunBatches processes every lead in sub-batches of MaxBatch. Input errors
// are returned before any work starts; a failing sub-batch only sets its
// own Err.
func (p *Pipeline) RunBatches(ctx context.Context, req Request) ([]BatchResult, error) {
	if _, err := p.validate(req); err != nil {
		return nil, err
	}

	var out []BatchResult
	for start, n := 0, 0; start < len(req.Leads); start, n = start+p.maxBatch, n+1 {
		end := min(start+p.maxBatch, len(req.Leads))
		sub := req
		sub.Leads = req.Leads[start:end]

		res, err := p.Run(ctx, sub)
		if err != nil {
			p.logger.Error("batch failed", zap.Int("batch", n), zap.Error(err))
		}
		out = append(out, BatchResult{Index: n, Leads: sub.Leads, Result: res, Err: err})
	}
	return out, nil
}

// Merge combines batch results into one ranked Result. Leads of failed
// batches are reported as Excluded.
func Merge(batches []BatchResult) *Result {
	merged := &Result{}
	for _, b := range batches {
		if b.Result == nil {
			merged.Excluded = append(merged.Excluded, b.Leads...)
			merged.Stats.TotalInput += len(b.Leads)
			merged.Stats.Excluded += len(b.Leads)
			continue
		}
		merged.Topic = b.Result.Topic
		merged.MinRelevanceScore = b.Result.MinRelevanceScore
		merged.Leads = append(merged.Leads, b.Result.Leads...)
		merged.Filtered = append(merged.Filtered, b.Result.Filtered...)
		merged.Excluded = append(merged.Excluded, b.Result.Excluded...)

		s := b.Result.Stats
		merged.Stats.TotalInput += s.TotalInput
		merged.Stats.TotalProcessed += s.TotalProcessed
		merged.Stats.TotalEnriched += s.TotalEnriched
		merged.Stats.Excluded += s.Excluded
		merged.Stats.Scraped += s.Scraped
		merged.Stats.ScrapeFailed += s.ScrapeFailed
		merged.Stats.CacheHits += s.CacheHits
		merged.Stats.Unscored += s.Unscored
	}
	slices.SortStableFunc(merged.Leads, byScoreDesc)
	return merged
}

func byScoreDesc(a, b Record) int {
	switch {
	case a.Score() > b.Score():
		return -1
	case a.Score() < b.Score():
		return 1
	default:
		return 0
	}
}
