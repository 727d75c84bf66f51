package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/llm"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const cloudPage = `<html><head><title>Stratus Ops</title>
<meta name="description" content="Cloud infrastructure consulting for growing teams."></head>
<body><h1>AWS, Kubernetes, DevOps</h1>
<p>We migrate workloads to AWS and run Kubernetes clusters with a DevOps mindset.</p></body></html>`

const bakeryPage = `<html><head><title>%s Bakery</title></head>
<body><h1>Fresh bread daily</h1><p>Sourdough, croissants and cakes baked every morning in our shop.</p></body></html>`

// scoringProvider answers graded prompts: pages mentioning Kubernetes score
// high, everything else low.
type scoringProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *scoringProvider) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if strings.Contains(prompt, "Kubernetes") {
		return `{"is_relevant": true, "confidence": 88, "score": 8.5, "reasoning": "Runs cloud infrastructure", "key_matches": ["AWS", "Kubernetes"]}`, nil
	}
	return "```json\n" + `{"is_relevant": false, "confidence": 90, "score": 1, "reasoning": "Bakery"}` + "\n```", nil
}

func (p *scoringProvider) Name() string { return "scoring" }

func (p *scoringProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type site struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/cloud":
			fmt.Fprint(w, cloudPage)
		case "/rye":
			fmt.Fprintf(w, bakeryPage, "Rye")
		case "/crumb":
			fmt.Fprintf(w, bakeryPage, "Crumb")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func newPipeline(t *testing.T, provider llm.Provider, opts Options) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f, err := fetch.New(fetch.Options{Timeout: 2 * time.Second, Logger: logger})
	require.NoError(t, err)
	opts.Logger = logger
	return New(fetch.NewPool(f, 5, 0, logger), oracle.New(provider, oracle.Options{Logger: logger}), opts)
}

func threeLeads(s *site) []lead.Lead {
	return lead.NormalizeAll([]map[string]any{
		{"name": "Rye Bakery", "website": s.srv.URL + "/rye"},
		{"name": "Stratus Ops", "domain": s.srv.URL + "/cloud"},
		{"name": "Crumb Bakery", "website_url": s.srv.URL + "/crumb"},
	})
}

func scoreOf(v float64) *float64 { return &v }

func TestRunRetainsRelevantLead(t *testing.T) {
	s := newSite(t)
	p := newPipeline(t, &scoringProvider{}, Options{})

	res, err := p.Run(context.Background(), Request{
		Leads:             threeLeads(s),
		Topic:             "cloud infrastructure",
		MinRelevanceScore: scoreOf(5),
		EnableScraping:    true,
		EnableAnalysis:    true,
	})
	require.NoError(t, err)

	require.Len(t, res.Leads, 1)
	got := res.Leads[0]
	assert.Equal(t, "Stratus Ops", got.Lead.Name)
	require.NotNil(t, got.Verdict)
	assert.Equal(t, 8.5, got.Verdict.Score)
	assert.Contains(t, got.Verdict.KeyMatches, "Kubernetes")
	require.NotNil(t, got.Content)
	assert.Equal(t, "Stratus Ops", got.Content.Title)

	require.Len(t, res.Filtered, 2)
	for _, r := range res.Filtered {
		assert.Equal(t, ReasonBelowThreshold, r.FilterReason)
		assert.GreaterOrEqual(t, 5.0, r.Score())
	}

	assert.Equal(t, Stats{TotalInput: 3, TotalProcessed: 3, TotalEnriched: 1, Scraped: 3}, res.Stats)
}

func TestRunRejectsInputBeforeIO(t *testing.T) {
	s := newSite(t)
	provider := &scoringProvider{}
	p := newPipeline(t, provider, Options{})
	ctx := context.Background()

	_, err := p.Run(ctx, Request{Topic: "cloud", EnableScraping: true, EnableAnalysis: true})
	assert.ErrorIs(t, err, ErrNoLeads)

	_, err = p.Run(ctx, Request{Leads: threeLeads(s), Topic: "  ", EnableScraping: true, EnableAnalysis: true})
	assert.ErrorIs(t, err, ErrNoTopic)

	_, err = p.Run(ctx, Request{Leads: threeLeads(s), Topic: "cloud", MinRelevanceScore: scoreOf(11), EnableScraping: true})
	assert.ErrorIs(t, err, ErrInvalidMinScore)

	_, err = p.RunBatches(ctx, Request{Topic: "cloud", EnableScraping: true})
	assert.ErrorIs(t, err, ErrNoLeads)

	assert.Zero(t, s.hits.Load(), "no website requests")
	assert.Zero(t, provider.Calls(), "no scoring calls")
}

func TestRunWithoutProviderLeavesEverythingUnscored(t *testing.T) {
	s := newSite(t)
	p := newPipeline(t, nil, Options{})

	for _, threshold := range []float64{0.5, 5, 10} {
		res, err := p.Run(context.Background(), Request{
			Leads:             threeLeads(s),
			Topic:             "cloud infrastructure",
			MinRelevanceScore: scoreOf(threshold),
			EnableScraping:    true,
			EnableAnalysis:    true,
		})
		require.NoError(t, err)

		assert.Empty(t, res.Leads, "min %v", threshold)
		require.Len(t, res.Filtered, 3)
		for _, r := range res.Filtered {
			require.NotNil(t, r.Verdict)
			assert.Nil(t, r.Verdict.IsRelevant)
			assert.Zero(t, r.Verdict.Score)
			assert.NotNil(t, r.Content, "scraping still runs")
			assert.Equal(t, ReasonNotEvaluated, r.FilterReason)
		}
		assert.Equal(t, 3, res.Stats.Scraped)
		assert.Equal(t, 3, res.Stats.Unscored)
	}
}

func TestRunLeadWithoutWebsite(t *testing.T) {
	p := newPipeline(t, &scoringProvider{}, Options{})
	leads := []lead.Lead{{Name: "Offline GmbH", Industry: "Consulting"}}

	res, err := p.Run(context.Background(), Request{Leads: leads, Topic: "cloud", EnableScraping: true})
	require.NoError(t, err)
	require.Len(t, res.Leads, 1)
	assert.Nil(t, res.Leads[0].Content)
	assert.Nil(t, res.Leads[0].Verdict)
	assert.Zero(t, res.Stats.ScrapeFailed)

	res, err = p.Run(context.Background(), Request{Leads: leads, Topic: "cloud", EnableScraping: true, EnableAnalysis: true})
	require.NoError(t, err)
	require.Len(t, res.Filtered, 1)
	require.NotNil(t, res.Filtered[0].Verdict)
	assert.Equal(t, 1.0, res.Filtered[0].Verdict.Score)
}

func TestRunCountsScrapeFailures(t *testing.T) {
	s := newSite(t)
	p := newPipeline(t, &scoringProvider{}, Options{})
	leads := lead.NormalizeAll([]map[string]any{
		{"name": "Gone", "website": s.srv.URL + "/missing"},
		{"name": "Broken", "website": "ftp://files.example"},
	})

	res, err := p.Run(context.Background(), Request{Leads: leads, Topic: "cloud", EnableScraping: true})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 2)
	assert.Equal(t, 2, res.Stats.ScrapeFailed)
	assert.Zero(t, res.Stats.Scraped)
}

// stubSource and stubScorer stand in for the network in ordering and cache
// tests.
type stubSource struct {
	mu   sync.Mutex
	urls []string
}

func (s *stubSource) FetchAll(_ context.Context, urls []string) map[string]*fetch.ScrapedContent {
	s.mu.Lock()
	s.urls = append(s.urls, urls...)
	s.mu.Unlock()
	out := make(map[string]*fetch.ScrapedContent, len(urls))
	for _, u := range urls {
		out[u] = &fetch.ScrapedContent{URL: u, Title: "Page " + u, BodyText: "body of " + u}
	}
	return out
}

type stubScorer struct {
	scores map[string]float64
	calls  int
	fail   bool
}

func (s *stubScorer) AnalyzeCompanies(_ context.Context, candidates []oracle.Candidate, _ string) []oracle.Analysis {
	s.calls++
	out := make([]oracle.Analysis, len(candidates))
	yes := true
	for i, c := range candidates {
		out[i].Candidate = c
		if s.fail {
			out[i].Verdict = oracle.Unknown("scoring failed")
			continue
		}
		out[i].Verdict = oracle.Verdict{IsRelevant: &yes, Score: s.scores[c.Lead.Name], Confidence: 70}
	}
	// Reverse so re-association cannot rely on order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func TestRunSortsStableByScore(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"A": 6, "B": 9, "C": 6, "D": 2, "E": 9}}
	p := New(&stubSource{}, scorer, Options{Logger: zaptest.NewLogger(t)})

	var leads []lead.Lead
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		leads = append(leads, lead.Lead{Name: name, Website: strings.ToLower(name) + ".example"})
	}
	res, err := p.Run(context.Background(), Request{Leads: leads, Topic: "x", EnableScraping: true, EnableAnalysis: true})
	require.NoError(t, err)

	var names []string
	for i, r := range res.Leads {
		names = append(names, r.Lead.Name)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Leads[i-1].Score(), r.Score())
		}
		assert.Equal(t, "Page "+r.Lead.Website, r.Content.Title, "content stays with its lead")
	}
	assert.Equal(t, []string{"B", "E", "A", "C"}, names)
	require.Len(t, res.Filtered, 1)
	assert.Equal(t, "D", res.Filtered[0].Lead.Name)
}

func TestRunCapsBatchAndReportsExcluded(t *testing.T) {
	source := &stubSource{}
	p := New(source, &stubScorer{}, Options{MaxBatch: 3, Logger: zaptest.NewLogger(t)})

	var leads []lead.Lead
	for i := range 5 {
		leads = append(leads, lead.Lead{Index: i, Name: fmt.Sprintf("L%d", i), Website: fmt.Sprintf("l%d.example", i)})
	}
	res, err := p.Run(context.Background(), Request{Leads: leads, Topic: "x", EnableScraping: true})
	require.NoError(t, err)

	assert.Len(t, res.Leads, 3)
	require.Len(t, res.Excluded, 2)
	assert.Equal(t, 3, res.Excluded[0].Index)
	assert.Equal(t, 4, res.Excluded[1].Index)
	assert.Equal(t, 5, res.Stats.TotalInput)
	assert.Equal(t, 3, res.Stats.TotalProcessed)
	assert.Equal(t, 2, res.Stats.Excluded)
	assert.Len(t, source.urls, 3)
}

func TestRunUsesCache(t *testing.T) {
	source := &stubSource{}
	scorer := &stubScorer{scores: map[string]float64{"Acme": 7}}
	rc := cache.New(cache.NewMemoryStore(), 0, zaptest.NewLogger(t))
	p := New(source, scorer, Options{Cache: rc, Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	req := Request{
		Leads:          []lead.Lead{{Name: "Acme", Website: "https://www.Acme.io/about"}},
		Topic:          "Cloud  Infrastructure",
		EnableScraping: true,
		EnableAnalysis: true,
	}
	first, err := p.Run(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Leads, 1)
	assert.False(t, first.Leads[0].Cached)

	key, err := cache.NewKey("acme.io", "cloud infrastructure", cache.ModeGraded)
	require.NoError(t, err)
	e, ok := rc.Lookup(ctx, key)
	require.True(t, ok)
	assert.Equal(t, 7.0, e.Verdict.Score)
	assert.Contains(t, e.Digest, "Page https://www.Acme.io/about")

	second, err := p.Run(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.Leads, 1)
	assert.True(t, second.Leads[0].Cached)
	assert.Equal(t, 7.0, second.Leads[0].Score())
	assert.Equal(t, 1, second.Stats.CacheHits)
	assert.Equal(t, 1, scorer.calls, "cached lead is not rescored")
	assert.Len(t, source.urls, 1, "cached lead is not refetched")
}

func TestRunDoesNotCacheUnknownVerdicts(t *testing.T) {
	scorer := &stubScorer{fail: true}
	rc := cache.New(cache.NewMemoryStore(), 0, zaptest.NewLogger(t))
	p := New(&stubSource{}, scorer, Options{Cache: rc, Logger: zaptest.NewLogger(t)})

	req := Request{Leads: []lead.Lead{{Name: "Acme", Website: "acme.io"}}, Topic: "cloud", EnableScraping: true, EnableAnalysis: true}
	for range 2 {
		res, err := p.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Zero(t, res.Stats.CacheHits)
	}
	assert.Equal(t, 2, scorer.calls)
}

func TestRunAfterCancel(t *testing.T) {
	p := New(&stubSource{}, &stubScorer{}, Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, Request{Leads: []lead.Lead{{Name: "A"}}, Topic: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBatchesCoversAllLeads(t *testing.T) {
	source := &stubSource{}
	scorer := &stubScorer{scores: map[string]float64{}}
	p := New(source, scorer, Options{MaxBatch: 2, Logger: zaptest.NewLogger(t)})

	var leads []lead.Lead
	for i := range 5 {
		name := fmt.Sprintf("L%d", i)
		scorer.scores[name] = float64(i * 2)
		leads = append(leads, lead.Lead{Index: i, Name: name, Website: fmt.Sprintf("l%d.example", i)})
	}

	batches, err := p.RunBatches(context.Background(), Request{Leads: leads, Topic: "x", EnableScraping: true, EnableAnalysis: true})
	require.NoError(t, err)
	require.Len(t, batches, 3)
	for i, b := range batches {
		assert.Equal(t, i, b.Index)
		require.NoError(t, b.Err)
		assert.Empty(t, b.Result.Excluded)
	}
	assert.Len(t, batches[2].Result.Leads, 1)

	merged := Merge(batches)
	assert.Equal(t, 5, merged.Stats.TotalInput)
	assert.Equal(t, 5, merged.Stats.TotalProcessed)
	var names []string
	for _, r := range merged.Leads {
		names = append(names, r.Lead.Name)
	}
	assert.Equal(t, []string{"L4", "L3"}, names)
	assert.Len(t, merged.Filtered, 3)
}

func TestRunBatchesIsolatesFailures(t *testing.T) {
	p := New(&stubSource{}, &stubScorer{}, Options{MaxBatch: 1, Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batches, err := p.RunBatches(ctx, Request{Leads: []lead.Lead{{Name: "A"}, {Name: "B"}}, Topic: "x"})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	for _, b := range batches {
		assert.ErrorIs(t, b.Err, context.Canceled)
		assert.Nil(t, b.Result)
		assert.Len(t, b.Leads, 1)
	}

	merged := Merge(batches)
	assert.Empty(t, merged.Leads)
	assert.Empty(t, merged.Filtered)
	require.Len(t, merged.Excluded, 2, "leads of failed batches are still reported")
	assert.Equal(t, "A", merged.Excluded[0].Name)
	assert.Equal(t, "B", merged.Excluded[1].Name)
	assert.Equal(t, 2, merged.Stats.TotalInput)
	assert.Equal(t, 2, merged.Stats.Excluded)
}

func TestMergeKeepsFailedBatchNextToSuccessfulOnes(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{"A": 8}}
	p := New(&stubSource{}, scorer, Options{Logger: zaptest.NewLogger(t)})
	first, err := p.Run(context.Background(), Request{
		Leads: []lead.Lead{{Name: "A", Website: "a.example"}}, Topic: "x", EnableScraping: true, EnableAnalysis: true,
	})
	require.NoError(t, err)

	merged := Merge([]BatchResult{
		{Index: 0, Leads: []lead.Lead{{Name: "A", Website: "a.example"}}, Result: first},
		{Index: 1, Leads: []lead.Lead{{Name: "B"}, {Name: "C"}}, Err: context.Canceled},
	})
	require.Len(t, merged.Leads, 1)
	assert.Len(t, merged.Excluded, 2)
	assert.Equal(t, 3, merged.Stats.TotalInput)
	assert.Equal(t, 1, merged.Stats.TotalProcessed)
	assert.Equal(t, len(merged.Leads)+len(merged.Filtered)+len(merged.Excluded), merged.Stats.TotalInput)
}

// blockingSource and blockingScorer wait for the run deadline.
type blockingSource struct{}

func (blockingSource) FetchAll(ctx context.Context, _ []string) map[string]*fetch.ScrapedContent {
	<-ctx.Done()
	return map[string]*fetch.ScrapedContent{}
}

type blockingScorer struct{}

func (blockingScorer) AnalyzeCompanies(ctx context.Context, candidates []oracle.Candidate, _ string) []oracle.Analysis {
	<-ctx.Done()
	out := make([]oracle.Analysis, len(candidates))
	for i, c := range candidates {
		out[i] = oracle.Analysis{Candidate: c, Verdict: oracle.Unknown(ctx.Err().Error())}
	}
	return out
}

func TestRunDeadlineKeepsPartialResults(t *testing.T) {
	const timeout = 50 * time.Millisecond
	p := New(blockingSource{}, blockingScorer{}, Options{RequestTimeout: timeout, Logger: zaptest.NewLogger(t)})

	var leads []lead.Lead
	for i := range 4 {
		leads = append(leads, lead.Lead{Index: i, Name: fmt.Sprintf("L%d", i), Website: fmt.Sprintf("l%d.example", i)})
	}

	start := time.Now()
	res, err := p.Run(context.Background(), Request{Leads: leads, Topic: "x", EnableScraping: true, EnableAnalysis: true})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 20*timeout)
	assert.Empty(t, res.Leads)
	require.Len(t, res.Filtered, 4)
	for _, r := range res.Filtered {
		assert.Equal(t, ReasonNotEvaluated, r.FilterReason)
		assert.Nil(t, r.Content)
	}
	assert.Equal(t, 4, res.Stats.ScrapeFailed)
	assert.Equal(t, 4, res.Stats.Unscored)
}

// scoreOnlyScorer answers with a score but no relevance flag.
type scoreOnlyScorer struct{}

func (scoreOnlyScorer) AnalyzeCompanies(_ context.Context, candidates []oracle.Candidate, _ string) []oracle.Analysis {
	out := make([]oracle.Analysis, len(candidates))
	for i, c := range candidates {
		out[i] = oracle.Analysis{Candidate: c, Verdict: oracle.Verdict{Score: 8}}
	}
	return out
}

func TestRunFiltersUnknownVerdictsUnlessMinimumIsZero(t *testing.T) {
	p := New(&stubSource{}, scoreOnlyScorer{}, Options{Logger: zaptest.NewLogger(t)})
	req := Request{
		Leads:          []lead.Lead{{Name: "Acme", Website: "acme.io"}},
		Topic:          "x",
		EnableScraping: true,
		EnableAnalysis: true,
	}

	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, res.Leads)
	require.Len(t, res.Filtered, 1)
	assert.Equal(t, ReasonNotEvaluated, res.Filtered[0].FilterReason)
	assert.Equal(t, 1, res.Stats.Unscored)

	req.MinRelevanceScore = scoreOf(0)
	res, err = p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Leads, 1)
	assert.Empty(t, res.Filtered)
}
