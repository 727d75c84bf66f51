package report

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobiSchelling/leadscout/internal/database"
	"github.com/TobiSchelling/leadscout/internal/enrich"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/matcher"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

func sampleResult() *enrich.Result {
	yes := true
	return &enrich.Result{
		Topic:             "cloud infrastructure",
		MinRelevanceScore: 5,
		Leads: []enrich.Record{{
			Lead:    lead.Lead{Name: "Stratus Ops", Website: "stratus.example"},
			Content: &fetch.ScrapedContent{Title: "Stratus | Kubernetes"},
			Verdict: &oracle.Verdict{IsRelevant: &yes, Score: 8.5, Reasoning: "Runs Kubernetes for clients.", KeyMatches: []string{"Kubernetes", "AWS"}},
		}},
		Filtered: []enrich.Record{
			{Lead: lead.Lead{Name: "Rye | Co"}, Verdict: &oracle.Verdict{Score: 1}, FilterReason: enrich.ReasonBelowThreshold},
			{Lead: lead.Lead{Name: "Mystery"}, Verdict: &oracle.Verdict{}, FilterReason: enrich.ReasonNotEvaluated},
		},
		Excluded: []lead.Lead{{Name: "Late Lead"}},
		Stats:    enrich.Stats{TotalInput: 4, TotalProcessed: 3, TotalEnriched: 1, Excluded: 1, Scraped: 2, ScrapeFailed: 1, Unscored: 1},
	}
}

func TestEnrichment(t *testing.T) {
	md := Enrichment(sampleResult())

	assert.Contains(t, md, "# Lead enrichment: cloud infrastructure")
	assert.Contains(t, md, "1 of 3 leads retained at minimum score 5.0")
	assert.Contains(t, md, "### Stratus Ops (8.5/10)")
	assert.Contains(t, md, "**Matches:** Kubernetes, AWS")
	assert.Contains(t, md, `| Rye \| Co | 1.0 | below_threshold |`)
	assert.Contains(t, md, "| Mystery | 0.0 | not_evaluated |")
	assert.Contains(t, md, "## Not processed\n\n- Late Lead")
	assert.Contains(t, md, "1 could not be scored")
}

func TestMatch(t *testing.T) {
	md := Match(&matcher.Result{
		Topic: "devops",
		Decisions: []matcher.Decision{
			{Index: 0, Lead: lead.Lead{Name: "A"}, Match: oracle.MatchYes, Reason: "YES"},
			{Index: 1, Lead: lead.Lead{Name: "B"}, Match: oracle.MatchUnknown, Reason: "no website"},
			{Index: 2, Lead: lead.Lead{Name: "C"}, Match: oracle.MatchNo, Cached: true},
		},
		Yes: 1, No: 1, Unknown: 1,
	})
	assert.Contains(t, md, "1 yes, 1 no, 1 unknown")
	assert.Contains(t, md, "| 2 | B | unknown | no website |")
	assert.Contains(t, md, "| 3 | C | no | cached |")
}

func TestIntel(t *testing.T) {
	l := lead.Lead{Name: "Acme"}
	md := Intel(l, oracle.SalesIntelligence{Available: true, Summary: "Growing SaaS.", PainPoints: []string{"Cloud bills"}, Approach: "Lead with FinOps."})
	assert.Contains(t, md, "## Pain points\n\n- Cloud bills")
	assert.Contains(t, md, "## Approach")
	assert.NotContains(t, md, "Talking points")

	md = Intel(l, oracle.SalesIntelligence{Error: "no scoring provider configured"})
	assert.Contains(t, md, "unavailable: no scoring provider configured")
}

func TestRecordEnrichment(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := NewComposer(db, zaptest.NewLogger(t))
	started := time.Now().Add(-time.Minute)
	run, err := c.RecordEnrichment(context.Background(), started, sampleResult())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	got, err := db.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindEnrich, got.Kind)
	assert.Equal(t, 1, got.TotalRetained)
	assert.Equal(t, 1, got.Excluded)
	assert.Contains(t, got.ReportMarkdown, "Stratus Ops")
}

type failingStore struct{}

func (failingStore) InsertRun(context.Context, database.Run) error { return errors.New("disk full") }

func TestRecordPropagatesStoreErrors(t *testing.T) {
	c := NewComposer(failingStore{}, zaptest.NewLogger(t))
	_, err := c.RecordPosts(context.Background(), time.Now(), "ai", 3, nil)
	assert.Error(t, err)

	run, err := NewComposer(nil, nil).RecordPosts(context.Background(), time.Now(), "ai", 3, []oracle.Post{{Title: "T", URL: "https://t.example"}})
	require.NoError(t, err)
	assert.Contains(t, run.ReportMarkdown, "1 of 3 posts matched")
	assert.Contains(t, run.ReportMarkdown, "- [T](https://t.example)")
}
