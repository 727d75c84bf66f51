// Package report renders run results as Markdown and records them in the run
// history.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/database"
	"github.com/TobiSchelling/leadscout/internal/enrich"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/matcher"
	"github.com/TobiSchelling/leadscout/internal/oracle"
)

// Run kinds.
const (
	KindEnrich = "enrich"
	KindMatch  = "match"
	KindPosts  = "posts"
)

// RunStore persists finished runs. *database.DB satisfies it.
type RunStore interface {
	InsertRun(ctx context.Context, r database.Run) error
}

// Composer turns results into recorded runs.
type Composer struct {
	store  RunStore
	now    func() time.Time
	logger *zap.Logger
}

// NewComposer creates a Composer. A nil store renders runs without saving
// them.
func NewComposer(store RunStore, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{store: store, now: time.Now, logger: logger}
}

func (c *Composer) save(ctx context.Context, r database.Run) (*database.Run, error) {
	r.ID = uuid.NewString()
	r.FinishedAt = c.now().UTC()
	if c.store != nil {
		if err := c.store.InsertRun(ctx, r); err != nil {
			return nil, err
		}
	}
	c.logger.Info("run recorded", zap.String("id", r.ID), zap.String("kind", r.Kind), zap.String("topic", r.Topic))
	return &r, nil
}

// RecordEnrichment stores an enrichment run.
func (c *Composer) RecordEnrichment(ctx context.Context, startedAt time.Time, res *enrich.Result) (*database.Run, error) {
	s := res.Stats
	return c.save(ctx, database.Run{
		Kind:           KindEnrich,
		Topic:          res.Topic,
		StartedAt:      startedAt.UTC(),
		TotalInput:     s.TotalInput,
		TotalProcessed: s.TotalProcessed,
		TotalRetained:  s.TotalEnriched,
		Excluded:       s.Excluded,
		Scraped:        s.Scraped,
		ScrapeFailed:   s.ScrapeFailed,
		CacheHits:      s.CacheHits,
		Unscored:       s.Unscored,
		ReportMarkdown: Enrichment(res),
	})
}

// RecordMatch stores a topic match run.
func (c *Composer) RecordMatch(ctx context.Context, startedAt time.Time, res *matcher.Result) (*database.Run, error) {
	var cached int
	for _, d := range res.Decisions {
		if d.Cached {
			cached++
		}
	}
	return c.save(ctx, database.Run{
		Kind:           KindMatch,
		Topic:          res.Topic,
		StartedAt:      startedAt.UTC(),
		TotalInput:     len(res.Decisions),
		TotalProcessed: len(res.Decisions),
		TotalRetained:  res.Yes,
		CacheHits:      cached,
		Unscored:       res.Unknown,
		ReportMarkdown: Match(res),
	})
}

// RecordPosts stores a posts filtering run.
func (c *Composer) RecordPosts(ctx context.Context, startedAt time.Time, topic string, total int, relevant []oracle.Post) (*database.Run, error) {
	return c.save(ctx, database.Run{
		Kind:           KindPosts,
		Topic:          topic,
		StartedAt:      startedAt.UTC(),
		TotalInput:     total,
		TotalProcessed: total,
		TotalRetained:  len(relevant),
		ReportMarkdown: Posts(topic, total, relevant),
	})
}

// Enrichment renders an enrichment result.
func Enrichment(res *enrich.Result) string {
	var sb strings.Builder
	s := res.Stats
	fmt.Fprintf(&sb, "# Lead enrichment: %s\n\n", res.Topic)
	fmt.Fprintf(&sb, "- %d of %d leads retained at minimum score %.1f\n", s.TotalEnriched, s.TotalProcessed, res.MinRelevanceScore)
	fmt.Fprintf(&sb, "- %d websites scraped, %d failed\n", s.Scraped, s.ScrapeFailed)
	if s.CacheHits > 0 {
		fmt.Fprintf(&sb, "- %d answered from cache\n", s.CacheHits)
	}
	if s.Unscored > 0 {
		fmt.Fprintf(&sb, "- %d could not be scored\n", s.Unscored)
	}
	if s.Excluded > 0 {
		fmt.Fprintf(&sb, "- %d not processed (batch limit)\n", s.Excluded)
	}

	sb.WriteString("\n## Retained\n\n")
	if len(res.Leads) == 0 {
		sb.WriteString("No leads met the threshold.\n")
	}
	for _, r := range res.Leads {
		writeRecord(&sb, r)
	}

	if len(res.Filtered) > 0 {
		sb.WriteString("\n## Filtered\n\n| Company | Score | Reason |\n|---|---|---|\n")
		for _, r := range res.Filtered {
			fmt.Fprintf(&sb, "| %s | %.1f | %s |\n", cell(r.Lead.DisplayName()), r.Score(), r.FilterReason)
		}
	}

	if len(res.Excluded) > 0 {
		sb.WriteString("\n## Not processed\n\n")
		for _, l := range res.Excluded {
			fmt.Fprintf(&sb, "- %s\n", l.DisplayName())
		}
	}
	return sb.String()
}

func writeRecord(sb *strings.Builder, r enrich.Record) {
	fmt.Fprintf(sb, "### %s", r.Lead.DisplayName())
	if r.Verdict != nil {
		fmt.Fprintf(sb, " (%.1f/10)", r.Verdict.Score)
	}
	sb.WriteString("\n\n")
	if r.Lead.HasWebsite() {
		fmt.Fprintf(sb, "Website: %s\n", r.Lead.Website)
	}
	if r.Content != nil && r.Content.Title != "" {
		fmt.Fprintf(sb, "Page title: %s\n", r.Content.Title)
	}
	if r.Cached {
		sb.WriteString("Source: cache\n")
	}
	if v := r.Verdict; v != nil {
		if v.Reasoning != "" {
			fmt.Fprintf(sb, "\n%s\n", v.Reasoning)
		}
		if len(v.KeyMatches) > 0 {
			fmt.Fprintf(sb, "\n**Matches:** %s\n", strings.Join(v.KeyMatches, ", "))
		}
		if len(v.Concerns) > 0 {
			fmt.Fprintf(sb, "\n**Concerns:** %s\n", strings.Join(v.Concerns, ", "))
		}
	}
	sb.WriteString("\n")
}

// Match renders a topic match result.
func Match(res *matcher.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Topic match: %s\n\n", res.Topic)
	fmt.Fprintf(&sb, "- %d yes, %d no, %d unknown\n\n", res.Yes, res.No, res.Unknown)
	sb.WriteString("| # | Company | Match | Note |\n|---|---|---|---|\n")
	for _, d := range res.Decisions {
		note := d.Reason
		if d.Cached {
			note = "cached"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", d.Index+1, cell(d.Lead.DisplayName()), d.Match, cell(note))
	}
	return sb.String()
}

// Posts renders the posts that passed the topic filter.
func Posts(topic string, total int, relevant []oracle.Post) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Posts about %s\n\n%d of %d posts matched.\n\n", topic, len(relevant), total)
	for _, p := range relevant {
		fmt.Fprintf(&sb, "- [%s](%s)", p.Title, p.URL)
		if p.Source != "" {
			fmt.Fprintf(&sb, " (%s)", p.Source)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Intel renders sales intelligence for one company.
func Intel(l lead.Lead, si oracle.SalesIntelligence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", l.DisplayName())
	if !si.Available {
		fmt.Fprintf(&sb, "Sales intelligence unavailable: %s\n", si.Error)
		return sb.String()
	}
	if si.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", si.Summary)
	}
	writeList(&sb, "Pain points", si.PainPoints)
	writeList(&sb, "Talking points", si.TalkingPoints)
	if si.Approach != "" {
		fmt.Fprintf(&sb, "\n## Approach\n\n%s\n", si.Approach)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

// cell escapes a value for a Markdown table.
func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
