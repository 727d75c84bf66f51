// Package oracle scores companies against a target topic with an LLM.
//
// Every operation degrades instead of failing: a missing provider, a provider
// error or an unparsable response yields an unknown verdict or match, never
// an error, so one bad company cannot sink a batch.
package oracle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/llm"
	"github.com/TobiSchelling/leadscout/internal/metrics"
	"github.com/TobiSchelling/leadscout/internal/ratelimit"
)

const (
	gradedTemperature = 0.2
	binaryTemperature = 0.0
	intelTemperature  = 0.4

	DefaultMaxTokens     = 800
	DefaultPostChunkSize = 20
)

// Options configures an Oracle. Zero values select the defaults.
type Options struct {
	// Pacer spaces sequential calls (graded batches, post chunks).
	Pacer         *ratelimit.Pacer
	MaxTokens     int
	PostChunkSize int
	Logger        *zap.Logger
}

// Oracle wraps an llm.Provider with the scoring prompts and parsers.
type Oracle struct {
	provider  llm.Provider
	pacer     *ratelimit.Pacer
	maxTokens int
	chunkSize int
	logger    *zap.Logger
}

// New creates an Oracle. provider may be nil, in which case every verdict
// is unknown.
func New(provider llm.Provider, opts Options) *Oracle {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.PostChunkSize <= 0 {
		opts.PostChunkSize = DefaultPostChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Oracle{
		provider:  provider,
		pacer:     opts.Pacer,
		maxTokens: opts.MaxTokens,
		chunkSize: opts.PostChunkSize,
		logger:    opts.Logger,
	}
}

// Available reports whether a provider is configured.
func (o *Oracle) Available() bool {
	return o.provider != nil
}

// AnalyzeCompanyRelevance grades one company against topic. content may be
// nil when the website could not be scraped.
func (o *Oracle) AnalyzeCompanyRelevance(ctx context.Context, l lead.Lead, content *fetch.ScrapedContent, topic string) Verdict {
	if o.provider == nil {
		metrics.RecordOracle("graded", "unconfigured")
		return Unknown("scoring unavailable: no scoring provider configured")
	}

	prompt := fmt.Sprintf(gradedPrompt, topic, describeLead(l), contentText(content))
	text, err := o.provider.Generate(ctx, prompt, llm.Options{
		System:      gradedSystem,
		Temperature: gradedTemperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		metrics.RecordOracle("graded", "error")
		o.logger.Warn("scoring call failed", zap.String("company", l.DisplayName()), zap.Error(err))
		return Unknown("scoring failed: " + err.Error())
	}

	v, err := ParseVerdict(text)
	if err != nil {
		metrics.RecordOracle("graded", "unparsable")
		o.logger.Warn("unparsable scoring response",
			zap.String("company", l.DisplayName()),
			zap.String("response", truncateForLog(text)),
		)
		return Unknown("scoring response could not be parsed")
	}

	metrics.RecordOracle("graded", "scored")
	o.logger.Debug("company scored",
		zap.String("company", l.DisplayName()),
		zap.Float64("score", v.Score),
		zap.Int("confidence", v.Confidence),
	)
	return v
}

// CheckCompanyTopicRelation asks a strict yes/no question. Yes requires the
// response to contain "YES"; any other answer is No. Without a usable
// provider the match is Unknown. The second value is the raw answer or the
// failure reason.
func (o *Oracle) CheckCompanyTopicRelation(ctx context.Context, l lead.Lead, content *fetch.ScrapedContent, topic string) (TopicMatch, string) {
	if o.provider == nil {
		metrics.RecordOracle("binary", "unconfigured")
		return MatchUnknown, "no scoring provider configured"
	}

	prompt := fmt.Sprintf(binaryPrompt, topic, describeLead(l), contentText(content))
	text, err := o.provider.Generate(ctx, prompt, llm.Options{
		System:      binarySystem,
		Temperature: binaryTemperature,
		MaxTokens:   5,
	})
	if err != nil {
		metrics.RecordOracle("binary", "error")
		o.logger.Warn("topic match call failed", zap.String("company", l.DisplayName()), zap.Error(err))
		return MatchUnknown, err.Error()
	}

	answer := strings.TrimSpace(text)
	match := MatchNo
	if strings.Contains(strings.ToUpper(answer), "YES") {
		match = MatchYes
	}
	metrics.RecordOracle("binary", match.String())
	return match, answer
}

// Candidate is a company and its scraped website, if any. Ref is an opaque
// caller reference carried through sorting.
type Candidate struct {
	Ref     int
	Lead    lead.Lead
	Content *fetch.ScrapedContent
}

// Analysis is a graded Candidate.
type Analysis struct {
	Candidate
	Verdict Verdict
}

// AnalyzeCompanies grades candidates one at a time, waiting on the pacer
// before each call, and returns them sorted by score descending. Ties keep
// input order. Candidates left when ctx ends get an unknown verdict.
func (o *Oracle) AnalyzeCompanies(ctx context.Context, candidates []Candidate, topic string) []Analysis {
	out := make([]Analysis, len(candidates))
	for i, c := range candidates {
		out[i].Candidate = c
		if err := o.pacer.Wait(ctx); err != nil {
			out[i].Verdict = Unknown("scoring skipped: " + err.Error())
			continue
		}
		out[i].Verdict = o.AnalyzeCompanyRelevance(ctx, c.Lead, c.Content, topic)
	}

	slices.SortStableFunc(out, func(a, b Analysis) int {
		switch {
		case a.Verdict.Score > b.Verdict.Score:
			return -1
		case a.Verdict.Score < b.Verdict.Score:
			return 1
		default:
			return 0
		}
	})
	return out
}

func truncateForLog(s string) string {
	return clip(s, 200)
}

// clip shortens s to n runes and marks the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
