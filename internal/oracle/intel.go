package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/llm"
	"github.com/TobiSchelling/leadscout/internal/metrics"
)

// SalesIntelligence is a conversation brief for one company.
type SalesIntelligence struct {
	Available     bool     `json:"available"`
	Summary       string   `json:"summary"`
	PainPoints    []string `json:"pain_points,omitempty"`
	TalkingPoints []string `json:"talking_points,omitempty"`
	Approach      string   `json:"approach,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// GenerateSalesIntelligence drafts a brief. A response that is not JSON is
// kept verbatim as the summary.
func (o *Oracle) GenerateSalesIntelligence(ctx context.Context, l lead.Lead, content *fetch.ScrapedContent, topic string) SalesIntelligence {
	if o.provider == nil {
		metrics.RecordOracle("intel", "unconfigured")
		return SalesIntelligence{Error: "no scoring provider configured"}
	}

	prompt := fmt.Sprintf(intelPrompt, topic, describeLead(l), contentText(content))
	text, err := o.provider.Generate(ctx, prompt, llm.Options{
		System:      intelSystem,
		Temperature: intelTemperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		metrics.RecordOracle("intel", "error")
		o.logger.Warn("sales intelligence call failed", zap.String("company", l.DisplayName()), zap.Error(err))
		return SalesIntelligence{Error: err.Error()}
	}

	parsed := llm.ParseJSONResponse(text)
	if parsed == nil {
		metrics.RecordOracle("intel", "unparsable")
		return SalesIntelligence{Available: true, Summary: strings.TrimSpace(text)}
	}

	metrics.RecordOracle("intel", "ok")
	return SalesIntelligence{
		Available:     true,
		Summary:       strings.TrimSpace(getString(parsed, "summary")),
		PainPoints:    getStringSet(parsed, "pain_points"),
		TalkingPoints: getStringSet(parsed, "talking_points"),
		Approach:      strings.TrimSpace(getString(parsed, "approach")),
	}
}
