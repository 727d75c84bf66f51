package oracle

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/leadscout/internal/extract"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
)

const gradedSystem = `You are a B2B sales research analyst. You judge whether a company fits a target profile using only the evidence provided. Respond with a single JSON object and nothing else.`

const gradedPrompt = `Target profile: %s

Company:
%s

Website content:
%s

Decide how relevant this company is to the target profile.

Respond with ONLY this JSON:
{
    "is_relevant": true or false,
    "confidence": 0-100,
    "score": 0-10,
    "reasoning": "One or two sentences citing the evidence",
    "key_matches": ["terms or facts from the content that match the profile"],
    "concerns": ["anything that argues against a fit"]
}

score: 10 = clearly within the target profile, 5 = plausible fit, 0 = unrelated.
If the website content is missing, judge from the company fields and lower your confidence.`

const binarySystem = `You classify companies. Answer with exactly one word: YES or NO.`

const binaryPrompt = `Is this company related to "%s"?

Company:
%s

Website content:
%s

Answer YES if the company's products, services or market are related to the topic. Otherwise answer NO.`

const intelSystem = `You are a B2B sales strategist preparing a rep for a first conversation. Respond with a single JSON object and nothing else.`

const intelPrompt = `We sell into the "%s" space.

Company:
%s

Website content:
%s

Respond with ONLY this JSON:
{
    "summary": "What the company does, in two sentences",
    "pain_points": ["likely problems related to our space"],
    "talking_points": ["concrete openers for the conversation"],
    "approach": "One sentence on how to approach them"
}`

const postsSystem = `You filter lists of posts by topic. Respond with a JSON array of numbers and nothing else.`

const postsPrompt = `Topic: %s

Posts:
%s

Return the IDs of the posts that are about the topic, e.g. [2, 5]. Return [] if none are.`

const noContent = "(no website content available)"

func describeLead(l lead.Lead) string {
	lines := []string{"Name: " + l.DisplayName()}
	for _, f := range []struct{ label, value string }{
		{"Website", l.Website},
		{"Industry", l.Industry},
		{"Location", l.Location},
		{"Employees", l.EmployeeCount},
		{"Description", l.Description},
	} {
		if f.value != "" {
			lines = append(lines, f.label+": "+f.value)
		}
	}
	return strings.Join(lines, "\n")
}

func contentText(content *fetch.ScrapedContent) string {
	if text := extract.AnalysisText(content); text != "" {
		return text
	}
	return noContent
}

func formatPosts(posts []Post, offset int) string {
	var sb strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&sb, "[%d] %s", offset+i+1, p.Title)
		if summary := strings.TrimSpace(p.Summary); summary != "" {
			sb.WriteString(" - " + clip(summary, 280))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
