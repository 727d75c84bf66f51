// Package extract turns scraped pages into the bounded text block the
// relevance oracle reads.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/leadscout/internal/fetch"
)

const (
	// MaxChars bounds the full analysis text and the Content section.
	MaxChars = 2000
	// minSectionChars is the length a section value must exceed to be kept.
	minSectionChars = 10
)

// AnalysisText renders content as labeled sections. Nil content yields "".
func AnalysisText(content *fetch.ScrapedContent) string {
	if content == nil {
		return ""
	}

	var sections []string
	add := func(label, value string) {
		value = strings.TrimSpace(value)
		if utf8.RuneCountInString(value) <= minSectionChars {
			return
		}
		sections = append(sections, label+": "+value)
	}

	add("Title", content.Title)
	add("Description", content.Description)
	add("Key Sections", strings.Join(nonEmpty(content.Headings), " | "))
	add("Content", truncate(content.BodyText, MaxChars))

	return truncate(strings.Join(sections, "\n\n"), MaxChars)
}

// Digest is the text stored alongside cached verdicts: the page title
// followed by its analysis text.
func Digest(content *fetch.ScrapedContent) string {
	if content == nil {
		return ""
	}
	text := AnalysisText(content)
	if content.Title == "" {
		return text
	}
	return content.Title + "\n\n" + text
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
