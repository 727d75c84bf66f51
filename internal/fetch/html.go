package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Elements that never carry company-describing text.
const noiseSelector = "script, style, nav, header, footer, iframe, noscript"

func parsePage(body []byte, pageURL *url.URL) (*ScrapedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}
	doc.Find(noiseSelector).Remove()

	headings := collectHeadings(doc)

	title := collapse(doc.Find("title").First().Text())
	if title == "" {
		title = metaContent(doc, "property", "og:title")
	}
	if title == "" {
		title = collapse(doc.Find("h1").First().Text())
	}

	description := metaContent(doc, "name", "description")
	if description == "" {
		description = metaContent(doc, "property", "og:description")
	}
	if description == "" && len(headings) > 0 {
		description = headings[0]
	}

	text := visibleText(doc.Find("body"))
	if text == "" {
		text = readableText(body, pageURL)
	}

	if title == "" && text == "" && len(headings) == 0 {
		return nil, ErrNoContent
	}

	return &ScrapedContent{
		Title:       title,
		Description: description,
		Headings:    headings,
		BodyText:    truncate(text, MaxBodyChars),
	}, nil
}

func collectHeadings(doc *goquery.Document) []string {
	var headings []string
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapse(s.Text()); t != "" {
			headings = append(headings, t)
		}
		return len(headings) < MaxHeadings
	})
	return headings
}

// metaContent returns the content of the first <meta> whose attr equals
// value, ignoring case.
func metaContent(doc *goquery.Document, attr, value string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(attr); ok && strings.EqualFold(strings.TrimSpace(v), value) {
			content = collapse(s.AttrOr("content", ""))
			return content == ""
		}
		return true
	})
	return content
}

// visibleText concatenates text nodes under sel with a space between them so
// adjacent block elements do not run together.
func visibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return collapse(sb.String())
}

func readableText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	return collapse(article.TextContent)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
