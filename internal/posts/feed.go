// Package posts collects recent feed entries so they can be filtered by topic.
package posts

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/oracle"
)

const (
	maxPerFeed      = 20
	DefaultMaxItems = 100
)

// Collector reads RSS and Atom feeds.
type Collector struct {
	feeds    []string
	maxItems int
	parser   *gofeed.Parser
	logger   *zap.Logger
}

// NewCollector creates a Collector for the given feed URLs. maxItems caps the
// total number of posts returned.
func NewCollector(feeds []string, maxItems int, logger *zap.Logger) *Collector {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{feeds: feeds, maxItems: maxItems, parser: gofeed.NewParser(), logger: logger}
}

// Collect returns posts published at or after since from every feed. Posts
// without a date are kept. A feed that fails is logged and skipped.
func (c *Collector) Collect(ctx context.Context, since time.Time) []oracle.Post {
	var all []oracle.Post
	for _, feedURL := range c.feeds {
		if len(all) >= c.maxItems {
			break
		}
		feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			c.logger.Warn("feed not parsed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		posts := fromFeed(feed, SourceName(feedURL), since)
		c.logger.Info("feed parsed", zap.String("feed", feedURL), zap.Int("posts", len(posts)))
		all = append(all, posts...)
	}
	if len(all) > c.maxItems {
		all = all[:c.maxItems]
	}
	return all
}

// Parse reads one feed document.
func (c *Collector) Parse(r io.Reader, source string, since time.Time) ([]oracle.Post, error) {
	feed, err := c.parser.Parse(r)
	if err != nil {
		return nil, err
	}
	return fromFeed(feed, source, since), nil
}

func fromFeed(feed *gofeed.Feed, source string, since time.Time) []oracle.Post {
	var out []oracle.Post
	for _, item := range feed.Items {
		if len(out) >= maxPerFeed {
			break
		}
		p, ok := fromItem(item, source)
		if !ok {
			continue
		}
		if !p.Published.IsZero() && p.Published.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func fromItem(item *gofeed.Item, source string) (oracle.Post, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return oracle.Post{}, false
	}

	p := oracle.Post{Title: title, URL: link, Source: source}
	switch {
	case item.PublishedParsed != nil:
		p.Published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		p.Published = *item.UpdatedParsed
	}
	if item.Description != "" {
		p.Summary = plainText(item.Description)
	} else if item.Content != "" {
		p.Summary = plainText(item.Content)
	}
	return p, true
}

func plainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// SourceName derives a display name from a feed URL, e.g.
// "https://blog.acme.io/rss" becomes "Acme".
func SourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds.", "news."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	if name == "" {
		return host
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
