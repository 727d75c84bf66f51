package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/workpool"
)

const (
	DefaultPoolSize  = 5
	DefaultPoolPause = time.Second
)

// PageFetcher is the single-page contract the pool and matcher depend on.
type PageFetcher interface {
	Fetch(ctx context.Context, raw string) (*ScrapedContent, error)
}

var _ PageFetcher = (*Fetcher)(nil)

// Pool fetches many pages in windows of bounded concurrency.
type Pool struct {
	fetcher PageFetcher
	size    int
	pause   time.Duration
	logger  *zap.Logger
}

// NewPool creates a Pool. size below 1 is raised to 1; a negative pause
// disables the wait between windows.
func NewPool(f PageFetcher, size int, pause time.Duration, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if pause < 0 {
		pause = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{fetcher: f, size: size, pause: pause, logger: logger}
}

// FetchAll fetches every distinct URL and returns the successes keyed by the
// URL string exactly as passed in. Failed URLs have no entry.
func (p *Pool) FetchAll(ctx context.Context, urls []string) map[string]*ScrapedContent {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	results := make(map[string]*ScrapedContent, len(unique))
	var mu sync.Mutex

	err := workpool.Windowed(ctx, len(unique), p.size, p.pause, func(ctx context.Context, i int) {
		content, err := p.fetcher.Fetch(ctx, unique[i])
		if err != nil {
			p.logger.Info("website not scraped", zap.String("url", unique[i]), zap.Error(err))
			return
		}
		mu.Lock()
		results[unique[i]] = content
		mu.Unlock()
	})
	if err != nil {
		p.logger.Warn("fetch pool stopped early", zap.Error(err), zap.Int("fetched", len(results)), zap.Int("requested", len(unique)))
	}

	p.logger.Info("fetch pool complete", zap.Int("requested", len(unique)), zap.Int("fetched", len(results)))
	return results
}
