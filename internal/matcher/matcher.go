// Package matcher answers a yes/no topic question for many companies at once,
// fetching and scoring each company as one unit of work.
package matcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/extract"
	"github.com/TobiSchelling/leadscout/internal/fetch"
	"github.com/TobiSchelling/leadscout/internal/lead"
	"github.com/TobiSchelling/leadscout/internal/metrics"
	"github.com/TobiSchelling/leadscout/internal/oracle"
	"github.com/TobiSchelling/leadscout/internal/workpool"
)

const (
	DefaultMaxConcurrent  = 10
	MaxConcurrentLimit    = 10
	DefaultWindowPause    = time.Second
	DefaultRequestTimeout = 5 * time.Minute
)

var (
	ErrNoCompanies = errors.New("no companies provided")
	ErrNoTopic     = errors.New("topic is required")
)

// Checker asks the binary topic question. *oracle.Oracle satisfies it.
type Checker interface {
	CheckCompanyTopicRelation(ctx context.Context, l lead.Lead, content *fetch.ScrapedContent, topic string) (oracle.TopicMatch, string)
}

type Request struct {
	Companies []lead.Lead
	Topic     string
	// MaxConcurrent is clamped to 1-10; zero selects the default.
	MaxConcurrent int
}

// Decision is the answer for one company. Index is its position in the
// request.
type Decision struct {
	Index  int               `json:"index"`
	Lead   lead.Lead         `json:"lead"`
	Match  oracle.TopicMatch `json:"match"`
	Reason string            `json:"reason,omitempty"`
	Cached bool              `json:"cached,omitempty"`
}

type Result struct {
	Topic string `json:"topic"`
	// Matched holds the Yes decisions in input order.
	Matched   []Decision `json:"matched"`
	Decisions []Decision `json:"decisions"`
	Yes       int        `json:"yes"`
	No        int        `json:"no"`
	Unknown   int        `json:"unknown"`
}

type Options struct {
	Cache          *cache.ResultCache
	WindowPause    time.Duration
	// RequestTimeout bounds one Match call. Units still running when it
	// expires end Unknown.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Matcher runs fetch+check units in windows of bounded concurrency.
type Matcher struct {
	fetcher fetch.PageFetcher
	checker Checker
	cache   *cache.ResultCache
	pause   time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Matcher. A negative WindowPause disables the wait between
// windows; zero selects DefaultWindowPause.
func New(f fetch.PageFetcher, c Checker, opts Options) *Matcher {
	if opts.WindowPause == 0 {
		opts.WindowPause = DefaultWindowPause
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Matcher{
		fetcher: f,
		checker: c,
		cache:   opts.Cache,
		pause:   max(opts.WindowPause, 0),
		timeout: opts.RequestTimeout,
		logger:  opts.Logger,
	}
}

// ClampConcurrency maps a requested concurrency onto 1-10, with zero meaning
// the default.
func ClampConcurrency(n int) int {
	if n == 0 {
		return DefaultMaxConcurrent
	}
	return min(max(n, 1), MaxConcurrentLimit)
}

// Match decides every company. Companies that cannot be fetched or checked
// are Unknown and never matched; only input errors are returned.
func (m *Matcher) Match(ctx context.Context, req Request) (*Result, error) {
	if len(req.Companies) == 0 {
		return nil, ErrNoCompanies
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, ErrNoTopic
	}
	concurrency := ClampConcurrency(req.MaxConcurrent)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	decisions := make([]Decision, len(req.Companies))
	for i, c := range req.Companies {
		decisions[i] = Decision{Index: i, Lead: c, Match: oracle.MatchUnknown, Reason: "not attempted"}
	}

	err := workpool.Windowed(ctx, len(decisions), concurrency, m.pause, func(ctx context.Context, i int) {
		decisions[i] = m.decide(ctx, i, req.Companies[i], req.Topic)
	})
	if err != nil {
		m.logger.Warn("topic match stopped early", zap.Error(err))
	}

	res := &Result{Topic: req.Topic, Decisions: decisions}
	for _, d := range decisions {
		switch d.Match {
		case oracle.MatchYes:
			res.Yes++
			res.Matched = append(res.Matched, d)
		case oracle.MatchNo:
			res.No++
		default:
			res.Unknown++
		}
		metrics.TopicMatchesTotal.WithLabelValues(d.Match.String()).Inc()
	}

	m.logger.Info("topic match complete",
		zap.String("topic", req.Topic),
		zap.Int("companies", len(decisions)),
		zap.Int("concurrency", concurrency),
		zap.Int("yes", res.Yes),
		zap.Int("no", res.No),
		zap.Int("unknown", res.Unknown),
	)
	return res, nil
}

func (m *Matcher) decide(ctx context.Context, i int, c lead.Lead, topic string) Decision {
	d := Decision{Index: i, Lead: c, Match: oracle.MatchUnknown}
	if !c.HasWebsite() {
		d.Reason = "no website"
		return d
	}

	key, keyErr := cache.NewKey(c.Website, topic, cache.ModeBinary)
	if keyErr == nil {
		if e, ok := m.cache.Lookup(ctx, key); ok && e.Match != oracle.MatchUnknown {
			d.Match = e.Match
			d.Cached = true
			return d
		}
	}

	content, err := m.fetcher.Fetch(ctx, c.Website)
	if err != nil {
		m.logger.Debug("company not fetched", zap.String("company", c.DisplayName()), zap.Error(err))
		d.Reason = "fetch failed: " + err.Error()
		return d
	}

	d.Match, d.Reason = m.checker.CheckCompanyTopicRelation(ctx, c, content, topic)
	if d.Match != oracle.MatchUnknown && keyErr == nil {
		m.cache.Put(ctx, cache.Entry{Key: key, Match: d.Match, Digest: extract.Digest(content)})
	}
	return d
}
