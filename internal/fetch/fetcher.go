// Package fetch downloads company landing pages and reduces them to
// structured text.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/TobiSchelling/leadscout/internal/metrics"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 50 * 1024
	MaxHeadings         = 10
	MaxBodyChars        = 5000
	maxRedirects        = 10
)

var (
	ErrInvalidURL   = errors.New("invalid website url")
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
	ErrNoContent    = errors.New("no extractable content")
)

// StatusError reports a response with a 4xx or 5xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.Code, http.StatusText(e.Code))
}

// ScrapedContent is the structured text of one landing page.
type ScrapedContent struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Headings    []string  `json:"headings"`
	BodyText    string    `json:"body_text"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	Profile      Profile
	UserAgents   []string
	// Transport overrides the fingerprinted transport built from Profile.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Fetcher performs single-page GETs against company websites.
type Fetcher struct {
	client   *http.Client
	agents   *UserAgentPool
	maxBytes int64
	logger   *zap.Logger
}

// New creates a Fetcher.
func New(opts Options) (*Fetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	rt := opts.Transport
	if rt == nil {
		var err error
		if rt, err = Transport(opts.Profile); err != nil {
			return nil, err
		}
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: rt,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		agents:   NewUserAgentPool(opts.UserAgents),
		maxBytes: opts.MaxBodyBytes,
		logger:   opts.Logger,
	}, nil
}

// NormalizeURL turns a website reference into an absolute http(s) URL,
// defaulting to https when no scheme is given.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials in %q", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// Fetch downloads and parses the landing page behind raw. A non-nil error
// always comes with nil content; callers treat it as "not scraped".
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*ScrapedContent, error) {
	start := time.Now()
	content, n, err := f.fetch(ctx, raw)
	metrics.RecordFetch(outcome(err), time.Since(start), n)
	if err != nil {
		f.logger.Debug("fetch failed", zap.String("url", raw), zap.Error(err))
		return nil, err
	}
	f.logger.Debug("fetched page",
		zap.String("url", content.URL),
		zap.Int("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return content, nil
}

func (f *Fetcher) fetch(ctx context.Context, raw string) (*ScrapedContent, int, error) {
	target, err := NormalizeURL(raw)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", f.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("requesting %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, 0, &StatusError{Code: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, 0, fmt.Errorf("%w: content-length %d", ErrBodyTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, len(body), fmt.Errorf("reading %s: %w", target, err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, len(body), fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBytes)
	}

	decoded := body
	if r, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type")); err == nil {
		if b, err := io.ReadAll(r); err == nil {
			decoded = b
		}
	}

	content, err := parsePage(decoded, resp.Request.URL)
	if err != nil {
		return nil, len(body), err
	}
	content.URL = target
	content.FetchedAt = time.Now().UTC()
	return content, len(body), nil
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return metrics.FetchOK
	case errors.Is(err, ErrInvalidURL):
		return metrics.FetchInvalidURL
	case errors.As(err, &statusErr):
		return metrics.FetchHTTPError
	case errors.Is(err, ErrBodyTooLarge):
		return metrics.FetchOversize
	case errors.Is(err, ErrNoContent):
		return metrics.FetchParseError
	default:
		return metrics.FetchNetwork
	}
}
