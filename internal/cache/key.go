package cache

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Mode separates the two scoring protocols so a binary answer never
// overwrites a graded verdict for the same company and topic.
type Mode string

const (
	ModeGraded Mode = "graded"
	ModeBinary Mode = "binary"
)

// ErrNoDomain is returned when a website reference has no usable host.
var ErrNoDomain = errors.New("website has no domain")

// Key identifies one cached analysis.
type Key struct {
	Domain string
	Topic  string
	Mode   Mode
}

// NewKey normalizes website and topic into a Key.
func NewKey(website, topic string, mode Mode) (Key, error) {
	domain := NormalizeDomain(website)
	if domain == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrNoDomain, website)
	}
	return Key{Domain: domain, Topic: NormalizeTopic(topic), Mode: mode}, nil
}

func (k Key) String() string {
	return string(k.Mode) + "|" + k.Domain + "|" + k.Topic
}

// NormalizeDomain reduces a website reference to its lowercased host without
// scheme, port, path or leading "www.".
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + strings.TrimPrefix(s, "//")
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	return strings.TrimPrefix(host, "www.")
}

// NormalizeTopic trims, lowercases and collapses internal whitespace.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}
