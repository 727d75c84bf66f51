package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	FetchOK         = "ok"
	FetchInvalidURL = "invalid_url"
	FetchNetwork    = "network_error"
	FetchHTTPError  = "http_error"
	FetchOversize   = "oversize"
	FetchParseError = "parse_error"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_fetch_requests_total",
			Help: "Website fetches by outcome",
		},
		[]string{"outcome"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadscout_fetch_duration_seconds",
			Help:    "Duration of website fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	FetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscout_fetch_bytes_total",
			Help: "Total bytes downloaded from company websites",
		},
	)

	OracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_oracle_calls_total",
			Help: "Scoring oracle calls by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_cache_lookups_total",
			Help: "Analysis cache lookups by mode and result (hit, miss, stale, error)",
		},
		[]string{"mode", "result"},
	)

	EnrichedLeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_enrichment_leads_total",
			Help: "Leads leaving the enrichment pipeline by status",
		},
		[]string{"status"},
	)

	TopicMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_topic_matches_total",
			Help: "Binary topic-match decisions (yes, no, unknown)",
		},
		[]string{"match"},
	)
)

// RecordFetch updates the fetch metrics for one request.
func RecordFetch(outcome string, d time.Duration, bytes int) {
	FetchRequestsTotal.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(d.Seconds())
	if bytes > 0 {
		FetchBytesTotal.Add(float64(bytes))
	}
}

// RecordOracle counts one oracle call.
func RecordOracle(mode, outcome string) {
	OracleCallsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordCacheLookup counts one cache lookup.
func RecordCacheLookup(mode, result string) {
	CacheLookupsTotal.WithLabelValues(mode, result).Inc()
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
