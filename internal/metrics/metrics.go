package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesTotal counts completed matches by what selected the action
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytematch_matches_total",
			Help: "Total number of completed matches",
		},
		[]string{"protocol", "kind"},
	)

	// SourceFailures counts matches aborted by a failing byte source
	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytematch_source_failures_total",
			Help: "Total number of matches aborted by the byte source",
		},
		[]string{"protocol"},
	)

	// CompileTotal counts rule set compilations by result
	CompileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytematch_compile_total",
			Help: "Total number of rule set compilations",
		},
		[]string{"result"},
	)

	// ErrorsTotal counts service errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bytematch_errors_total",
			Help: "Total number of service errors by type",
		},
		[]string{"type", "protocol"},
	)

	// Rules reports the size of the live rule set
	Rules = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bytematch_rules",
			Help: "Entries and trie nodes of the live rule set",
		},
		[]string{"kind"},
	)

	// MatchDuration tracks how long a match takes, including source reads
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bytematch_match_duration_seconds",
			Help:    "Match duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"protocol"},
	)
)

// Error type constants
const (
	ErrorTypeCompile     = "compile"
	ErrorTypeClientWrite = "client_write"
	ErrorTypeAccept      = "accept"
	ErrorTypeRulesLoad   = "rules_load"
	ErrorTypePolicyFetch = "policy_fetch"
)

// Compile results
const (
	CompileOK     = "ok"
	CompileFailed = "failed"
)
