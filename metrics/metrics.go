// Package metrics registers the Prometheus collectors for the settlement
// service. Collectors register once at package init; handlers label by
// outcome rather than per-participant to keep cardinality flat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "purge"
	subsystem = "settlement"
)

var (
	ContributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "contributions_total",
		Help:      "Burn contributions processed, by result.",
	}, []string{"result"})

	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "wagers_total",
		Help:      "Wager records processed, by result.",
	}, []string{"result"})

	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "resolutions_total",
		Help:      "Level resolutions, by outcome.",
	}, []string{"outcome"})

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "claims_total",
		Help:      "Claim attempts, by result.",
	}, []string{"result"})

	ClaimPayoutBase = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "claim_payout_base_units_total",
		Help:      "Base units paid out through claims.",
	})

	ResolveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "resolve_seconds",
		Help:      "Wall time spent resolving a level.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
