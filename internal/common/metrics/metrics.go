package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

var (
	PurchaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_operations_total",
			Help: "Total number of purchase session operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	PurchaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "purchase_operation_duration_seconds",
			Help:    "Duration of vendor calls made by the purchase session",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	PremiumActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "purchase_premium_active",
			Help: "1 when the current customer holds the configured entitlement",
		},
	)

	OfferingsCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerings_cache_requests_total",
			Help: "Offerings cache lookups by result",
		},
		[]string{"result"},
	)
)
