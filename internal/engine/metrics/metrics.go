package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APICallsTotal tracks upstream calls per operation
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdvwatcher_api_calls_total",
			Help: "Total number of upstream API calls",
		},
		[]string{"operation"},
	)

	// APIErrorsTotal tracks classified upstream failures
	APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdvwatcher_api_errors_total",
			Help: "Total number of upstream API errors by classified kind",
		},
		[]string{"operation", "kind"},
	)

	// APILatency tracks upstream call latency
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rdvwatcher_api_latency_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// MembersByStatus tracks the roster composition
	MembersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rdvwatcher_members_by_status",
			Help: "Number of roster members per workflow status",
		},
		[]string{"status"},
	)

	// CyclesTotal counts completed periodic passes over the roster
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rdvwatcher_cycles_total",
			Help: "Total number of completed periodic monitoring cycles",
		},
	)

	// ConnectionLost is 1 while the monitor is in connection-lost mode
	ConnectionLost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rdvwatcher_connection_lost",
			Help: "Whether the monitor is in connection-lost recovery mode",
		},
	)

	// BookingsTotal counts successfully booked appointments
	BookingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rdvwatcher_bookings_total",
			Help: "Total number of appointments booked",
		},
	)

	// DocumentsDownloaded counts retrieved confirmation documents
	DocumentsDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rdvwatcher_documents_downloaded_total",
			Help: "Total number of confirmation documents downloaded",
		},
		[]string{"kind"},
	)
)
