package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPRequestsTotal counts HTTP requests by route, method and status
var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "homecare_http_requests_total",
		Help: "Total number of HTTP requests handled",
	},
	[]string{"path", "method", "status"},
)

// HTTPRequestDuration records HTTP request latency by route and method
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "homecare_http_request_duration_seconds",
		Help:    "Latency in seconds of handled HTTP requests",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"path", "method"},
)

// ScopeDecisions counts authorization decisions by permission level and outcome
var ScopeDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "homecare_scope_decisions_total",
		Help: "Total number of scope-resolution decisions",
	},
	[]string{"level", "outcome"},
)

// NotificationsSent counts notifications written by type
var NotificationsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "homecare_notifications_sent_total",
		Help: "Total number of notifications created",
	},
	[]string{"type"},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homecare_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homecare_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "homecare_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(ScopeDecisions, NotificationsSent)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
