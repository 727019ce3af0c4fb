package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	OperationsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tiersync_operations_in_flight",
			Help: "Operations executing or suspended, by database",
		},
		[]string{"database"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_operations_total",
			Help: "Settled operations by database, stage and outcome",
		},
		[]string{"database", "stage", "outcome"},
	)

	OperationsSuperseded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_operations_superseded_total",
			Help: "Queued operations discarded by an interrupting operation",
		},
		[]string{"database", "stage"},
	)

	OfflineResumes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_offline_resumes_total",
			Help: "Remote stages re-run after connectivity returned",
		},
		[]string{"database", "stage"},
	)

	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tiersync_records_total",
			Help: "Active records by database and status",
		},
		[]string{"database", "status"},
	)

	// Tier metrics
	LocalRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tiersync_local_request_duration_seconds",
			Help:    "Local tier call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tiersync_remote_request_duration_seconds",
			Help:    "Remote tier call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_remote_requests_total",
			Help: "Remote tier calls by method and status code",
		},
		[]string{"method", "status"},
	)

	LiveMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_live_messages_total",
			Help: "Live channel messages by direction",
		},
		[]string{"direction"},
	)

	// Connectivity metrics
	Online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tiersync_online",
			Help: "Whether the remote service is reachable (1 = online, 0 = offline)",
		},
	)

	ConnectivityTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiersync_connectivity_transitions_total",
			Help: "Connectivity transitions by target state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(OperationsInFlight)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationsSuperseded)
	prometheus.MustRegister(OfflineResumes)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(LocalRequestDuration)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(LiveMessagesTotal)
	prometheus.MustRegister(Online)
	prometheus.MustRegister(ConnectivityTransitions)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
