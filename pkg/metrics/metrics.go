package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Peer catalogue metrics
	PeersKnown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dnsseed_peers_known",
			Help: "Number of peers in the catalogue",
		},
	)

	// Whitelist metrics
	WhitelistSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dnsseed_whitelist_size",
			Help: "Number of peers in the current whitelist",
		},
	)

	WhitelistLastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dnsseed_whitelist_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful whitelist refresh",
		},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsseed_refresh_total",
			Help: "Total number of refresh cycles by result",
		},
		[]string{"result"},
	)

	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dnsseed_refresh_duration_seconds",
			Help:    "Time taken by one refresh cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Master file metrics
	MasterFileRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dnsseed_masterfile_records",
			Help: "Number of records in the published master file",
		},
	)

	MasterFileSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dnsseed_masterfile_save_duration_seconds",
			Help:    "Time taken to persist the master file in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MasterFileSaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsseed_masterfile_save_failures_total",
			Help: "Total number of failed master file writes",
		},
	)

	// DNS metrics
	DNSQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsseed_dns_queries_total",
			Help: "Total number of DNS queries by question type and response code",
		},
		[]string{"qtype", "rcode"},
	)

	DNSQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dnsseed_dns_query_duration_seconds",
			Help:    "DNS query handling time in seconds",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		},
		[]string{"qtype"},
	)
)

// Refresh results used as the "result" label of RefreshTotal
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPanic   = "panic"
)

func init() {
	prometheus.MustRegister(PeersKnown)
	prometheus.MustRegister(WhitelistSize)
	prometheus.MustRegister(WhitelistLastRefresh)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(MasterFileRecords)
	prometheus.MustRegister(MasterFileSaveDuration)
	prometheus.MustRegister(MasterFileSaveFailures)
	prometheus.MustRegister(DNSQueriesTotal)
	prometheus.MustRegister(DNSQueryDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
