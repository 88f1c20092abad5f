package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook intake
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_webhook_requests_total",
			Help: "Total number of inbound Slack webhook requests",
		},
		[]string{"endpoint", "outcome"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slack_connector_webhook_duration_seconds",
			Help:    "Time spent handling an inbound webhook, including dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	VerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_verification_failures_total",
			Help: "Total number of requests rejected by signature verification",
		},
		[]string{"reason"},
	)

	SlackRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_slack_retries_total",
			Help: "Total number of requests Slack marked as retries",
		},
		[]string{"reason"},
	)

	// Routing
	RoutedPayloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_routed_payloads_total",
			Help: "Total number of classified payloads by type and routing action",
		},
		[]string{"type", "action"},
	)

	CorrelationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_correlation_lookups_total",
			Help: "Total number of correlation lookups by result",
		},
		[]string{"result"},
	)

	CorrelationRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_correlation_records_total",
			Help: "Total number of correlation records written by artifact type",
		},
		[]string{"artifact"},
	)

	RegistryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slack_connector_registry_duration_seconds",
			Help:    "Duration of subscriber registry lookups in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Dispatch
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_dispatches_total",
			Help: "Total number of per-subscriber deliveries by route and result",
		},
		[]string{"route", "result"},
	)

	DeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slack_connector_dead_lettered_total",
			Help: "Total number of deliveries written to the dead-letter stream",
		},
	)

	// Slack Web API
	SlackAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_connector_slack_api_calls_total",
			Help: "Total number of Slack Web API calls by method and result",
		},
		[]string{"method", "result"},
	)
)

// Result turns an error into the "ok"/"error" label used above.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
