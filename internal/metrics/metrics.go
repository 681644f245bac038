package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookDeliveries *prometheus.CounterVec
	PollRequests      *prometheus.CounterVec
	UpstreamRequests  *prometheus.CounterVec
	UpstreamLatency   *prometheus.HistogramVec
	StoreEntries      *prometheus.GaugeVec
	Errors            *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Inbound webhook deliveries by source and outcome.",
			}, []string{"source", "outcome"}),
			PollRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_requests_total",
				Help:      "Browser poll requests by endpoint and result.",
			}, []string{"endpoint", "result"}),
			UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream HTTP requests by service, endpoint and status.",
			}, []string{"service", "endpoint", "status"}),
			UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency distribution for upstream HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"service", "endpoint", "status"}),
			StoreEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_entries",
				Help:      "Live entries per reconciliation store.",
			}, []string{"store"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookDeliveries,
			metricsInstance.PollRequests,
			metricsInstance.UpstreamRequests,
			metricsInstance.UpstreamLatency,
			metricsInstance.StoreEntries,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
