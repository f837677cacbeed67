// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Marketplace metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	SalesTotal        prometheus.Counter
	SaleVolume        prometheus.Counter
	FeesCollected     prometheus.Counter
	RewardsMinted     prometheus.Counter
	ActiveListings    prometheus.Gauge

	// Event metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	FeedSubscribers prometheus.Gauge

	// Verification metrics
	VerifierResults *prometheus.CounterVec
	RPCCallLatency  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSale prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "nft_escrow_market"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Marketplace metrics
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "operations_total",
			Help:      "Total number of marketplace operations by outcome",
		}, []string{"operation", "status"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "operation_duration_seconds",
			Help:      "Marketplace operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		SalesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "sales_total",
			Help:      "Total number of settled purchases",
		}),
		SaleVolume: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "sale_volume_lamports_total",
			Help:      "Total lamports paid by takers",
		}),
		FeesCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "fees_collected_lamports_total",
			Help:      "Total lamports credited to registry treasuries",
		}),
		RewardsMinted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "rewards_minted_total",
			Help:      "Total reward token base units minted to takers",
		}),
		ActiveListings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "active_listings",
			Help:      "Listings opened minus listings closed since start",
		}),

		// Event metrics
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type",
		}, []string{"type"}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of events a sink failed to accept",
		}, []string{"type"}),
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "feed_subscribers",
			Help:      "Current number of live feed subscribers",
		}),

		// Verification metrics
		VerifierResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Collection verification results",
		}, []string{"result"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSale: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sale_timestamp",
			Help:      "Unix timestamp of the last settled purchase",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and latency of one marketplace operation.
func (m *Metrics) RecordOperation(operation, status string, seconds float64) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordSale records a settled purchase.
func (m *Metrics) RecordSale(price, fee, reward uint64, unixSeconds int64) {
	m.SalesTotal.Inc()
	m.SaleVolume.Add(float64(price))
	m.FeesCollected.Add(float64(fee))
	m.RewardsMinted.Add(float64(reward))
	m.ActiveListings.Dec()
	m.LastSuccessfulSale.Set(float64(unixSeconds))
}

// RecordListed records a newly opened listing.
func (m *Metrics) RecordListed() {
	m.ActiveListings.Inc()
}

// RecordCancelled records a withdrawn listing.
func (m *Metrics) RecordCancelled() {
	m.ActiveListings.Dec()
}

// RecordPublish records delivery of an event to the configured sink.
func (m *Metrics) RecordPublish(eventType string, err error) {
	if err != nil {
		m.PublishErrors.WithLabelValues(eventType).Inc()
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordVerification records a collection verification result
// ("cached", "verified", "rejected" or "error").
func (m *Metrics) RecordVerification(result string) {
	m.VerifierResults.WithLabelValues(result).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SubscriberJoined increments the live feed subscriber gauge.
func SubscriberJoined() {
	DefaultMetrics.FeedSubscribers.Inc()
}

// SubscriberLeft decrements the live feed subscriber gauge.
func SubscriberLeft() {
	DefaultMetrics.FeedSubscribers.Dec()
}
