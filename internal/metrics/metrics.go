// Package metrics exposes Prometheus instrumentation for the storefront.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Recommendation gateway
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_recommendations_total",
			Help: "Recommendation requests by outcome (ok, unavailable, failed)",
		},
		[]string{"outcome"},
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_recommendation_duration_seconds",
			Help:    "Time spent in the recommendation gateway",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	StaleSearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_stale_searches_total",
			Help: "Search responses discarded because a newer search or a clear superseded them",
		},
	)

	// Cart
	CartOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Cart mutations by operation",
		},
		[]string{"operation"}, // add, remove, adjust, open, close
	)

	CheckoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Completed checkouts",
		},
	)

	CheckoutValue = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_checkout_value_total",
			Help: "Sum of checkout subtotals",
		},
	)

	OrdersEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_enqueued_total",
			Help: "Checkout hand-offs to the fulfilment queue by result (ok, error)",
		},
		[]string{"result"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sessions_active",
			Help: "Visitor sessions currently held in memory",
		},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served request. route must be a fixed
// pattern, never a raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCartOperation counts a cart mutation.
func RecordCartOperation(op string) {
	CartOperationsTotal.WithLabelValues(op).Inc()
}

// RecordCheckout counts a completed order and its value.
func RecordCheckout(subtotal float64) {
	CheckoutsTotal.Inc()
	if subtotal > 0 {
		CheckoutValue.Add(subtotal)
	}
}

// RecordOrderEnqueued counts a fulfilment hand-off attempt.
func RecordOrderEnqueued(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OrdersEnqueuedTotal.WithLabelValues(result).Inc()
}

// RecordStaleSearch counts a discarded search response.
func RecordStaleSearch() {
	StaleSearchesTotal.Inc()
}

// RecordRateLimited counts a rejected request.
func RecordRateLimited(route string) {
	RateLimitedTotal.WithLabelValues(route).Inc()
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(n int) {
	SessionsActive.Set(float64(n))
}

// Recommendations adapts the gateway observer hook onto Prometheus.
type Recommendations struct{}

// ObserveRecommendation records one gateway invocation.
func (Recommendations) ObserveRecommendation(outcome string, elapsed time.Duration) {
	RecommendationsTotal.WithLabelValues(outcome).Inc()
	RecommendationDuration.Observe(elapsed.Seconds())
}
