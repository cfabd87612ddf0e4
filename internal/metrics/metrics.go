package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "masterhand"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	paymentInits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initializations_total",
			Help:      "Payment initializations by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Gateway callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	refunds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Cancellation refunds by refund percentage.",
		},
		[]string{"percent"},
	)

	refundedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunded_amount_minor_total",
			Help:      "Total refunded amount in minor currency units.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, paymentInits, webhooks, refunds, refundedAmount)
	})
}

// ObserveHTTP records one served request.
func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncPaymentInit(provider string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	paymentInits.WithLabelValues(provider, outcome).Inc()
}

// IncWebhook counts a callback outcome, e.g. "completed", "failed", "duplicate", "invalid_signature".
func IncWebhook(outcome string) {
	webhooks.WithLabelValues(outcome).Inc()
}

func ObserveRefund(percent int, amount int64) {
	refunds.WithLabelValues(strconv.Itoa(percent)).Inc()
	if amount > 0 {
		refundedAmount.Add(float64(amount))
	}
}
