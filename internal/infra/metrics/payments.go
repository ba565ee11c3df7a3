package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsTotal,
		gatewayCallLatency,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_total",
			Help: "Payments by status (pending/completed/failed/refunded).",
		},
		[]string{"status"},
	)

	gatewayCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_call_latency_ms",
			Help:    "Gateway call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"gateway", "operation", "success"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveGatewayLatency(gateway, operation string, success bool, d time.Duration) {
	gatewayCallLatency.WithLabelValues(norm(gateway), norm(operation), strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}
