package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLookupsTotal) }

var rateLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_rate_lookups_total",
		Help: "Exchange-rate resolutions by source tier (cache/store/api/fallback).",
	},
	[]string{"source"},
)

func IncRateLookup(source string) {
	rateLookupsTotal.WithLabelValues(norm(source)).Inc()
}
