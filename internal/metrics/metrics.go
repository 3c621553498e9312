package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enever_api_requests_total",
		Help: "Total number of requests issued to the pricing API.",
	}, []string{"feed"})

	APIRequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enever_api_request_errors_total",
		Help: "Total number of failed pricing API requests.",
	}, []string{"feed", "kind"})

	MonthlyRequestCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enever_monthly_request_count",
		Help: "Pricing API requests issued in the current month.",
	})

	MonthlyRequestQuota = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enever_monthly_request_quota",
		Help: "Configured monthly pricing API request allowance.",
	})

	PriceQuotesCached = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enever_price_quotes_cached",
		Help: "Number of price quotes currently cached per feed and day.",
	}, []string{"feed", "day"})

	JobLastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enever_job_last_run_timestamp_seconds",
		Help: "Unix time of the last run per scheduled job.",
	}, []string{"job"})

	JobLastRunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enever_job_last_run_duration_seconds",
		Help: "Duration of the last run per scheduled job.",
	}, []string{"job"})

	JobLastRunSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enever_job_last_run_success",
		Help: "Whether the last run per scheduled job succeeded (1) or failed (0).",
	}, []string{"job"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enever_http_requests_total",
		Help: "Total HTTP requests served, by handler and status code.",
	}, []string{"handler", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enever_http_request_duration_seconds",
		Help:    "HTTP request latency, by handler.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})
)

// UpdateJobMetrics records the outcome of one scheduled job run.
func UpdateJobMetrics(job string, started time.Time, err error) {
	JobLastRunTimestamp.WithLabelValues(job).Set(float64(started.Unix()))
	JobLastRunDuration.WithLabelValues(job).Set(time.Since(started).Seconds())
	if err != nil {
		JobLastRunSuccess.WithLabelValues(job).Set(0)
	} else {
		JobLastRunSuccess.WithLabelValues(job).Set(1)
	}
}
