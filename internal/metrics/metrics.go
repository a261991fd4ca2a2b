// Package metrics defines Prometheus metrics for cloudhooks.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudhooks_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	HookInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_hook_invocations_total",
			Help: "Hook invocations by kind, name and outcome",
		},
		[]string{"kind", "name", "outcome"},
	)

	HookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudhooks_hook_duration_seconds",
			Help:    "Hook handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "name"},
	)

	HistoryEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_history_entries_total",
			Help: "History entries recorded by action",
		},
		[]string{"action"},
	)

	CascadeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_cascade_outcomes_total",
			Help: "Assignment cascade results",
		},
		[]string{"result"},
	)

	MailSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudhooks_mail_sent_total",
			Help: "Outbound mail attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	MailQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudhooks_mail_queue_depth",
			Help: "Current mail queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		HookInvocations, HookDuration,
		HistoryEntries, CascadeOutcomes,
		MailSent, MailQueueDepth,
	)
}
