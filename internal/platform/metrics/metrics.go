// Package metrics holds all Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	DocumentsUploaded       prometheus.Counter
	Inspections             *prometheus.CounterVec
	AuditEntries            *prometheus.CounterVec
	AvailabilityTransitions *prometheus.CounterVec
	NotificationsDropped    prometheus.Counter
	RequestDuration         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DocumentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certportal_documents_uploaded_total",
			Help: "Total number of documents uploaded",
		}),
		Inspections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_inspections_total",
			Help: "Total number of compliance inspections by decision",
		}, []string{"decision"}),
		AuditEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_audit_entries_total",
			Help: "Total number of audit entries recorded by category",
		}, []string{"category"}),
		AvailabilityTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certportal_availability_transitions_total",
			Help: "Total number of availability mode transitions by target mode",
		}, []string{"mode"}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certportal_notifications_dropped_total",
			Help: "Total number of notifications dropped due to a full queue",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certportal_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status class",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}
