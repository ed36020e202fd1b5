//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Sink

// Package notify delivers user notifications as explicit post-commit events.
// Dispatch is fire-and-forget relative to the business operation that caused
// it: a delivery failure is logged and never propagates back.
package notify

import (
	"context"
	"log/slog"

	"certportal/internal/platform/metrics"
)

// Severity ranks a notification for client-side presentation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// TargetBroadcast addresses a notification to every principal.
const TargetBroadcast = "broadcast"

// Notification is one message to a principal, an organization's contacts, or
// everyone.
type Notification struct {
	Target   string   `json:"target"` // principal id, org:<id>, or "broadcast"
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Severity Severity `json:"severity"`
	Link     string   `json:"link,omitempty"`
}

// OrgTarget addresses the contacts of one organization.
func OrgTarget(orgID string) string { return "org:" + orgID }

// Sink is the delivery backend (Kafka in production, memory in tests).
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Dispatcher consumes queued notifications and hands them to the sink. It
// keeps background processing testable without wiring queue implementations
// into services.
type Dispatcher struct {
	sink    Sink
	queue   chan Notification
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(d *Dispatcher)

// WithLogger sets the logger for delivery failures and drops.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics wires the dropped-notification counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithQueueSize sets the buffered queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Notification, n) }
}

// NewDispatcher constructs a Dispatcher over the given sink.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan Notification, 256),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue queues a notification without blocking. When the queue is full the
// notification is dropped and counted; business operations never wait on
// delivery.
func (d *Dispatcher) Enqueue(n Notification) {
	if d == nil {
		return
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping",
			"target", n.Target,
			"title", n.Title,
		)
		if d.metrics != nil {
			d.metrics.NotificationsDropped.Inc()
		}
	}
}

// Run consumes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-d.queue:
			if err := d.sink.Deliver(ctx, n); err != nil {
				d.logger.Error("notification delivery failed",
					"error", err,
					"target", n.Target,
					"title", n.Title,
				)
			}
		}
	}
}
