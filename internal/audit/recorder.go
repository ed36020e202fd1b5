package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"certportal/internal/identity"
	"certportal/pkg/attrs"
	id "certportal/pkg/domain"
	"certportal/pkg/requestcontext"
)

// Store persists audit entries. Implementations must treat entries as
// append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Category Category
	ActorID  string
	Limit    int
}

// Recorder appends audit entries. Record never returns an error and never
// panics into the caller: a persistence failure must not block the business
// operation that triggered it, so failures go to the fallback channel instead.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	fallback *slog.Logger
	timeout  time.Duration
}

// Option configures a Recorder.
type Option func(r *Recorder)

// WithLogger sets the structured logger audit lines are mirrored to.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithTimeout bounds each store write.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		fallback: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		timeout:  8 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordOption adjusts a single entry before it is persisted.
type RecordOption func(e *Entry)

// WithSeverity overrides the default INFO severity.
func WithSeverity(s Severity) RecordOption {
	return func(e *Entry) { e.Severity = s }
}

// WithOutcome overrides the default SUCCESS outcome.
func WithOutcome(o Outcome) RecordOption {
	return func(e *Entry) { e.Outcome = o }
}

// WithSource overrides the source address derived from the request context.
func WithSource(addr string) RecordOption {
	return func(e *Entry) { e.SourceAddress = addr }
}

// WithMetadata attaches key/value metadata given as an attribute list
// [key1, value1, key2, value2, ...], matching the slog calling convention so
// call sites can share one attr list between log line and audit entry.
func WithMetadata(attrList ...any) RecordOption {
	return func(e *Entry) {
		for i := 0; i < len(attrList)-1; i += 2 {
			key, ok := attrList[i].(string)
			if !ok {
				continue
			}
			if val := attrs.ExtractString(attrList, key); val != "" {
				e.Metadata[key] = val
			}
		}
	}
}

// Record appends one audit entry. A nil actor is permitted for
// unauthenticated events and recorded with the SYSTEM role.
func (r *Recorder) Record(ctx context.Context, actor *identity.Principal, action Action, target string, opts ...RecordOption) {
	if r == nil {
		return
	}
	entry := Entry{
		ID:            id.NewEntryID(),
		Timestamp:     requestcontext.Now(ctx).UTC(),
		Action:        action,
		Category:      action.Category(),
		Target:        target,
		Severity:      SeverityInfo,
		Outcome:       OutcomeSuccess,
		SourceAddress: requestcontext.ClientIP(ctx),
		Metadata:      map[string]string{},
	}
	if actor != nil {
		entry.ActorID = actor.ID.String()
		entry.ActorDisplayName = actor.DisplayName
		entry.ActorRole = string(actor.Role)
	} else {
		entry.ActorRole = ActorRoleSystem
	}
	if entry.SourceAddress == "" {
		entry.SourceAddress = InternalSourceAddress
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		entry.Metadata["user_agent"] = ua
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		entry.Metadata["request_id"] = rid
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, string(action),
			"log_type", "audit",
			"category", string(entry.Category),
			"severity", string(entry.Severity),
			"outcome", string(entry.Outcome),
			"target", entry.Target,
			"actor_id", entry.ActorID,
		)
	}

	r.append(ctx, entry)
}

// append writes the entry, swallowing any failure into the fallback channel.
func (r *Recorder) append(ctx context.Context, entry Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fallback.Error("audit store panicked", "panic", rec, "action", string(entry.Action))
		}
	}()

	// Detach from request cancellation: the business operation may already be
	// finishing, but the entry still has to land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Append(writeCtx, entry); err != nil {
		r.fallback.Error("audit append failed",
			"error", err,
			"action", string(entry.Action),
			"target", entry.Target,
			"actor_id", entry.ActorID,
			"category", string(entry.Category),
		)
	}
}
