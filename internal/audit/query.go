package audit

import (
	"context"
	"errors"
	"time"

	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// defaultCorpusLimit bounds the corpus loaded for an investigation.
const defaultCorpusLimit = 1000

// Query serves read access to the audit log for staff. The corpus a caller
// may inspect depends on role: ADMIN sees everything, QUALITY only the
// DATA-category trail of the documents it works with.
type Query struct {
	store        Store
	storeTimeout time.Duration
}

// QueryOption configures a Query.
type QueryOption func(q *Query)

func WithQueryTimeout(d time.Duration) QueryOption {
	return func(q *Query) { q.storeTimeout = d }
}

// NewQuery constructs a Query over the given store.
func NewQuery(store Store, opts ...QueryOption) *Query {
	q := &Query{store: store, storeTimeout: 8 * time.Second}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Entries lists recent audit entries matching the filter, restricted to the
// caller's corpus.
func (q *Query) Entries(ctx context.Context, actor identity.Principal, filter Filter) ([]Entry, error) {
	if err := q.restrict(actor, &filter); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > defaultCorpusLimit {
		filter.Limit = defaultCorpusLimit
	}

	storeCtx, cancel := context.WithTimeout(ctx, q.storeTimeout)
	defer cancel()

	entries, err := q.store.List(storeCtx, filter)
	if err != nil {
		return nil, translateErr(err)
	}
	return entries, nil
}

// Investigate correlates one entry against the caller's corpus.
func (q *Query) Investigate(ctx context.Context, actor identity.Principal, entryID id.EntryID) (Entry, Investigation, error) {
	filter := Filter{Limit: defaultCorpusLimit}
	if err := q.restrict(actor, &filter); err != nil {
		return Entry{}, Investigation{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, q.storeTimeout)
	defer cancel()

	corpus, err := q.store.List(storeCtx, filter)
	if err != nil {
		return Entry{}, Investigation{}, translateErr(err)
	}

	for _, entry := range corpus {
		if entry.ID == entryID {
			return entry, Investigate(entry, corpus), nil
		}
	}
	return Entry{}, Investigation{}, dErrors.New(dErrors.CodeNotFound, "audit entry not found")
}

// restrict narrows the filter to the corpus the actor is entitled to.
func (q *Query) restrict(actor identity.Principal, filter *Filter) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleQuality:
		if filter.Category != "" && filter.Category != CategoryData {
			return dErrors.New(dErrors.CodeForbidden, "QUALITY may only inspect DATA-category entries")
		}
		filter.Category = CategoryData
		return nil
	default:
		return dErrors.New(dErrors.CodeForbidden, "audit access requires QUALITY or ADMIN role")
	}
}

func translateErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrTimeout) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "audit store timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
}
