package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certportal/internal/identity"
	id "certportal/pkg/domain"
	"certportal/pkg/requestcontext"
)

type capturingStore struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *capturingStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *capturingStore) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		matched = append(matched, e)
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *capturingStore) last(t *testing.T) Entry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.entries)
	return s.entries[len(s.entries)-1]
}

type failingStore struct{}

func (failingStore) Append(context.Context, Entry) error       { return errors.New("disk on fire") }
func (failingStore) List(context.Context, Filter) ([]Entry, error) { return nil, nil }

type panickingStore struct{}

func (panickingStore) Append(context.Context, Entry) error       { panic("store exploded") }
func (panickingStore) List(context.Context, Filter) ([]Entry, error) { return nil, nil }

func TestRecord_FillsDefaults(t *testing.T) {
	store := &capturingStore{}
	recorder := NewRecorder(store)

	actor := identity.Principal{
		ID:          id.NewPrincipalID(),
		DisplayName: "Quinn Quality",
		Role:        identity.RoleQuality,
	}
	recorder.Record(context.Background(), &actor, ActionDocumentApproved, "doc-1")

	entry := store.last(t)
	assert.False(t, entry.ID.IsNil())
	assert.Equal(t, CategoryData, entry.Category)
	assert.Equal(t, SeverityInfo, entry.Severity)
	assert.Equal(t, OutcomeSuccess, entry.Outcome)
	assert.Equal(t, actor.ID.String(), entry.ActorID)
	assert.Equal(t, "QUALITY", entry.ActorRole)
	assert.Equal(t, InternalSourceAddress, entry.SourceAddress,
		"no client address in context means the internal placeholder")
	assert.False(t, entry.Timestamp.IsZero())
}

func TestRecord_NilActorBecomesSystem(t *testing.T) {
	store := &capturingStore{}
	recorder := NewRecorder(store)

	recorder.Record(context.Background(), nil, ActionLoginFailed, "ghost@example.com",
		WithOutcome(OutcomeFailure))

	entry := store.last(t)
	assert.Empty(t, entry.ActorID)
	assert.Equal(t, ActorRoleSystem, entry.ActorRole)
	assert.Equal(t, OutcomeFailure, entry.Outcome)
}

func TestRecord_CarriesRequestContext(t *testing.T) {
	store := &capturingStore{}
	recorder := NewRecorder(store)

	ctx := requestcontext.WithClientIP(context.Background(), "203.0.113.9")
	ctx = requestcontext.WithUserAgent(ctx, "Firefox 128 (Linux)")
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	ctx = requestcontext.WithTime(ctx, now)

	recorder.Record(ctx, nil, ActionMaintenanceEntered, "portal",
		WithSeverity(SeverityWarning),
		WithMetadata("message", "quarterly patching"))

	entry := store.last(t)
	assert.Equal(t, "203.0.113.9", entry.SourceAddress)
	assert.Equal(t, now, entry.Timestamp)
	assert.Equal(t, SeverityWarning, entry.Severity)
	assert.Equal(t, "Firefox 128 (Linux)", entry.Metadata["user_agent"])
	assert.Equal(t, "req-42", entry.Metadata["request_id"])
	assert.Equal(t, "quarterly patching", entry.Metadata["message"])
}

func TestRecord_NeverPropagatesStoreFailures(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRecorder(failingStore{}).Record(context.Background(), nil, ActionNodeDeleted, "doc-1")
	})
	assert.NotPanics(t, func() {
		NewRecorder(panickingStore{}).Record(context.Background(), nil, ActionNodeDeleted, "doc-1")
	})
}

func TestRecord_SurvivesCancelledRequestContext(t *testing.T) {
	store := &capturingStore{}
	recorder := NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Record(ctx, nil, ActionPortalOnline, "portal")

	assert.Len(t, store.entries, 1, "the entry lands even when the request is already done")
}
