package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

func TestVerifier_RoundTrip(t *testing.T) {
	verifier := NewVerifier("test-signing-key")
	orgID := id.NewOrganizationID()
	issued := Principal{
		ID:             id.NewPrincipalID(),
		DisplayName:    "Carla Client",
		Role:           RoleClient,
		OrganizationID: orgID,
		AccountStatus:  AccountActive,
	}

	token, err := verifier.Issue(issued, time.Hour)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, RoleClient, got.Role)
	assert.Equal(t, orgID, got.OrganizationID)
	assert.Equal(t, AccountActive, got.AccountStatus)
}

func TestVerifier_RejectsForeignKey(t *testing.T) {
	token, err := NewVerifier("key-a").Issue(Principal{ID: id.NewPrincipalID(), Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("key-b").Verify(token)
	assert.Error(t, err)
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	verifier := NewVerifier("test-signing-key")
	token, err := verifier.Issue(Principal{ID: id.NewPrincipalID(), Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}

func TestVerifier_CarriesBlockedFlag(t *testing.T) {
	verifier := NewVerifier("test-signing-key")
	token, err := verifier.Issue(Principal{
		ID: id.NewPrincipalID(), Role: RoleQuality, AccountStatus: AccountBlocked,
	}, time.Hour)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, AccountBlocked, got.AccountStatus)
}

func TestMemoryProvider_Authenticate(t *testing.T) {
	verifier := NewVerifier("test-signing-key")
	provider := NewMemoryProvider(verifier, time.Hour)

	admin := Principal{ID: id.NewPrincipalID(), DisplayName: "Ada Admin", Role: RoleAdmin, AccountStatus: AccountActive}
	require.NoError(t, provider.Register("ada", "correct horse", admin))

	t.Run("valid credentials yield a verifiable token", func(t *testing.T) {
		token, err := provider.Authenticate(context.Background(), "ada", "correct horse")
		require.NoError(t, err)

		got, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		_, wrongPass := provider.Authenticate(context.Background(), "ada", "nope")
		_, unknown := provider.Authenticate(context.Background(), "ghost", "nope")
		require.Error(t, wrongPass)
		require.Error(t, unknown)
		assert.Equal(t, dErrors.MessageOf(wrongPass), dErrors.MessageOf(unknown))
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		err := provider.Register("ada", "other", admin)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestMemoryProvider_BlockedAccountCannotSignIn(t *testing.T) {
	provider := NewMemoryProvider(NewVerifier("test-signing-key"), time.Hour)
	blocked := Principal{ID: id.NewPrincipalID(), Role: RoleClient,
		OrganizationID: id.NewOrganizationID(), AccountStatus: AccountBlocked}
	require.NoError(t, provider.Register("bob", "password", blocked))

	_, err := provider.Authenticate(context.Background(), "bob", "password")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}
