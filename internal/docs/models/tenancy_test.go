package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certportal/internal/identity"
	dErrors "certportal/pkg/domain-errors"
	id "certportal/pkg/domain"
)

func staffPrincipal(role identity.Role) identity.Principal {
	return identity.Principal{
		ID:            id.NewPrincipalID(),
		DisplayName:   "staff",
		Role:          role,
		AccountStatus: identity.AccountActive,
	}
}

func TestVisibility_StaffSeesEverything(t *testing.T) {
	for _, role := range []identity.Role{identity.RoleAdmin, identity.RoleQuality} {
		scope, err := Visibility(staffPrincipal(role))
		require.NoError(t, err)
		assert.True(t, scope.All)
	}
}

func TestVisibility_OrphanedClientIsRejected(t *testing.T) {
	_, err := Visibility(identity.Principal{
		ID:            id.NewPrincipalID(),
		Role:          identity.RoleClient,
		AccountStatus: identity.AccountActive,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOrphanedAccount))
}

// The listing scenario from the portal access rules: a client sees folders
// plus only its own approved files.
func TestScope_ClientListing(t *testing.T) {
	acme := id.NewOrganizationID()
	other := id.NewOrganizationID()

	scope, err := Visibility(identity.Principal{
		ID:             id.NewPrincipalID(),
		Role:           identity.RoleClient,
		OrganizationID: acme,
		AccountStatus:  identity.AccountActive,
	})
	require.NoError(t, err)

	f1 := &DocumentNode{ID: id.NewNodeID(), Kind: KindFolder}
	f2 := &DocumentNode{
		ID: id.NewNodeID(), Kind: KindFile, OwnerOrganizationID: acme,
		Compliance: &ComplianceMetadata{Status: StatusApproved},
	}
	f3 := &DocumentNode{
		ID: id.NewNodeID(), Kind: KindFile, OwnerOrganizationID: other,
		Compliance: &ComplianceMetadata{Status: StatusApproved},
	}
	f4 := &DocumentNode{
		ID: id.NewNodeID(), Kind: KindFile, OwnerOrganizationID: acme,
		Compliance: &ComplianceMetadata{Status: StatusPending},
	}

	assert.True(t, scope.Allows(f1), "folders are always traversable")
	assert.True(t, scope.Allows(f2), "own approved file is visible")
	assert.False(t, scope.Allows(f3), "another organization's file is hidden")
	assert.False(t, scope.Allows(f4), "pending file is hidden even for the owner")
}

func TestScope_FoldersVisibleRegardlessOfOwner(t *testing.T) {
	scope := Scope{OwnerOrganizationID: id.NewOrganizationID()}
	foreign := &DocumentNode{ID: id.NewNodeID(), Kind: KindFolder, OwnerOrganizationID: id.NewOrganizationID()}
	assert.True(t, scope.Allows(foreign))
}

func TestScope_FileWithoutMetadataIsHidden(t *testing.T) {
	org := id.NewOrganizationID()
	scope := Scope{OwnerOrganizationID: org}
	assert.False(t, scope.Allows(&DocumentNode{ID: id.NewNodeID(), Kind: KindFile, OwnerOrganizationID: org}))
}
