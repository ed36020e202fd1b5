// Package domain holds the typed identifiers shared across modules. Keeping
// them in one place prevents accidental cross-assignment of, say, an
// organization id into a document id field.
package domain

import "github.com/google/uuid"

// PrincipalID identifies an authenticated actor (admin, quality, client).
type PrincipalID uuid.UUID

// OrganizationID identifies a client organization (tenant).
type OrganizationID uuid.UUID

// NodeID identifies a node in the document tree.
type NodeID uuid.UUID

// EntryID identifies an audit log entry.
type EntryID uuid.UUID

func (id PrincipalID) String() string    { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id NodeID) String() string         { return uuid.UUID(id).String() }
func (id EntryID) String() string        { return uuid.UUID(id).String() }

func (id PrincipalID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id NodeID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// NewPrincipalID returns a fresh random principal id.
func NewPrincipalID() PrincipalID { return PrincipalID(uuid.New()) }

// NewOrganizationID returns a fresh random organization id.
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }

// NewNodeID returns a fresh random document node id.
func NewNodeID() NodeID { return NodeID(uuid.New()) }

// NewEntryID returns a fresh random audit entry id.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// ParsePrincipalID parses a principal id from its string form.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := uuid.Parse(s)
	return PrincipalID(u), err
}

// ParseOrganizationID parses an organization id from its string form.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := uuid.Parse(s)
	return OrganizationID(u), err
}

// ParseNodeID parses a document node id from its string form.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	return NodeID(u), err
}

// ParseEntryID parses an audit entry id from its string form.
func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	return EntryID(u), err
}
