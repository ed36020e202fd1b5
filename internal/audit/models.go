// Package audit records immutable structured events for every consequential
// action in the portal and supports forensic correlation over them. Entries
// are append-only; nothing in the core mutates or deletes them.
package audit

import (
	"time"

	id "certportal/pkg/domain"
)

// Category classifies audit entries by their primary purpose. This enables
// different retention policies and role-scoped investigation corpora.
type Category string

const (
	// CategoryAuth covers sign-in activity and session lifecycle.
	CategoryAuth Category = "AUTH"
	// CategoryData covers document tree and compliance mutations.
	CategoryData Category = "DATA"
	// CategorySystem covers availability transitions and operational governance.
	CategorySystem Category = "SYSTEM"
	// CategorySecurity covers access violations and tenant-isolation breaches.
	CategorySecurity Category = "SECURITY"
)

// Severity ranks an entry for alerting and investigation triage.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Outcome records whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// ActorRoleSystem marks entries produced without an authenticated actor,
// e.g. failed logins or server-originated transitions.
const ActorRoleSystem = "SYSTEM"

// InternalSourceAddress is the placeholder recorded for server-originated
// actions. Correlation treats it as benign and never groups entries by it.
const InternalSourceAddress = "internal"

// Action names an audited operation.
type Action string

const (
	// Auth actions
	ActionLoginSucceeded Action = "login_succeeded"
	ActionLoginFailed    Action = "login_failed"

	// Data actions
	ActionFolderCreated    Action = "folder_created"
	ActionDocumentUploaded Action = "document_uploaded"
	ActionNodeRenamed      Action = "node_renamed"
	ActionNodeMoved        Action = "node_moved"
	ActionNodeDeleted      Action = "node_deleted"
	ActionDocumentApproved Action = "document_approved"
	ActionDocumentRejected Action = "document_rejected"
	ActionOrgCreated       Action = "organization_created"
	ActionOrgUpdated       Action = "organization_updated"
	ActionOrgDeactivated   Action = "organization_deactivated"
	ActionOrgReactivated   Action = "organization_reactivated"

	// System actions
	ActionMaintenanceScheduled Action = "maintenance_scheduled"
	ActionMaintenanceEntered   Action = "maintenance_entered"
	ActionMaintenanceCancelled Action = "maintenance_cancelled"
	ActionPortalOnline         Action = "portal_online"

	// Security actions
	ActionAccessDenied    Action = "access_denied"
	ActionTenantViolation Action = "tenant_isolation_violation"
)

// categoryByAction maps each action to its category so callers cannot
// misfile an entry. Unknown actions default to CategorySystem.
var categoryByAction = map[Action]Category{
	ActionLoginSucceeded: CategoryAuth,
	ActionLoginFailed:    CategoryAuth,

	ActionFolderCreated:    CategoryData,
	ActionDocumentUploaded: CategoryData,
	ActionNodeRenamed:      CategoryData,
	ActionNodeMoved:        CategoryData,
	ActionNodeDeleted:      CategoryData,
	ActionDocumentApproved: CategoryData,
	ActionDocumentRejected: CategoryData,
	ActionOrgCreated:       CategoryData,
	ActionOrgUpdated:       CategoryData,
	ActionOrgDeactivated:   CategoryData,
	ActionOrgReactivated:   CategoryData,

	ActionMaintenanceScheduled: CategorySystem,
	ActionMaintenanceEntered:   CategorySystem,
	ActionMaintenanceCancelled: CategorySystem,
	ActionPortalOnline:         CategorySystem,

	ActionAccessDenied:    CategorySecurity,
	ActionTenantViolation: CategorySecurity,
}

// Category returns the category for this action.
func (a Action) Category() Category {
	if cat, ok := categoryByAction[a]; ok {
		return cat
	}
	return CategorySystem
}

// Entry is a single immutable audit record.
type Entry struct {
	ID               id.EntryID
	Timestamp        time.Time
	ActorID          string // empty for unauthenticated events
	ActorDisplayName string
	ActorRole        string // SYSTEM when ActorID is empty
	Action           Action
	Category         Category
	Target           string
	Severity         Severity
	Outcome          Outcome
	SourceAddress    string
	Metadata         map[string]string
}
