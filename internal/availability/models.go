// Package availability implements the portal-wide ONLINE/SCHEDULED/MAINTENANCE
// state machine that gates every non-admin request, with realtime propagation
// to connected sessions.
package availability

import "time"

// Mode is the portal availability mode.
type Mode string

const (
	// ModeOnline serves everyone.
	ModeOnline Mode = "ONLINE"
	// ModeScheduled announces an upcoming maintenance window; advisory only,
	// access is not blocked.
	ModeScheduled Mode = "SCHEDULED"
	// ModeMaintenance locks out everyone except ADMIN.
	ModeMaintenance Mode = "MAINTENANCE"
)

// Status is the externally persisted availability singleton. The core holds
// a cached, subscribable copy.
type Status struct {
	Mode           Mode      `json:"mode"`
	Message        string    `json:"message,omitempty"`
	ScheduledStart time.Time `json:"scheduledStart,omitempty"`
	ScheduledEnd   time.Time `json:"scheduledEnd,omitempty"`
	ChangedBy      string    `json:"changedBy,omitempty"`
}

// Online is the initial status of a fresh deployment.
func Online() Status {
	return Status{Mode: ModeOnline}
}

// windowReached reports whether the scheduled window has started at now.
func (s Status) windowReached(now time.Time) bool {
	return s.Mode == ModeScheduled && !s.ScheduledStart.IsZero() && !now.Before(s.ScheduledStart)
}
