package domain

import "time"

// WhitelistEntry records that a user is on the whitelist. Its existence is
// necessary and sufficient for the user to appear in generated output,
// gated further by the user holding at least one identity account.
type WhitelistEntry struct {
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoleAssignment links a whitelist entry to a permission role.
type RoleAssignment struct {
	UserID     string     `json:"user_id" db:"user_id"`
	RoleID     int64      `json:"role_id" db:"role_id"`
	AssignedBy string     `json:"assigned_by" db:"assigned_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the assignment has an expiry in the past.
// Expired assignments are excluded from permission resolution but stay in
// the store until an explicit sweep removes them.
func (a *RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// UserView is one rendered whitelist row: a single identity account of a
// whitelisted user together with the user's effective permission set. A
// user with several accounts produces several views sharing one token set.
type UserView struct {
	UserID      string  `json:"user_id"`
	ExternalID  string  `json:"external_id"`
	DisplayName string  `json:"display_name"`
	Tokens      []Token `json:"tokens"`
}

// Statistics is the read-only aggregate over the whitelist store.
type Statistics struct {
	TotalUsers         int64 `json:"total_users"`
	TotalRoles         int64 `json:"total_roles"`
	ActiveAssignments  int64 `json:"active_assignments"`
	ExpiredAssignments int64 `json:"expired_assignments"`
}
