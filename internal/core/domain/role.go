package domain

import "time"

// PermissionRole maps an external role (a role on the chat platform) to a
// set of internal permission tokens, scoped to a single realm.
type PermissionRole struct {
	ID             int64     `json:"id" db:"id"`
	RealmID        string    `json:"realm_id" db:"realm_id"`
	ExternalRoleID *string   `json:"external_role_id,omitempty" db:"external_role_id"`
	Permissions    string    `json:"permissions" db:"permissions"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Tokens parses the comma-joined permission string of the role.
func (r *PermissionRole) Tokens() []Token {
	return ParseTokens(r.Permissions)
}

// Mapped reports whether the role is bound to an external role id.
// Unmapped roles exist transiently and never match a sync.
func (r *PermissionRole) Mapped() bool {
	return r.ExternalRoleID != nil && *r.ExternalRoleID != ""
}
