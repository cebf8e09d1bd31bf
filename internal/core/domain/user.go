package domain

import "time"

// Tier is the trust level of a linked identity account.
type Tier string

const (
	TierMain       Tier = "MAIN"
	TierAlt        Tier = "ALT"
	TierUnverified Tier = "UNVERIFIED"
)

// Verified reports whether the tier counts as a verified link. Only
// verified accounts qualify a user for role-derived permissions.
func (t Tier) Verified() bool {
	return t == TierMain || t == TierAlt
}

// User is an internal user record, created when a user first links an
// identity account.
type User struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IdentityAccount is one external identity linked to an internal user.
type IdentityAccount struct {
	UserID      string    `json:"user_id" db:"user_id"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Username    string    `json:"username" db:"username"`
	Tier        Tier      `json:"tier" db:"tier"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Name returns the best available human-readable name for the account.
func (a *IdentityAccount) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}
	return a.ExternalID
}

// IdentityProfile is the read-only view of an identity returned by the
// external identity provider.
type IdentityProfile struct {
	ExternalID  string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the username.
func (p *IdentityProfile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}
