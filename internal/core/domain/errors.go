package domain

import "errors"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEntryNotFound = errors.New("whitelist entry not found")
	ErrRoleNotFound  = errors.New("permission role not found")
	ErrRoleMapped    = errors.New("external role already mapped in realm")
)
