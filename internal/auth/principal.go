// Copyright (c) 2026 FieldServe. All rights reserved.

/*
Package auth implements the authentication and session lifecycle layer.

It covers credential verification, brute-force lockout, signed bearer-token
issuance, refresh-token handling, and password recovery for FieldServe
principals (field technicians, zone managers, helpdesk staff).

# Architecture

This layer is the "Truth" of the identity system. The [Principal] entity and
the lockout state machine have no external dependencies; the [Service]
orchestrates them against the credential store and the token codec.
*/
package auth

import (
	"time"

	"github.com/nordventa/fieldserve/internal/platform/sec"
)

// # Domain Entities

// Principal represents a FieldServe account as seen by the authentication
// subsystem. Only auth-relevant fields are modeled here; ticket assignments,
// zone memberships and the rest of the CRM profile live in their own modules.
type Principal struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     sec.Role `json:"role"`
	IsActive bool     `json:"is_active"`

	// CustomerID is set for EXTERNAL_USER accounts that belong to a customer
	// organisation; it travels inside the access token so the portal can
	// scope queries without a second lookup.
	CustomerID *int64 `json:"customer_id,omitempty"`

	PasswordHash string `json:"-"` // Explicitly omitted from JSON for security.

	// Lockout bookkeeping. Reconstructed into a lockout state on every
	// evaluation; nothing is cached in memory.
	FailedLoginAttempts int        `json:"-"`
	AccountLockedUntil  *time.Time `json:"-"`

	// TokenVersion is the opaque value embedded in every issued token.
	// Replacing it invalidates all outstanding tokens for this principal.
	TokenVersion string `json:"-"`

	// RefreshToken is the last refresh token persisted for this principal.
	// It exists only for the legacy verbatim-match fallback during refresh.
	RefreshToken *string `json:"-"`

	// Password reset fields. Set together, cleared together.
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	// Observability timestamps. Never gate logic.
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	LastActiveAt       *time.Time `json:"last_active_at,omitempty"`
	LastPasswordChange *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTokenVersion reports whether the principal already carries a usable
// token version. Fresh accounts have either an empty string or the
// migration-era sentinel, both of which mean "mint one on next login".
func (principal *Principal) HasTokenVersion() bool {
	return principal.TokenVersion != "" && principal.TokenVersion != TokenVersionUnset
}

// Identity projects the principal down to the minimal shape attached to
// request contexts.
func (principal *Principal) Identity() *sec.Identity {
	return &sec.Identity{
		ID:         principal.ID,
		Role:       principal.Role,
		CustomerID: principal.CustomerID,
	}
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldUser            = "user"
	FieldMessage         = "message"
)
