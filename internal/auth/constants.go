// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"time"

	"github.com/nordventa/fieldserve/internal/platform/constants"
)

// # Authentication Constraints

const (
	// DefaultLockoutThreshold is the number of consecutive failed logins
	// that trips the account lock.
	DefaultLockoutThreshold = 5

	// DefaultLockoutDuration is how long a tripped lock stays active.
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultAccessTokenTTL is the duration a JWT access token remains valid.
	// Kept short to limit the blast radius of a leaked token.
	DefaultAccessTokenTTL = 1 * time.Hour

	// DefaultRefreshTokenTTL is the duration a refresh token remains valid.
	// Long-lived (30 days) so field technicians are not forced to re-enter
	// credentials on every shift.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultResetTokenTTL is the duration a password reset token remains
	// valid. Short-lived (1 hour) for security.
	DefaultResetTokenTTL = 1 * time.Hour

	// ResetTokenLength is the byte length of the random password reset token.
	ResetTokenLength = constants.ResetTokenLength

	// TokenVersionUnset is the sentinel stored on accounts that have never
	// been issued a token version.
	TokenVersionUnset = constants.TokenVersionUnset
)
