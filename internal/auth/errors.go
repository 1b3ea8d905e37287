// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"fmt"
	"net/http"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
)

// # Error Taxonomy
//
// Constructors for every failure kind the authentication subsystem exposes.
// Each maps to a stable machine-readable code so clients can branch without
// parsing messages. Enumeration-sensitive failures (unknown email, wrong
// password) share one generic constructor.

// ErrMissingCredentials is returned when email or password is absent.
func ErrMissingCredentials() *apperr.AppError {
	return apperr.New(http.StatusBadRequest, apperr.CodeMissingCredentials, "Email and password are required")
}

// ErrInvalidCredentials is the generic wrong-email-or-password failure.
// The message never reveals whether the email exists.
func ErrInvalidCredentials() *apperr.AppError {
	return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidCredentials, "Invalid email or password")
}

// ErrInvalidCredentialsWithRemaining is the counted variant returned after a
// failed password check, telling the client how many attempts remain before
// the lock trips.
func ErrInvalidCredentialsWithRemaining(remaining int) *apperr.AppError {
	return apperr.New(
		http.StatusUnauthorized,
		apperr.CodeInvalidCredentials,
		fmt.Sprintf("Invalid email or password. %d attempts remaining before the account is locked.", remaining),
	)
}

// ErrAccountLocked is returned while the lockout window is active. The
// remaining duration is surfaced both in the message and as a Retry-After
// header via [apperr.AppError.RetryAfterSeconds].
func ErrAccountLocked(retryAfterSeconds int) *apperr.AppError {
	appError := apperr.New(
		http.StatusLocked,
		apperr.CodeAccountLocked,
		fmt.Sprintf("Account is temporarily locked. Try again in %d seconds.", retryAfterSeconds),
	)
	appError.RetryAfterSeconds = retryAfterSeconds
	return appError
}

// ErrAccountDeactivated is returned for administratively disabled accounts.
// Unlike invalid credentials this one is allowed to be explicit: deactivation
// is an administrative action, not a guessable secret.
func ErrAccountDeactivated() *apperr.AppError {
	return apperr.New(http.StatusForbidden, apperr.CodeAccountDeactivated, "This account has been deactivated. Contact your administrator.")
}

// ErrTokenExpired is returned when a token's signature verifies but its
// expiry has passed. Clients holding a refresh token should run the refresh
// protocol; others must log in again.
func ErrTokenExpired() *apperr.AppError {
	return apperr.New(http.StatusUnauthorized, apperr.CodeTokenExpired, "Token has expired")
}

// ErrInvalidToken is returned for malformed or tampered tokens. No refresh
// attempt will help; the client must re-authenticate.
func ErrInvalidToken() *apperr.AppError {
	return apperr.New(http.StatusUnauthorized, apperr.CodeInvalidToken, "Invalid authentication token")
}

// ErrTokenRevoked is returned when a structurally valid token carries a
// version that no longer matches the principal's stored one, or when the
// principal behind a valid token cannot be loaded. Both cases read as
// "revoked" so existence never leaks.
func ErrTokenRevoked() *apperr.AppError {
	return apperr.New(http.StatusUnauthorized, apperr.CodeTokenRevoked, "Session has been revoked. Please log in again.")
}

// ErrTokenVersionMismatch is the refresh-protocol variant of revocation:
// the refresh token is intact but minted under a superseded version, so the
// session cannot be silently healed.
func ErrTokenVersionMismatch() *apperr.AppError {
	return apperr.New(http.StatusUnauthorized, apperr.CodeTokenVersionMismatch, "Session is no longer valid. Please log in again.")
}

// ErrInvalidResetToken is the single generic failure for the reset-password
// flow. Expired, consumed, and never-issued tokens are indistinguishable to
// the caller to avoid oracle attacks.
func ErrInvalidResetToken() *apperr.AppError {
	return apperr.New(http.StatusBadRequest, apperr.CodeInvalidResetToken, "Invalid or expired password reset token")
}
