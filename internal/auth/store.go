// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/nordventa/fieldserve/pkg/pagination"
)

// # Credential Store Access

// PrincipalStore defines the data access contract for the auth-relevant
// subset of the account record. All mutations are optimistic last-write-wins:
// the lockout counter only needs approximate enforcement, and the token
// version comparison supplies the single strong-consistency guarantee the
// subsystem requires.
type PrincipalStore interface {

	/*
		FindByEmail returns the principal with the given email. The lookup is
		case-insensitive.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Principal: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Principal, error)

	/*
		FindByID returns the principal with the given ID.

		Parameters:
		  - context: context.Context
		  - id: int64

		Returns:
		  - *Principal: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id int64) (*Principal, error)

	/*
		FindByRefreshToken returns the principal whose stored refresh token
		equals the given string verbatim. Serves only the legacy refresh
		fallback branch.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - *Principal: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByRefreshToken(context context.Context, token string) (*Principal, error)

	/*
		FindByResetToken returns the principal whose stored reset token equals
		the given string AND whose reset expiry is after now AND who is active.
		A miss on any condition is a plain not-found; callers must not learn
		which condition failed.

		Parameters:
		  - context: context.Context
		  - token: string
		  - now: time.Time

		Returns:
		  - *Principal: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByResetToken(context context.Context, token string, now time.Time) (*Principal, error)

	/*
		SaveLockout persists the lockout bookkeeping after a failed login.
		This write happens even though the login request ultimately fails.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - state: LockoutState

		Returns:
		  - error: Persistence failures
	*/
	SaveLockout(context context.Context, principalID int64, state LockoutState) error

	/*
		RecordLoginSuccess clears the lockout fields and stamps the login
		timestamps in one statement.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - loginAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	RecordLoginSuccess(context context.Context, principalID int64, loginAt time.Time) error

	/*
		SetTokenVersion persists a freshly minted token version together with
		the refresh token issued under it (first login of a new account).

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - version: string
		  - refreshToken: string

		Returns:
		  - error: Persistence failures
	*/
	SetTokenVersion(context context.Context, principalID int64, version, refreshToken string) error

	/*
		SetRefreshToken replaces the stored refresh token only. Used by
		policy-gated rotation during refresh.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - refreshToken: *string (nil clears it, as on logout)

		Returns:
		  - error: Persistence failures
	*/
	SetRefreshToken(context context.Context, principalID int64, refreshToken *string) error

	/*
		BumpTokenVersion replaces the token version, invalidating every token
		minted under the previous one, and clears the stored refresh token.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - version: string

		Returns:
		  - error: Persistence failures
	*/
	BumpTokenVersion(context context.Context, principalID int64, version string) error

	/*
		TouchActivity stamps last_active_at. Fire-and-forget callers swallow
		the returned error after logging it.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - activeAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	TouchActivity(context context.Context, principalID int64, activeAt time.Time) error

	/*
		SetResetToken persists a reset token and its expiry together.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - token: string
		  - expiresAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	SetResetToken(context context.Context, principalID int64, token string, expiresAt time.Time) error

	/*
		ConsumeResetToken atomically sets the new password hash, clears both
		reset fields, clears the lockout fields, and stamps the password
		change — one statement, no intermediate state.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - newHash: string
		  - changedAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	ConsumeResetToken(context context.Context, principalID int64, newHash string, changedAt time.Time) error

	/*
		UpdatePassword replaces only the principal's password hash.

		Parameters:
		  - context: context.Context
		  - principalID: int64
		  - newHash: string
		  - changedAt: time.Time

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, principalID int64, newHash string, changedAt time.Time) error

	/*
		List returns a page of principals ordered by ID, for the admin user
		listing.

		Parameters:
		  - context: context.Context
		  - params: pagination.Params

		Returns:
		  - []*Principal: Page of entities
		  - int64: Total row count
		  - error: Database retrieval failures
	*/
	List(context context.Context, params pagination.Params) ([]*Principal, int64, error)
}
