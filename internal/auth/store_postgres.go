// Copyright (c) 2026 FieldServe. All rights reserved.

// PostgreSQL implementation of the credential store.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped through
// [dberr.Wrap] to domain-friendly [apperr.AppError] types so storage details
// never leak to callers.
package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nordventa/fieldserve/internal/platform/dberr"
	"github.com/nordventa/fieldserve/pkg/pagination"
)

// principalColumns is the shared SELECT list for hydrating a [Principal].
const principalColumns = `
	id, email, name, passwordhash, role, customerid, isactive,
	failedloginattempts, accountlockeduntil, tokenversion, refreshtoken,
	passwordresettoken, passwordresetexpires,
	lastloginat, lastactiveat, lastpasswordchange, createdat, updatedat`

// PostgresPrincipalStore implements [PrincipalStore] using pgx.
type PostgresPrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPrincipalStore creates a PostgreSQL-backed credential store.
func NewPostgresPrincipalStore(pool *pgxpool.Pool) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{pool: pool}
}

// scanPrincipal hydrates one row into a [Principal].
func scanPrincipal(row pgx.Row) (*Principal, error) {
	principal := &Principal{}
	err := row.Scan(
		&principal.ID,
		&principal.Email,
		&principal.Name,
		&principal.PasswordHash,
		&principal.Role,
		&principal.CustomerID,
		&principal.IsActive,
		&principal.FailedLoginAttempts,
		&principal.AccountLockedUntil,
		&principal.TokenVersion,
		&principal.RefreshToken,
		&principal.PasswordResetToken,
		&principal.PasswordResetExpires,
		&principal.LastLoginAt,
		&principal.LastActiveAt,
		&principal.LastPasswordChange,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return principal, nil
}

/*
FindByEmail retrieves a principal by email, case-insensitively.

Description: Lookup against the functional LOWER(email) unique index.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Principal: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (store *PostgresPrincipalStore) FindByEmail(context context.Context, email string) (*Principal, error) {
	const query = `
		SELECT ` + principalColumns + `
		FROM users.account
		WHERE LOWER(email) = LOWER($1)`

	principal, err := scanPrincipal(store.pool.QueryRow(context, query, email))
	if err != nil {
		return nil, dberr.Wrap(err, "principal_store_find_by_email")
	}
	return principal, nil
}

/*
FindByID retrieves a principal by primary key.

Parameters:
  - context: context.Context
  - id: int64

Returns:
  - *Principal: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (store *PostgresPrincipalStore) FindByID(context context.Context, id int64) (*Principal, error) {
	const query = `
		SELECT ` + principalColumns + `
		FROM users.account
		WHERE id = $1`

	principal, err := scanPrincipal(store.pool.QueryRow(context, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "principal_store_find_by_id")
	}
	return principal, nil
}

/*
FindByRefreshToken retrieves a principal by verbatim stored refresh token.
Serves only the legacy refresh-compatibility branch.

Parameters:
  - context: context.Context
  - token: string

Returns:
  - *Principal: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (store *PostgresPrincipalStore) FindByRefreshToken(context context.Context, token string) (*Principal, error) {
	const query = `
		SELECT ` + principalColumns + `
		FROM users.account
		WHERE refreshtoken = $1`

	principal, err := scanPrincipal(store.pool.QueryRow(context, query, token))
	if err != nil {
		return nil, dberr.Wrap(err, "principal_store_find_by_refresh_token")
	}
	return principal, nil
}

/*
FindByResetToken retrieves an active principal holding an unexpired reset
token. All three conditions are folded into the WHERE clause so a miss never
reveals which one failed.

Parameters:
  - context: context.Context
  - token: string
  - now: time.Time

Returns:
  - *Principal: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (store *PostgresPrincipalStore) FindByResetToken(context context.Context, token string, now time.Time) (*Principal, error) {
	const query = `
		SELECT ` + principalColumns + `
		FROM users.account
		WHERE passwordresettoken = $1
		  AND passwordresetexpires > $2
		  AND isactive = TRUE`

	principal, err := scanPrincipal(store.pool.QueryRow(context, query, token, now))
	if err != nil {
		return nil, dberr.Wrap(err, "principal_store_find_by_reset_token")
	}
	return principal, nil
}

/*
SaveLockout persists the lockout counters after a failed login attempt.

Parameters:
  - context: context.Context
  - principalID: int64
  - state: LockoutState

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) SaveLockout(context context.Context, principalID int64, state LockoutState) error {
	const query = `
		UPDATE users.account
		SET failedloginattempts = $2, accountlockeduntil = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, state.FailedAttempts, state.LockedUntil)
	return dberr.Wrap(err, "principal_store_save_lockout")
}

/*
RecordLoginSuccess clears the lockout fields and stamps the login timestamps
in one statement.

Parameters:
  - context: context.Context
  - principalID: int64
  - loginAt: time.Time

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) RecordLoginSuccess(context context.Context, principalID int64, loginAt time.Time) error {
	const query = `
		UPDATE users.account
		SET failedloginattempts = 0,
		    accountlockeduntil = NULL,
		    lastloginat = $2,
		    lastactiveat = $2,
		    updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, loginAt)
	return dberr.Wrap(err, "principal_store_record_login_success")
}

/*
SetTokenVersion persists a fresh token version and its refresh token together
(first login of a new account).

Parameters:
  - context: context.Context
  - principalID: int64
  - version: string
  - refreshToken: string

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) SetTokenVersion(context context.Context, principalID int64, version, refreshToken string) error {
	const query = `
		UPDATE users.account
		SET tokenversion = $2, refreshtoken = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, version, refreshToken)
	return dberr.Wrap(err, "principal_store_set_token_version")
}

/*
SetRefreshToken replaces the stored refresh token only. A nil value clears it
(logout).

Parameters:
  - context: context.Context
  - principalID: int64
  - refreshToken: *string

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) SetRefreshToken(context context.Context, principalID int64, refreshToken *string) error {
	const query = `
		UPDATE users.account
		SET refreshtoken = $2, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, refreshToken)
	return dberr.Wrap(err, "principal_store_set_refresh_token")
}

/*
BumpTokenVersion replaces the token version and clears the stored refresh
token, invalidating every outstanding token for the principal.

Parameters:
  - context: context.Context
  - principalID: int64
  - version: string

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) BumpTokenVersion(context context.Context, principalID int64, version string) error {
	const query = `
		UPDATE users.account
		SET tokenversion = $2, refreshtoken = NULL, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, version)
	return dberr.Wrap(err, "principal_store_bump_token_version")
}

/*
TouchActivity stamps last_active_at. Callers on the hot path run this
fire-and-forget and swallow the error after logging.

Parameters:
  - context: context.Context
  - principalID: int64
  - activeAt: time.Time

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) TouchActivity(context context.Context, principalID int64, activeAt time.Time) error {
	const query = `UPDATE users.account SET lastactiveat = $2 WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, activeAt)
	return dberr.Wrap(err, "principal_store_touch_activity")
}

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
func (store *PostgresPrincipalStore) SetResetToken(context context.Context, principalID int64, token string, expiresAt time.Time) error {
	const query = `
		UPDATE users.account
		SET passwordresettoken = $2, passwordresetexpires = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, token, expiresAt)
	return dberr.Wrap(err, "principal_store_set_reset_token")
}

/*
ConsumeResetToken applies the whole reset in one UPDATE: new password hash,
reset fields cleared, lockout cleared, password-change stamped. There is no
intermediate state where the token is cleared but the password is not.

Parameters:
  - context: context.Context
  - principalID: int64
  - newHash: string
  - changedAt: time.Time

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) ConsumeResetToken(context context.Context, principalID int64, newHash string, changedAt time.Time) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2,
		    passwordresettoken = NULL,
		    passwordresetexpires = NULL,
		    failedloginattempts = 0,
		    accountlockeduntil = NULL,
		    lastpasswordchange = $3,
		    updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, newHash, changedAt)
	return dberr.Wrap(err, "principal_store_consume_reset_token")
}

/*
UpdatePassword replaces only the password hash.

Parameters:
  - context: context.Context
  - principalID: int64
  - newHash: string
  - changedAt: time.Time

Returns:
  - error: Persistence failures
*/
func (store *PostgresPrincipalStore) UpdatePassword(context context.Context, principalID int64, newHash string, changedAt time.Time) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, lastpasswordchange = $3, updatedat = NOW()
		WHERE id = $1`

	_, err := store.pool.Exec(context, query, principalID, newHash, changedAt)
	return dberr.Wrap(err, "principal_store_update_password")
}

/*
List returns a page of principals ordered by ID plus the total row count.

Parameters:
  - context: context.Context
  - params: pagination.Params

Returns:
  - []*Principal: Page of entities
  - int64: Total row count
  - error: Database retrieval failures
*/
func (store *PostgresPrincipalStore) List(context context.Context, params pagination.Params) ([]*Principal, int64, error) {
	const countQuery = `SELECT COUNT(*) FROM users.account`

	var total int64
	if err := store.pool.QueryRow(context, countQuery).Scan(&total); err != nil {
		return nil, 0, dberr.Wrap(err, "principal_store_count")
	}

	const query = `
		SELECT ` + principalColumns + `
		FROM users.account
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := store.pool.Query(context, query, params.Limit, params.Offset())
	if err != nil {
		return nil, 0, dberr.Wrap(err, "principal_store_list")
	}
	defer rows.Close()

	principals := make([]*Principal, 0, params.Limit)
	for rows.Next() {
		principal, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, dberr.Wrap(err, "principal_store_list_scan")
		}
		principals = append(principals, principal)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dberr.Wrap(err, "principal_store_list_rows")
	}

	return principals, total, nil
}
