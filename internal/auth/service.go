// Copyright (c) 2026 FieldServe. All rights reserved.

/*
Session lifecycle orchestration.

The [Service] wires the pure pieces (lockout state machine, token codec,
password hasher) to the credential store. It owns the login algorithm, the
per-request authentication check, the refresh protocol, and session
revocation.

Architecture:

  - Service: Orchestrates business logic (Login, Authenticate, Refresh).
  - PrincipalStore: Abstracted interface for the PostgreSQL credential rows.
  - Security: bcrypt hashing, HMAC-signed JWTs with version-claim revocation.

# Review Process

This service is critical for security. Any changes to the lockout, token
version, or reset logic must be reviewed by the security team.
*/
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
	"github.com/nordventa/fieldserve/internal/platform/sec"
	"github.com/nordventa/fieldserve/pkg/pagination"
)

// touchActivityTimeout bounds the detached last-active-at write.
const touchActivityTimeout = 5 * time.Second

// # Service Construction

// ServiceConfig carries the tunable policy knobs for the [Service].
type ServiceConfig struct {
	Lockout       LockoutPolicy
	ResetTokenTTL time.Duration

	// RotateRefreshTokens gates refresh-token rotation during the refresh
	// protocol. Off by default: rotation breaks concurrent device sessions
	// that share the refresh flow.
	RotateRefreshTokens bool

	// AppBaseURL is the public origin used to build password-reset links.
	AppBaseURL string
}

// Service implements the authentication and session lifecycle use cases.
type Service struct {
	store  PrincipalStore
	codec  *sec.TokenCodec
	mailer Mailer
	logger *slog.Logger
	config ServiceConfig

	// now is injected so tests can drive simulated time through the lockout
	// and reset windows.
	now func() time.Time
}

// NewService constructs a [Service] with its dependencies.
func NewService(store PrincipalStore, codec *sec.TokenCodec, mailer Mailer, logger *slog.Logger, config ServiceConfig) *Service {
	if config.Lockout.Threshold == 0 {
		config.Lockout = DefaultLockoutPolicy()
	}
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = DefaultResetTokenTTL
	}
	return &Service{
		store:  store,
		codec:  codec,
		mailer: mailer,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// # Login Flow

// LoginInput defines credentials for an authentication attempt. UserAgent
// and IPAddress are informational only; they never gate the decision.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Principal             *Principal
}

/*
Login validates credentials and issues the access/refresh token pair.

Description: Runs the full login algorithm — enumeration-safe lookup,
deactivation check, lockout evaluation, bcrypt verification with persisted
failure counting, token-version resolution, and token issuance.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session credentials
  - error: Taxonomy errors or internal failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginSession, error) {
	now := service.now()

	// ── 1. Enumeration-Safe Lookup ────────────────────────────────────────
	principal, err := service.store.FindByEmail(ctx, input.Email)
	if err != nil {
		if apperr.IsAppError(err) && apperr.As(err).HTTPStatus < 500 {
			// Unknown email reads exactly like a wrong password.
			return nil, ErrInvalidCredentials()
		}
		// Infrastructure failure: do NOT count it against the lockout.
		return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
	}

	// ── 2. Administrative Deactivation ────────────────────────────────────
	if !principal.IsActive {
		return nil, ErrAccountDeactivated()
	}

	// ── 3. Lockout Evaluation ─────────────────────────────────────────────
	lockState := lockoutStateOf(principal)
	if lockState.IsLocked(now) {
		// The password is deliberately not checked while locked.
		return nil, ErrAccountLocked(int(lockState.RetryAfter(now).Seconds()))
	}

	// ── 4. Password Verification ──────────────────────────────────────────
	if !sec.CheckPasswordHash(input.Password, principal.PasswordHash) {
		return nil, service.recordFailedAttempt(ctx, principal, lockState, now)
	}

	cleared := service.config.Lockout.RecordSuccess()
	if err := service.store.RecordLoginSuccess(ctx, principal.ID, now); err != nil {
		return nil, fmt.Errorf("auth_service_login_success_persist_failed: %w", err)
	}
	principal.FailedLoginAttempts = cleared.FailedAttempts
	principal.AccountLockedUntil = cleared.LockedUntil

	// ── 5. Token Version Resolution ───────────────────────────────────────
	version, refreshToken, err := service.resolveSessionTokens(ctx, principal)
	if err != nil {
		return nil, err
	}

	// ── 6. Access Token Issuance ──────────────────────────────────────────
	accessToken, err := service.codec.SignAccess(principal.ID, principal.Role, principal.CustomerID, version)
	if err != nil {
		return nil, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}

	service.logger.InfoContext(ctx, "login_succeeded",
		slog.Int64("principal_id", principal.ID),
		slog.String("ip", input.IPAddress),
		slog.String("user_agent", input.UserAgent),
	)

	loginAt := now
	principal.LastLoginAt = &loginAt
	principal.LastActiveAt = &loginAt

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: now.Add(service.codec.RefreshTTL()),
		Principal:             principal,
	}, nil
}

// recordFailedAttempt applies the lockout failure transition, persists it,
// and shapes the client-facing error. The persist happens even though the
// login request ultimately fails.
func (service *Service) recordFailedAttempt(ctx context.Context, principal *Principal, state LockoutState, now time.Time) error {
	nextState := service.config.Lockout.RecordFailure(state, now)

	if err := service.store.SaveLockout(ctx, principal.ID, nextState); err != nil {
		service.logger.ErrorContext(ctx, "lockout_persist_failed",
			slog.Int64("principal_id", principal.ID),
			slog.String("error", err.Error()),
		)
	}

	if nextState.IsLocked(now) {
		service.logger.WarnContext(ctx, "account_locked",
			slog.Int64("principal_id", principal.ID),
			slog.Time("locked_until", *nextState.LockedUntil),
		)
		return ErrAccountLocked(int(nextState.RetryAfter(now).Seconds()))
	}

	return ErrInvalidCredentialsWithRemaining(service.config.Lockout.RemainingAttempts(nextState))
}

// resolveSessionTokens implements the concurrent-session version policy.
//
// A fresh account (no version, or the migration sentinel) gets a newly
// minted random version plus a new stored refresh token. An account that
// already carries a version reuses it AND keeps its stored refresh token
// untouched, so a login on device B never logs out device A. Only explicit
// revocation rotates the version.
func (service *Service) resolveSessionTokens(ctx context.Context, principal *Principal) (version, refreshToken string, err error) {
	if principal.HasTokenVersion() {
		version = principal.TokenVersion
		refreshToken, err = service.codec.SignRefresh(principal.ID, version)
		if err != nil {
			return "", "", fmt.Errorf("auth_service_refresh_token_failed: %w", err)
		}
		return version, refreshToken, nil
	}

	version = uuid.NewString()
	refreshToken, err = service.codec.SignRefresh(principal.ID, version)
	if err != nil {
		return "", "", fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	if err := service.store.SetTokenVersion(ctx, principal.ID, version, refreshToken); err != nil {
		return "", "", fmt.Errorf("auth_service_token_version_persist_failed: %w", err)
	}
	principal.TokenVersion = version
	principal.RefreshToken = &refreshToken

	return version, refreshToken, nil
}

// # Per-Request Authentication

/*
Authenticate resolves an access token into a minimal principal identity.

Description: Verifies signature and expiry, loads the principal, requires an
active account, and compares the token's version claim to the stored one.
Satisfies the middleware's authenticator contract.

Parameters:
  - ctx: context.Context
  - token: string

Returns:
  - *sec.Identity: Minimal authenticated projection
  - error: TOKEN_EXPIRED, INVALID_TOKEN, or TOKEN_REVOKED
*/
func (service *Service) Authenticate(ctx context.Context, token string) (*sec.Identity, error) {
	claims, err := service.codec.VerifyAccess(token)
	if err != nil {
		switch err {
		case sec.ErrTokenExpired:
			return nil, ErrTokenExpired()
		default:
			return nil, ErrInvalidToken()
		}
	}

	// Absent principal reads as revoked, never as not-found, so token
	// holders cannot probe for account existence.
	principal, err := service.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if apperr.IsAppError(err) && apperr.As(err).HTTPStatus < 500 {
			return nil, ErrTokenRevoked()
		}
		return nil, fmt.Errorf("auth_service_authenticate_lookup_failed: %w", err)
	}

	if !principal.IsActive {
		return nil, ErrTokenRevoked()
	}

	// Version comparison: the sole mechanism for forced invalidation of all
	// outstanding tokens.
	if claims.Version != principal.TokenVersion {
		return nil, ErrTokenRevoked()
	}

	return principal.Identity(), nil
}

// TouchActivity stamps last_active_at as a detached background task. It
// returns immediately; a failed write is logged and swallowed, never
// surfaced to the request that triggered it.
func (service *Service) TouchActivity(principalID int64) {
	activeAt := service.now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchActivityTimeout)
		defer cancel()

		if err := service.store.TouchActivity(ctx, principalID, activeAt); err != nil {
			service.logger.Warn("touch_activity_failed",
				slog.Int64("principal_id", principalID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// # Refresh Protocol

// RefreshResult carries the outcome of one refresh-protocol run.
type RefreshResult struct {
	AccessToken string

	// RefreshToken is non-empty only when rotation is enabled and a new
	// refresh token was minted and persisted.
	RefreshToken          string
	RefreshTokenExpiresAt time.Time

	// LegacyMatch marks tokens accepted through the deprecated verbatim
	// stored-string comparison instead of structural verification.
	LegacyMatch bool
}

/*
Refresh verifies a refresh token and mints a new access token.

Description: Two-stage verifier. The primary stage verifies the token
structurally (signature, expiry) and compares its version claim to the
stored one. The legacy stage accepts a structurally unverifiable token only
when it matches the stored refresh token string verbatim — a deprecated
compatibility branch kept for sessions issued before signed refresh tokens.

Parameters:
  - ctx: context.Context
  - refreshToken: string

Returns:
  - *RefreshResult: New access token, plus a rotated refresh token when policy-enabled
  - error: TOKEN_EXPIRED, INVALID_TOKEN, TOKEN_VERSION_MISMATCH, or internal failures
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	principal, legacyMatch, err := service.verifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if !principal.IsActive {
		return nil, ErrTokenRevoked()
	}

	accessToken, err := service.codec.SignAccess(principal.ID, principal.Role, principal.CustomerID, principal.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	result := &RefreshResult{
		AccessToken: accessToken,
		LegacyMatch: legacyMatch,
	}

	// Rotation is policy-gated and off by default: rotating here would
	// invalidate the refresh flow on every other device.
	if service.config.RotateRefreshTokens {
		rotated, err := service.codec.SignRefresh(principal.ID, principal.TokenVersion)
		if err != nil {
			return nil, fmt.Errorf("auth_service_refresh_rotation_failed: %w", err)
		}
		if err := service.store.SetRefreshToken(ctx, principal.ID, &rotated); err != nil {
			return nil, fmt.Errorf("auth_service_refresh_rotation_persist_failed: %w", err)
		}
		result.RefreshToken = rotated
		result.RefreshTokenExpiresAt = service.now().Add(service.codec.RefreshTTL())
	}

	if legacyMatch {
		service.logger.WarnContext(ctx, "legacy_refresh_token_accepted",
			slog.Int64("principal_id", principal.ID),
		)
	}

	service.TouchActivity(principal.ID)

	return result, nil
}

// verifyRefreshToken runs the two-stage refresh verification and returns the
// resolved principal.
func (service *Service) verifyRefreshToken(ctx context.Context, refreshToken string) (*Principal, bool, error) {
	claims, err := service.codec.VerifyRefresh(refreshToken)

	switch err {
	case nil:
		// Primary stage: structurally valid. Version must match exactly.
		principal, loadErr := service.loadRefreshPrincipal(ctx, claims.UserID)
		if loadErr != nil {
			return nil, false, loadErr
		}
		if claims.Version != principal.TokenVersion {
			return nil, false, ErrTokenVersionMismatch()
		}
		return principal, false, nil

	case sec.ErrTokenExpired:
		// An expired-but-genuine token is never healed by the legacy branch.
		return nil, false, ErrTokenExpired()

	default:
		// Legacy stage: verbatim match against the stored refresh token.
		// Only a confirmed miss reads as an invalid token; an infrastructure
		// failure must stay retryable instead of forcing a re-login.
		principal, loadErr := service.store.FindByRefreshToken(ctx, refreshToken)
		if loadErr != nil {
			if apperr.IsAppError(loadErr) && apperr.As(loadErr).HTTPStatus < 500 {
				return nil, false, ErrInvalidToken()
			}
			return nil, false, fmt.Errorf("auth_service_legacy_refresh_lookup_failed: %w", loadErr)
		}
		return principal, true, nil
	}
}

// loadRefreshPrincipal loads a principal for the refresh protocol, mapping
// absence to a revocation error.
func (service *Service) loadRefreshPrincipal(ctx context.Context, principalID int64) (*Principal, error) {
	principal, err := service.store.FindByID(ctx, principalID)
	if err != nil {
		if apperr.IsAppError(err) && apperr.As(err).HTTPStatus < 500 {
			return nil, ErrTokenRevoked()
		}
		return nil, fmt.Errorf("auth_service_refresh_lookup_failed: %w", err)
	}
	return principal, nil
}

// # Session Termination

/*
Logout clears the principal's stored refresh token.

Description: Ends the cookie-based session without bumping the token
version, so access tokens on other devices remain valid until they expire.
Idempotent.

Parameters:
  - ctx: context.Context
  - principalID: int64

Returns:
  - error: Persistence failures
*/
func (service *Service) Logout(ctx context.Context, principalID int64) error {
	if err := service.store.SetRefreshToken(ctx, principalID, nil); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}
	return nil
}

/*
RevokeSessions force-invalidates every outstanding token for a principal.

Description: Mints a fresh token version and persists it. Every access and
refresh token carrying the old version fails on its next use. This is the
credential-compromise escape hatch.

Parameters:
  - ctx: context.Context
  - principalID: int64

Returns:
  - error: Persistence failures
*/
func (service *Service) RevokeSessions(ctx context.Context, principalID int64) error {
	if err := service.store.BumpTokenVersion(ctx, principalID, uuid.NewString()); err != nil {
		return fmt.Errorf("auth_service_revoke_sessions_failed: %w", err)
	}

	service.logger.Info("sessions_revoked", slog.Int64("principal_id", principalID))
	return nil
}

// # Account Operations

/*
ChangePassword updates an authenticated principal's password.

Description: Verifies the current password before applying the new one. Does
not revoke other sessions; callers wanting that pair it with
[Service.RevokeSessions].

Parameters:
  - ctx: context.Context
  - principalID: int64
  - currentPassword: string
  - newPassword: string

Returns:
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, principalID int64, currentPassword, newPassword string) error {
	principal, err := service.store.FindByID(ctx, principalID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(currentPassword, principal.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.store.UpdatePassword(ctx, principalID, newHash, service.now()); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	return nil
}

/*
GetPrincipal loads the full principal projection for the /me endpoint.

Parameters:
  - ctx: context.Context
  - principalID: int64

Returns:
  - *Principal: Hydrated entity
  - error: Retrieval failures
*/
func (service *Service) GetPrincipal(ctx context.Context, principalID int64) (*Principal, error) {
	return service.store.FindByID(ctx, principalID)
}

/*
ListPrincipals returns a page of accounts for the admin listing.

Parameters:
  - ctx: context.Context
  - params: pagination.Params

Returns:
  - []*Principal: Page of entities
  - pagination.Meta: Page metadata
  - error: Retrieval failures
*/
func (service *Service) ListPrincipals(ctx context.Context, params pagination.Params) ([]*Principal, pagination.Meta, error) {
	principals, total, err := service.store.List(ctx, params)
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("auth_service_list_principals_failed: %w", err)
	}
	return principals, pagination.NewMeta(params.Page, params.Limit, int(total)), nil
}
