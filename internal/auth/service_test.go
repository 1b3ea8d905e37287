// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
	"github.com/nordventa/fieldserve/internal/platform/sec"
	"github.com/nordventa/fieldserve/pkg/pagination"
)

const (
	testAccessSecret  = "unit-test-access-secret-0123456789abcdef"
	testRefreshSecret = "unit-test-refresh-secret-0123456789abcdef"
	testPassword      = "correct horse battery staple"
)

// memoryStore is an in-memory [PrincipalStore] for service tests.
type memoryStore struct {
	principals map[int64]*Principal

	// lookupErr, when set, is returned by the read paths to simulate an
	// infrastructure failure (e.g. a database outage).
	lookupErr error
}

func newMemoryStore(principals ...*Principal) *memoryStore {
	store := &memoryStore{principals: make(map[int64]*Principal)}
	for _, principal := range principals {
		store.principals[principal.ID] = principal
	}
	return store
}

func (store *memoryStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	if store.lookupErr != nil {
		return nil, store.lookupErr
	}
	for _, principal := range store.principals {
		if strings.EqualFold(principal.Email, email) {
			return principal, nil
		}
	}
	return nil, apperr.NotFound("Resource")
}

func (store *memoryStore) FindByID(_ context.Context, id int64) (*Principal, error) {
	principal, ok := store.principals[id]
	if !ok {
		return nil, apperr.NotFound("Resource")
	}
	return principal, nil
}

func (store *memoryStore) FindByRefreshToken(_ context.Context, token string) (*Principal, error) {
	if store.lookupErr != nil {
		return nil, store.lookupErr
	}
	for _, principal := range store.principals {
		if principal.RefreshToken != nil && *principal.RefreshToken == token {
			return principal, nil
		}
	}
	return nil, apperr.NotFound("Resource")
}

func (store *memoryStore) FindByResetToken(_ context.Context, token string, now time.Time) (*Principal, error) {
	for _, principal := range store.principals {
		if principal.PasswordResetToken != nil && *principal.PasswordResetToken == token &&
			principal.PasswordResetExpires != nil && principal.PasswordResetExpires.After(now) &&
			principal.IsActive {
			return principal, nil
		}
	}
	return nil, apperr.NotFound("Resource")
}

func (store *memoryStore) SaveLockout(_ context.Context, principalID int64, state LockoutState) error {
	principal := store.principals[principalID]
	principal.FailedLoginAttempts = state.FailedAttempts
	principal.AccountLockedUntil = state.LockedUntil
	return nil
}

func (store *memoryStore) RecordLoginSuccess(_ context.Context, principalID int64, loginAt time.Time) error {
	principal := store.principals[principalID]
	principal.FailedLoginAttempts = 0
	principal.AccountLockedUntil = nil
	principal.LastLoginAt = &loginAt
	principal.LastActiveAt = &loginAt
	return nil
}

func (store *memoryStore) SetTokenVersion(_ context.Context, principalID int64, version, refreshToken string) error {
	principal := store.principals[principalID]
	principal.TokenVersion = version
	principal.RefreshToken = &refreshToken
	return nil
}

func (store *memoryStore) SetRefreshToken(_ context.Context, principalID int64, refreshToken *string) error {
	store.principals[principalID].RefreshToken = refreshToken
	return nil
}

func (store *memoryStore) BumpTokenVersion(_ context.Context, principalID int64, version string) error {
	principal := store.principals[principalID]
	principal.TokenVersion = version
	principal.RefreshToken = nil
	return nil
}

func (store *memoryStore) TouchActivity(_ context.Context, principalID int64, activeAt time.Time) error {
	store.principals[principalID].LastActiveAt = &activeAt
	return nil
}

func (store *memoryStore) SetResetToken(_ context.Context, principalID int64, token string, expiresAt time.Time) error {
	principal := store.principals[principalID]
	principal.PasswordResetToken = &token
	principal.PasswordResetExpires = &expiresAt
	return nil
}

func (store *memoryStore) ConsumeResetToken(_ context.Context, principalID int64, newHash string, changedAt time.Time) error {
	principal := store.principals[principalID]
	principal.PasswordHash = newHash
	principal.PasswordResetToken = nil
	principal.PasswordResetExpires = nil
	principal.FailedLoginAttempts = 0
	principal.AccountLockedUntil = nil
	principal.LastPasswordChange = &changedAt
	return nil
}

func (store *memoryStore) UpdatePassword(_ context.Context, principalID int64, newHash string, changedAt time.Time) error {
	principal := store.principals[principalID]
	principal.PasswordHash = newHash
	principal.LastPasswordChange = &changedAt
	return nil
}

func (store *memoryStore) List(_ context.Context, params pagination.Params) ([]*Principal, int64, error) {
	principals := make([]*Principal, 0, len(store.principals))
	for _, principal := range store.principals {
		principals = append(principals, principal)
	}
	return principals, int64(len(principals)), nil
}

// captureMailer records reset deliveries for assertions.
type captureMailer struct {
	emails []string
	urls   []string
}

func (mailer *captureMailer) SendPasswordReset(_ context.Context, email, resetURL string) error {
	mailer.emails = append(mailer.emails, email)
	mailer.urls = append(mailer.urls, resetURL)
	return nil
}

// testFixture bundles a service, its store, and a settable clock.
type testFixture struct {
	service *Service
	store   *memoryStore
	mailer  *captureMailer
	clock   time.Time
}

func newFixture(t *testing.T, principals ...*Principal) *testFixture {
	t.Helper()

	codec, err := sec.NewTokenCodec(testAccessSecret, testRefreshSecret, time.Hour, 30*24*time.Hour, "fieldserve-test")
	require.NoError(t, err)

	mailer := &captureMailer{}
	store := newMemoryStore(principals...)
	service := NewService(store, codec, mailer, slog.New(slog.NewTextHandler(io.Discard, nil)), ServiceConfig{
		Lockout:       DefaultLockoutPolicy(),
		ResetTokenTTL: time.Hour,
		AppBaseURL:    "https://app.fieldserve.test",
	})

	fixture := &testFixture{
		service: service,
		store:   store,
		mailer:  mailer,
		clock:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	service.now = func() time.Time { return fixture.clock }

	return fixture
}

func (fixture *testFixture) advance(delta time.Duration) {
	fixture.clock = fixture.clock.Add(delta)
}

func activePrincipal(t *testing.T, id int64) *Principal {
	t.Helper()
	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)
	return &Principal{
		ID:           id,
		Email:        "tech@fieldserve.test",
		Name:         "Field Tech",
		Role:         sec.RoleServicePerson,
		IsActive:     true,
		PasswordHash: hash,
	}
}

// # Login

func TestLogin_UnknownEmailIsGeneric(t *testing.T) {
	fixture := newFixture(t, activePrincipal(t, 1))

	_, err := fixture.service.Login(context.Background(), LoginInput{Email: "nobody@fieldserve.test", Password: "whatever"})

	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials))
	// The message must read exactly like a wrong password.
	assert.Equal(t, ErrInvalidCredentials().Message, apperr.As(err).Message)
}

func TestLogin_DeactivatedAccountIsExplicitAndUncounted(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.IsActive = false
	fixture := newFixture(t, principal)

	_, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})

	assert.True(t, apperr.HasCode(err, apperr.CodeAccountDeactivated))
	assert.Equal(t, 0, principal.FailedLoginAttempts, "deactivated attempts are not counted")
}

func TestLogin_FifthFailureLocksAccount(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	for attempt := 1; attempt <= 4; attempt++ {
		_, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: "wrong"})
		require.True(t, apperr.HasCode(err, apperr.CodeInvalidCredentials), "attempt %d", attempt)
		assert.Equal(t, attempt, principal.FailedLoginAttempts)
	}

	_, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: "wrong"})
	require.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))
	assert.Positive(t, apperr.As(err).RetryAfterSeconds)

	// While locked, even the correct password is refused and not counted.
	_, err = fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	assert.True(t, apperr.HasCode(err, apperr.CodeAccountLocked))
	assert.Equal(t, 0, principal.FailedLoginAttempts)
}

func TestLogin_LockClearsAfterWindow(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	for attempt := 0; attempt < 5; attempt++ {
		_, _ = fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: "wrong"})
	}
	require.NotNil(t, principal.AccountLockedUntil)

	fixture.advance(15*time.Minute + time.Second)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 0, principal.FailedLoginAttempts)
	assert.Nil(t, principal.AccountLockedUntil)
}

func TestLogin_SuccessResetsNearLockoutCounter(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.FailedLoginAttempts = 4
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})

	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, 0, principal.FailedLoginAttempts)
	assert.Nil(t, principal.AccountLockedUntil)
}

func TestLogin_EmailLookupIsCaseInsensitive(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	_, err := fixture.service.Login(context.Background(), LoginInput{Email: "TECH@FieldServe.Test", Password: testPassword})

	assert.NoError(t, err)
}

func TestLogin_FirstLoginMintsVersionAndStoresRefreshToken(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	require.False(t, principal.HasTokenVersion())

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	assert.True(t, principal.HasTokenVersion())
	require.NotNil(t, principal.RefreshToken)
	assert.Equal(t, session.RefreshToken, *principal.RefreshToken)
}

func TestLogin_SentinelVersionTreatedAsUnset(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.TokenVersion = TokenVersionUnset
	fixture := newFixture(t, principal)

	_, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	assert.NotEqual(t, TokenVersionUnset, principal.TokenVersion)
	assert.NotEmpty(t, principal.TokenVersion)
}

func TestLogin_SecondDeviceKeepsFirstSessionValid(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	deviceA, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)
	storedAfterA := *principal.RefreshToken

	deviceB, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	// The stored refresh token is NOT overwritten by the second login.
	assert.Equal(t, storedAfterA, *principal.RefreshToken)

	// Both devices remain independently valid: same version in both tokens.
	for name, session := range map[string]*LoginSession{"device_a": deviceA, "device_b": deviceB} {
		identity, err := fixture.service.Authenticate(context.Background(), session.AccessToken)
		require.NoError(t, err, name)
		assert.Equal(t, principal.ID, identity.ID, name)

		_, err = fixture.service.Refresh(context.Background(), session.RefreshToken)
		assert.NoError(t, err, name)
	}
}

// # Authenticate

func TestAuthenticate_ValidToken(t *testing.T) {
	principal := activePrincipal(t, 1)
	customerID := int64(42)
	principal.Role = sec.RoleExternalUser
	principal.CustomerID = &customerID
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	identity, err := fixture.service.Authenticate(context.Background(), session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, identity.ID)
	assert.Equal(t, sec.RoleExternalUser, identity.Role)
	require.NotNil(t, identity.CustomerID)
	assert.Equal(t, customerID, *identity.CustomerID)
}

func TestAuthenticate_GarbageTokenIsInvalid(t *testing.T) {
	fixture := newFixture(t, activePrincipal(t, 1))

	_, err := fixture.service.Authenticate(context.Background(), "not-a-jwt")

	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidToken))
}

func TestAuthenticate_VersionBumpRevokesOutstandingTokens(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, fixture.service.RevokeSessions(context.Background(), principal.ID))

	_, err = fixture.service.Authenticate(context.Background(), session.AccessToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))

	_, err = fixture.service.Refresh(context.Background(), session.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenVersionMismatch))
}

func TestAuthenticate_DeactivatedPrincipalReadsAsRevoked(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	principal.IsActive = false

	_, err = fixture.service.Authenticate(context.Background(), session.AccessToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked))
}

func TestAuthenticate_DeletedPrincipalReadsAsRevoked(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	delete(fixture.store.principals, principal.ID)

	_, err = fixture.service.Authenticate(context.Background(), session.AccessToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenRevoked), "absence must not read as not-found")
}

// # Refresh

func TestRefresh_MintsAccessWithoutRotationByDefault(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	result, err := fixture.service.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken, "rotation is disabled by default")
	assert.False(t, result.LegacyMatch)

	_, err = fixture.service.Authenticate(context.Background(), result.AccessToken)
	assert.NoError(t, err)
}

func TestRefresh_RotationWhenPolicyEnabled(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)
	fixture.service.config.RotateRefreshTokens = true

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)

	result, err := fixture.service.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)

	require.NotEmpty(t, result.RefreshToken)
	assert.NotEqual(t, session.RefreshToken, result.RefreshToken)
	require.NotNil(t, principal.RefreshToken)
	assert.Equal(t, result.RefreshToken, *principal.RefreshToken, "rotated token is persisted")
}

func TestRefresh_ExpiredTokenIsExpiredNotLegacy(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.TokenVersion = "v-current"
	fixture := newFixture(t, principal)

	// Sign a structurally genuine refresh token whose expiry has passed.
	expiredCodec, err := sec.NewTokenCodec(testAccessSecret, testRefreshSecret, time.Hour, -time.Second, "fieldserve-test")
	require.NoError(t, err)
	expiredToken, err := expiredCodec.SignRefresh(principal.ID, "v-current")
	require.NoError(t, err)

	// Even a verbatim stored-token match must not heal an expired token.
	principal.RefreshToken = &expiredToken

	_, err = fixture.service.Refresh(context.Background(), expiredToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenExpired))
}

func TestRefresh_LegacyVerbatimFallback(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.TokenVersion = "v-current"
	legacy := "opaque-legacy-refresh-token"
	principal.RefreshToken = &legacy
	fixture := newFixture(t, principal)

	result, err := fixture.service.Refresh(context.Background(), legacy)
	require.NoError(t, err)

	assert.True(t, result.LegacyMatch)
	assert.NotEmpty(t, result.AccessToken)

	identity, err := fixture.service.Authenticate(context.Background(), result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, identity.ID)
}

func TestRefresh_UnknownGarbageIsInvalid(t *testing.T) {
	fixture := newFixture(t, activePrincipal(t, 1))

	_, err := fixture.service.Refresh(context.Background(), "garbage-matching-nothing")

	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidToken))
}

func TestRefresh_LegacyLookupOutageIsNotInvalidToken(t *testing.T) {
	principal := activePrincipal(t, 1)
	legacy := "opaque-legacy-refresh-token"
	principal.RefreshToken = &legacy
	fixture := newFixture(t, principal)

	fixture.store.lookupErr = apperr.Internal(errors.New("connection refused"))

	_, err := fixture.service.Refresh(context.Background(), legacy)

	require.Error(t, err)
	assert.False(t, apperr.HasCode(err, apperr.CodeInvalidToken),
		"a store outage must stay retryable, not force a re-login")
}

// # Logout

func TestLogout_ClearsRefreshTokenButNotVersion(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	session, err := fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: testPassword})
	require.NoError(t, err)
	versionBefore := principal.TokenVersion

	require.NoError(t, fixture.service.Logout(context.Background(), principal.ID))

	assert.Nil(t, principal.RefreshToken)
	assert.Equal(t, versionBefore, principal.TokenVersion)

	// Access tokens minted before logout stay valid until expiry.
	_, err = fixture.service.Authenticate(context.Background(), session.AccessToken)
	assert.NoError(t, err)
}

// # Password Reset

func TestRequestPasswordReset_UniformResponse(t *testing.T) {
	active := activePrincipal(t, 1)
	deactivated := activePrincipal(t, 2)
	deactivated.Email = "gone@fieldserve.test"
	deactivated.IsActive = false
	fixture := newFixture(t, active, deactivated)

	assert.NoError(t, fixture.service.RequestPasswordReset(context.Background(), active.Email))
	assert.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "nobody@fieldserve.test"))
	assert.NoError(t, fixture.service.RequestPasswordReset(context.Background(), deactivated.Email))

	// Only the active principal actually received a link.
	require.Len(t, fixture.mailer.emails, 1)
	assert.Equal(t, active.Email, fixture.mailer.emails[0])
	assert.Contains(t, fixture.mailer.urls[0], "https://app.fieldserve.test/reset-password?token=")
	require.NotNil(t, active.PasswordResetToken)
	require.NotNil(t, active.PasswordResetExpires)
	assert.Equal(t, fixture.clock.Add(time.Hour), *active.PasswordResetExpires)
}

func TestRequestPasswordReset_StoreOutageIsHidden(t *testing.T) {
	fixture := newFixture(t, activePrincipal(t, 1))
	fixture.store.lookupErr = apperr.Internal(errors.New("connection refused"))

	assert.NoError(t, fixture.service.RequestPasswordReset(context.Background(), "tech@fieldserve.test"))
	assert.Empty(t, fixture.mailer.emails)
}

func TestResetPassword_SingleUse(t *testing.T) {
	principal := activePrincipal(t, 1)
	principal.FailedLoginAttempts = 3
	fixture := newFixture(t, principal)

	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), principal.Email))
	token := *principal.PasswordResetToken

	require.NoError(t, fixture.service.ResetPassword(context.Background(), token, "new-password-123"))

	// Token and expiry cleared together, lockout cleared.
	assert.Nil(t, principal.PasswordResetToken)
	assert.Nil(t, principal.PasswordResetExpires)
	assert.Equal(t, 0, principal.FailedLoginAttempts)
	assert.NotNil(t, principal.LastPasswordChange)

	// Second consumption of the same token fails generically.
	err := fixture.service.ResetPassword(context.Background(), token, "another-password")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidResetToken))

	// The new password works.
	_, err = fixture.service.Login(context.Background(), LoginInput{Email: principal.Email, Password: "new-password-123"})
	assert.NoError(t, err)
}

func TestResetPassword_ExpiredTokenFailsGenerically(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	require.NoError(t, fixture.service.RequestPasswordReset(context.Background(), principal.Email))
	token := *principal.PasswordResetToken

	fixture.advance(time.Hour + time.Second)

	err := fixture.service.ResetPassword(context.Background(), token, "new-password-123")
	assert.True(t, apperr.HasCode(err, apperr.CodeInvalidResetToken))
}

func TestResetPassword_RejectsShortPassword(t *testing.T) {
	fixture := newFixture(t, activePrincipal(t, 1))

	err := fixture.service.ResetPassword(context.Background(), "whatever", "short")

	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

// # Change Password

func TestChangePassword_RequiresCurrentPassword(t *testing.T) {
	principal := activePrincipal(t, 1)
	fixture := newFixture(t, principal)

	err := fixture.service.ChangePassword(context.Background(), principal.ID, "wrong-current", "new-password-123")
	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	require.NoError(t, fixture.service.ChangePassword(context.Background(), principal.ID, testPassword, "new-password-123"))
	assert.True(t, sec.CheckPasswordHash("new-password-123", principal.PasswordHash))
}
