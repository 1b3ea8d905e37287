// Copyright (c) 2026 FieldServe. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Verification Failure Kinds

var (
	// ErrTokenExpired marks a token whose signature verified but whose
	// validity window has passed. Callers should prompt a refresh.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenMalformed marks a token that is structurally invalid or whose
	// signature does not verify. Callers must force a full re-login.
	ErrTokenMalformed = errors.New("sec: token malformed or signature invalid")
)

// MinSecretLength is the minimum byte length accepted for a signing secret.
// Anything shorter weakens HMAC-SHA256 below its design strength.
const MinSecretLength = 32

// # Claims

// TokenClaims is the payload embedded inside FieldServe bearer tokens.
//
// Access tokens carry the full set; refresh tokens carry only UserID and
// Version. The Version claim is compared against the principal's stored
// token version on every authenticated request — a mismatch invalidates
// the token regardless of its expiry.
type TokenClaims struct {
	jwt.RegisteredClaims

	UserID     int64  `json:"id"`
	Role       string `json:"role,omitempty"`
	CustomerID *int64 `json:"customerId,omitempty"`
	Version    string `json:"version,omitempty"`
}

// Identity is the minimal authenticated-principal projection attached to the
// request context by the authentication middleware.
type Identity struct {
	ID         int64
	Role       Role
	CustomerID *int64
}

// # Token Codec

// signingContext couples one HMAC secret with one default expiry.
type signingContext struct {
	secret []byte
	ttl    time.Duration
}

// TokenCodec signs and verifies the two FieldServe bearer-token kinds with
// independent secrets and expiries.
//
// # Why two contexts?
//
// Access and refresh tokens have different blast radii when leaked. Separate
// secrets guarantee that a refresh token can never be replayed where an access
// token is expected (and vice versa), even if both use the same algorithm.
type TokenCodec struct {
	access  signingContext
	refresh signingContext
	issuer  string
}

// NewTokenCodec constructs a codec from two independent signing secrets.
//
// # Fail Fast
//
// Secrets shorter than [MinSecretLength] bytes, or identical secrets, are
// configuration errors and abort construction. This runs at process start so
// a misconfigured deployment never serves a single request.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) (*TokenCodec, error) {
	if len(accessSecret) < MinSecretLength {
		return nil, fmt.Errorf("sec: access token secret must be at least %d bytes, got %d", MinSecretLength, len(accessSecret))
	}
	if len(refreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("sec: refresh token secret must be at least %d bytes, got %d", MinSecretLength, len(refreshSecret))
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("sec: access and refresh token secrets must be independent")
	}

	return &TokenCodec{
		access:  signingContext{secret: []byte(accessSecret), ttl: accessTTL},
		refresh: signingContext{secret: []byte(refreshSecret), ttl: refreshTTL},
		issuer:  issuer,
	}, nil
}

// SignAccess creates a short-lived access token for the given identity.
func (codec *TokenCodec) SignAccess(userID int64, role Role, customerID *int64, version string) (string, error) {
	claims := TokenClaims{
		UserID:     userID,
		Role:       string(role),
		CustomerID: customerID,
		Version:    version,
	}
	return codec.sign(codec.access, claims)
}

// SignRefresh creates a long-lived refresh token carrying only the identity
// and the token version.
func (codec *TokenCodec) SignRefresh(userID int64, version string) (string, error) {
	claims := TokenClaims{
		UserID:  userID,
		Version: version,
	}
	return codec.sign(codec.refresh, claims)
}

// VerifyAccess checks a token against the access signing context.
//
// # Returns
//   - The embedded [*TokenClaims] on success.
//   - [ErrTokenExpired] if the signature verified but the token is stale.
//   - [ErrTokenMalformed] for every other failure.
func (codec *TokenCodec) VerifyAccess(token string) (*TokenClaims, error) {
	return codec.verify(codec.access, token)
}

// VerifyRefresh checks a token against the refresh signing context.
// Failure kinds are distinguished exactly as in [TokenCodec.VerifyAccess].
func (codec *TokenCodec) VerifyRefresh(token string) (*TokenClaims, error) {
	return codec.verify(codec.refresh, token)
}

// AccessTTL exposes the configured access-token lifetime for response bodies.
func (codec *TokenCodec) AccessTTL() time.Duration { return codec.access.ttl }

// RefreshTTL exposes the configured refresh-token lifetime for cookie expiry.
func (codec *TokenCodec) RefreshTTL() time.Duration { return codec.refresh.ttl }

// sign builds and signs an HS256 JWT within the given context.
func (codec *TokenCodec) sign(sc signingContext, claims TokenClaims) (string, error) {
	currentTime := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    codec.issuer,
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(sc.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(sc.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// verify parses and validates a JWT within the given context, collapsing the
// library's error surface into the two caller-visible failure kinds.
func (codec *TokenCodec) verify(sc signingContext, tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return sc.secret, nil
	})

	if err != nil {
		// Expiry is the only failure the caller may recover from (via the
		// refresh protocol); everything else is treated as tampering.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
