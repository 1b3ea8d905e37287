// Copyright (c) 2026 FieldServe. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
	"github.com/nordventa/fieldserve/internal/platform/constants"
	"github.com/nordventa/fieldserve/internal/platform/ctxutil"
	"github.com/nordventa/fieldserve/internal/platform/respond"
	"github.com/nordventa/fieldserve/internal/platform/sec"
)

// PrincipalAuthenticator resolves a bearer token into an authenticated
// principal.
//
// # Why an interface?
//
// Defining it here decouples the middleware from the auth service
// implementation, allowing us to easily inject stubs during unit testing.
// The auth service satisfies it directly.
type PrincipalAuthenticator interface {
	// Authenticate verifies the token signature/expiry, checks the embedded
	// version against the stored one, and loads the minimal principal.
	// Failures are [apperr.AppError] values from the auth taxonomy.
	Authenticate(ctx context.Context, token string) (*sec.Identity, error)

	// TouchActivity records best-effort principal activity. It must return
	// immediately and never fail the request (fire-and-forget).
	TouchActivity(principalID int64)
}

// Authenticate extracts and verifies the bearer token on every request.
//
// # Flow
//  1. Extract a candidate access token: 'Authorization: Bearer' header first,
//     then the access-token cookie (header takes precedence).
//  2. If absent, the request proceeds as anonymous — [RequireAuth] rejects it
//     at protected boundaries.
//  3. Verify via the authenticator. Expiry produces a distinct TOKEN_EXPIRED
//     signal so the client knows to run the explicit refresh protocol; the
//     middleware never refreshes inline (the auth boundary stays stateless).
//  4. On success, inject the minimal principal into the request context and
//     record activity as a detached side effect.
func Authenticate(authenticator PrincipalAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Token Extraction ───────────────────────────────────────────
			token, formatErr := extractBearerToken(request)
			if formatErr != nil {
				respond.Error(writer, request, formatErr)
				return
			}
			if token == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Verification & Principal Load ──────────────────────────────
			identity, err := authenticator.Authenticate(request.Context(), token)
			if err != nil {
				// An expired access token alongside a present refresh cookie
				// is the "needs refresh" signal: same code, explicit hint.
				if apperr.HasCode(err, apperr.CodeTokenExpired) && hasRefreshCookie(request) {
					respond.Error(writer, request, apperr.New(
						http.StatusUnauthorized,
						apperr.CodeTokenExpired,
						"Access token expired. Call the refresh endpoint to obtain a new one.",
					))
					return
				}
				respond.Error(writer, request, err)
				return
			}

			// ── 3. Context Injection & Activity ───────────────────────────────
			ctx := ctxutil.WithIdentity(request.Context(), identity)
			authenticator.TouchActivity(identity.ID)

			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		identity := ctxutil.GetIdentity(request.Context())
		if identity == nil {
			respond.Error(writer, request, apperr.New(
				http.StatusUnauthorized,
				apperr.CodeMissingAuthToken,
				"Authentication required",
			))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the principal doesn't hold the required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically
// implies [RequireAuth] so you don't need to mount both.
func RequireRole(role sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity := ctxutil.GetIdentity(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if identity == nil {
				respond.Error(writer, request, apperr.New(
					http.StatusUnauthorized,
					apperr.CodeMissingAuthToken,
					"Authentication required",
				))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !identity.Role.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// extractBearerToken pulls the access token from the Authorization header or,
// failing that, from the access-token cookie.
//
// An empty return with nil error means the request is anonymous. A non-nil
// error means the header was present but malformed.
func extractBearerToken(request *http.Request) (string, error) {
	authHeader := request.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", apperr.New(
				http.StatusUnauthorized,
				apperr.CodeInvalidToken,
				"Invalid authorization format",
			)
		}
		return parts[1], nil
	}

	if cookie, err := request.Cookie(constants.AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", nil
}

// hasRefreshCookie reports whether the request carries a refresh-token cookie.
func hasRefreshCookie(request *http.Request) bool {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	return err == nil && cookie.Value != ""
}
