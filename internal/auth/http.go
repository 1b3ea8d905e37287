// Copyright (c) 2026 FieldServe. All rights reserved.

/*
HTTP delivery layer for the authentication lifecycle.

The handler acts as a thin mediation layer between the web and the domain
service:
  - Protocol: Standard RESTful JSON interface.
  - Security: Access/refresh cookie injection, throttled credential endpoints.
  - Verification: Strict input validation before delegating to [Service].

This layer is strictly responsible for transport concerns (status codes,
headers, cookies, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
	"github.com/nordventa/fieldserve/internal/platform/constants"
	"github.com/nordventa/fieldserve/internal/platform/middleware"
	requestutil "github.com/nordventa/fieldserve/internal/platform/request"
	"github.com/nordventa/fieldserve/internal/platform/respond"
	"github.com/nordventa/fieldserve/internal/platform/sec"
	"github.com/nordventa/fieldserve/internal/platform/validate"
	"github.com/nordventa/fieldserve/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
type Handler struct {
	service       *Service
	loginThrottle Throttle
	resetThrottle Throttle
	secureCookies bool
}

// NewHandler constructs a [Handler] with its dependencies. secureCookies is
// disabled only in development (plain-HTTP localhost).
func NewHandler(service *Service, loginThrottle, resetThrottle Throttle, secureCookies bool) *Handler {
	return &Handler{
		service:       service,
		loginThrottle: loginThrottle,
		resetThrottle: resetThrottle,
		secureCookies: secureCookies,
	}
}

// Routes returns the router for /api/v1/auth.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
		r.Post("/logout", handler.logout)
		r.Post("/change-password", handler.changePassword)
		r.Post("/revoke-sessions", handler.revokeSessions)
	})

	return router
}

// AdminRoutes returns the ADMIN-gated account administration router,
// mounted under /api/v1/admin.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireRole(sec.RoleAdmin))

	router.Get("/users", handler.listUsers)
	router.Post("/users/{id}/revoke-sessions", handler.adminRevokeSessions)

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
Login authenticates a principal and establishes a session.

POST /api/v1/auth/login

Description: Verifies credentials through the full lockout-aware login
algorithm, then injects the access and refresh cookies and returns the
access token with a safe principal projection.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Session: Access token and principal profile
  - 400: MISSING_CREDENTIALS: Empty email or password
  - 401: INVALID_CREDENTIALS: Wrong email/password (counted toward lockout)
  - 403: ACCOUNT_DEACTIVATED: Administratively disabled
  - 423: ACCOUNT_LOCKED: Lockout window active (Retry-After set)
  - 429: RATE_LIMITED: Per-source throttle exhausted
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	if err := handler.checkThrottle(writer, request, handler.loginThrottle); err != nil {
		return
	}

	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, ErrMissingCredentials())
		return
	}
	if input.Email == "" || input.Password == "" {
		respond.Error(writer, request, ErrMissingCredentials())
		return
	}

	session, err := handler.service.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setAccessCookie(writer, session.AccessToken)
	handler.setRefreshCookie(writer, session.RefreshToken, session.RefreshTokenExpiresAt)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(handler.service.codec.AccessTTL() / time.Second),
		FieldUser:        session.Principal,
	})
}

/*
Refresh mints a new access token from the refresh-token cookie.

POST /api/v1/auth/refresh

Description: Runs the explicit refresh protocol. The refresh token travels
exclusively via its http-only cookie; it is never accepted from a JSON body
or header. A rotated refresh cookie is set only when rotation is enabled by
policy.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: TOKEN_EXPIRED / INVALID_TOKEN / TOKEN_VERSION_MISMATCH
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.New(
			http.StatusUnauthorized,
			apperr.CodeMissingAuthToken,
			"Missing refresh token cookie",
		))
		return
	}

	result, err := handler.service.Refresh(request.Context(), cookie.Value)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setAccessCookie(writer, result.AccessToken)
	if result.RefreshToken != "" {
		handler.setRefreshCookie(writer, result.RefreshToken, result.RefreshTokenExpiresAt)
	}

	respond.OK(writer, map[string]any{
		FieldAccessToken: result.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(handler.service.codec.AccessTTL() / time.Second),
	})
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Description: Clears the principal's stored refresh token and expires both
security cookies. The token version is untouched, so sessions on other
devices survive.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Logout(request.Context(), identity.ID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookies(writer)
	respond.NoContent(writer)
}

/*
Me returns the authenticated principal's profile.

GET /api/v1/auth/me

Response:
  - 200: Principal: Safe projection of the account
  - 401: MISSING_AUTH_TOKEN: Not authenticated
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	principal, err := handler.service.GetPrincipal(request.Context(), identity.ID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, principal)
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Description: Generates and delivers a reset link when the account exists
and is active. The response is byte-identical regardless.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 200: Success: Generic acknowledgement
  - 429: RATE_LIMITED: Per-source throttle exhausted
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	if err := handler.checkThrottle(writer, request, handler.resetThrottle); err != nil {
		return
	}

	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "If this email is registered, a reset link has been sent.",
	})
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Request:
  - Body: resetPasswordRequest (Token, Password)

Response:
  - 200: Success: Password updated
  - 400: INVALID_RESET_TOKEN / VALIDATION_ERROR
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password updated successfully",
	})
}

/*
ChangePassword updates the authenticated principal's password.

POST /api/v1/auth/change-password

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 400: VALIDATION_ERROR: New password too short
  - 401: UNAUTHORIZED: Current password incorrect
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if len(input.NewPassword) < constants.MinPasswordLength {
		respond.Error(writer, request, apperr.ValidationError("Password too short", apperr.FieldError{
			Field:   FieldNewPassword,
			Message: "Must be at least 6 characters",
		}))
		return
	}

	err = handler.service.ChangePassword(request.Context(), identity.ID, input.CurrentPassword, input.NewPassword)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

/*
RevokeSessions force-invalidates every session of the calling principal.

POST /api/v1/auth/revoke-sessions

Description: Bumps the token version so all outstanding access and refresh
tokens fail on next use, then expires this client's cookies.

Response:
  - 204: No Content: All sessions revoked
*/
func (handler *Handler) revokeSessions(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RevokeSessions(request.Context(), identity.ID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearSessionCookies(writer)
	respond.NoContent(writer)
}

// # Administration

/*
ListUsers returns a paginated account listing for administrators.

GET /api/v1/admin/users?page=&limit=

Response:
  - 200: Paginated principals
  - 403: FORBIDDEN: Caller is not an ADMIN
*/
func (handler *Handler) listUsers(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	principals, meta, err := handler.service.ListPrincipals(request.Context(), params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, principals, meta)
}

/*
AdminRevokeSessions force-invalidates every session of another principal.

POST /api/v1/admin/users/{id}/revoke-sessions

Description: The administrative arm of the credential-compromise escape
hatch.

Response:
  - 204: No Content: Sessions revoked
  - 400: VALIDATION_ERROR: Non-numeric id
  - 403: FORBIDDEN: Caller is not an ADMIN
*/
func (handler *Handler) adminRevokeSessions(writer http.ResponseWriter, request *http.Request) {
	principalID, err := requestutil.IntParam(request, "id")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RevokeSessions(request.Context(), principalID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Cookie & Throttle Helpers

// setAccessCookie installs the access token as an http-only cookie usable by
// browser clients that cannot attach Authorization headers.
func (handler *Handler) setAccessCookie(writer http.ResponseWriter, accessToken string) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(handler.service.codec.AccessTTL() / time.Second),
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// setRefreshCookie installs the refresh token, scoped to the auth endpoints.
// Refresh tokens travel exclusively via this cookie.
func (handler *Handler) setRefreshCookie(writer http.ResponseWriter, refreshToken string, expiresAt time.Time) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    refreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  expiresAt,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookies expires both security cookies on the client.
func (handler *Handler) clearSessionCookies(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// checkThrottle consumes one attempt from the given throttle for the request
// source. On exhaustion it writes the 429 itself and returns a sentinel so
// the caller can bail out.
func (handler *Handler) checkThrottle(writer http.ResponseWriter, request *http.Request, throttle Throttle) error {
	// The throttle key must match the rate limiter's notion of the client
	// IP, so one source cannot split its budget across key variants.
	allowed, retryAfter, err := throttle.Allow(request.Context(), middleware.RealIP(request))
	if err != nil || allowed {
		return nil
	}

	rateErr := apperr.RateLimited(retryAfter)
	respond.Error(writer, request, rateErr)
	return rateErr
}
