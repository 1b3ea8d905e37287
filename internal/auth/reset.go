// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nordventa/fieldserve/internal/platform/apperr"
	"github.com/nordventa/fieldserve/internal/platform/constants"
	"github.com/nordventa/fieldserve/internal/platform/sec"
)

// # Password Recovery
//
// Reset tokens are single-use and time-bound. The forgot-password entry
// point is enumeration-resistant as a hard requirement: its observable
// behavior is identical for existing, unknown, and deactivated emails.

/*
RequestPasswordReset initiates the forgot-password flow.

Description: When the email belongs to an active principal, a high-entropy
token is generated, persisted with its expiry, and handed to the mailer as a
reset link. In every case — unknown email, deactivated account, even an
internal hiccup during token generation — the caller sees the same nil
result, so nothing about account existence leaks.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - error: Always nil from the caller's perspective; real failures are logged
*/
func (service *Service) RequestPasswordReset(ctx context.Context, email string) error {
	principal, err := service.store.FindByEmail(ctx, email)
	if err != nil || !principal.IsActive {
		// Identical outcome to the success path. Infrastructure failures are
		// logged but still hidden: a caller must not be able to distinguish
		// them either. A not-found is the expected miss and stays silent.
		if err != nil {
			if appError := apperr.As(err); appError == nil || appError.HTTPStatus >= 500 {
				service.logger.ErrorContext(ctx, "reset_request_lookup_failed", slog.String("error", err.Error()))
			}
		}
		return nil
	}

	token, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		service.logger.ErrorContext(ctx, "reset_token_generation_failed", slog.String("error", err.Error()))
		return nil
	}

	expiresAt := service.now().Add(service.config.ResetTokenTTL)
	if err := service.store.SetResetToken(ctx, principal.ID, token, expiresAt); err != nil {
		service.logger.ErrorContext(ctx, "reset_token_persist_failed",
			slog.Int64("principal_id", principal.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", service.config.AppBaseURL, token)
	if err := service.mailer.SendPasswordReset(ctx, principal.Email, resetURL); err != nil {
		service.logger.ErrorContext(ctx, "reset_mail_delivery_failed",
			slog.Int64("principal_id", principal.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

/*
ResetPassword completes the forgot-password flow.

Description: Resolves the token against an active principal with an
unexpired reset token, then applies the whole reset as one logical unit:
new hash, reset fields cleared, lockout cleared. Consuming the token twice
fails the second time with the same generic error as a never-issued token.

Parameters:
  - ctx: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: Validation failure, INVALID_RESET_TOKEN, or storage failures
*/
func (service *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < constants.MinPasswordLength {
		return apperr.ValidationError("Password too short", apperr.FieldError{
			Field:   FieldNewPassword,
			Message: fmt.Sprintf("Must be at least %d characters", constants.MinPasswordLength),
		})
	}
	if token == "" {
		return ErrInvalidResetToken()
	}

	now := service.now()

	// Wrong, expired, and already-consumed tokens all miss this lookup and
	// produce the same error: no oracle.
	principal, err := service.store.FindByResetToken(ctx, token, now)
	if err != nil {
		if apperr.IsAppError(err) && apperr.As(err).HTTPStatus < 500 {
			return ErrInvalidResetToken()
		}
		return fmt.Errorf("auth_service_reset_lookup_failed: %w", err)
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_reset_hash_failed: %w", err)
	}

	if err := service.store.ConsumeResetToken(ctx, principal.ID, newHash, now); err != nil {
		return fmt.Errorf("auth_service_reset_consume_failed: %w", err)
	}

	service.logger.InfoContext(ctx, "password_reset_completed", slog.Int64("principal_id", principal.ID))
	return nil
}
