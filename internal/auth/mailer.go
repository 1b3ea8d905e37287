// Copyright (c) 2026 FieldServe. All rights reserved.

package auth

import (
	"context"
	"log/slog"
)

// # Reset Delivery

// Mailer delivers the password-reset link to a principal. Delivery itself is
// an external collaborator; this subsystem only hands the token off.
type Mailer interface {
	// SendPasswordReset delivers the reset URL to the given address. Errors
	// are logged by the caller but never surfaced to the requester, to keep
	// the forgot-password response uniform.
	SendPasswordReset(ctx context.Context, email, resetURL string) error
}

// LogMailer is the default [Mailer]: it writes the reset URL to the
// structured log instead of sending mail. Used in development and in tests.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs the logging no-op mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs the reset URL at INFO level.
func (mailer *LogMailer) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	mailer.logger.InfoContext(ctx, "password_reset_link_issued",
		slog.String("email", email),
		slog.String("reset_url", resetURL),
	)
	return nil
}
