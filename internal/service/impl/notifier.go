package impl

import (
	"context"
	"log/slog"
)

// LogNotifier stands in for the platform's email delivery, which lives
// outside this subsystem. It records the recipient but never the token.
type LogNotifier struct{}

func (LogNotifier) SendPasswordReset(ctx context.Context, to, token string) error {
	slog.Info("password reset token issued", "to", to)
	return nil
}

func (LogNotifier) SendEmailConfirmation(ctx context.Context, to, token string) error {
	slog.Info("email confirmation token issued", "to", to)
	return nil
}
