package service

import (
	"context"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/dto"
)

type AccountService interface {
	SignIn(ctx context.Context, r dto.SignInRequest) (*domain.User, *domain.Session, error)
	SignOut(ctx context.Context, s *domain.Session) error

	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error

	RequestEmailConfirmation(ctx context.Context, email string) error
	ConfirmEmail(ctx context.Context, token string) error
}

// Notifier delivers outbound tokens. Actual email transport lives outside
// this subsystem.
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, token string) error
	SendEmailConfirmation(ctx context.Context, to, token string) error
}
