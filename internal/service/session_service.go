package service

import (
	"context"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
)

// SessionService owns the session lifecycle: creation, renewal, invalidation,
// the per-user concurrency cap and history retention. All operations run
// synchronously inside the request; correctness under concurrency is
// delegated to the store's transactional isolation.
type SessionService interface {
	Create(ctx context.Context, userID domain.UserID, isCrossSite, isMub bool) (*domain.Session, error)
	GetByToken(ctx context.Context, token string) (*domain.Session, error)

	Invalid(s *domain.Session) bool
	RenewalRequired(s *domain.Session) bool
	// Renew regenerates the token and expiry in place; the caller propagates
	// the new token to the client.
	Renew(ctx context.Context, s *domain.Session) error

	Disable(ctx context.Context, id domain.SessionID) error
	DisableAllOther(ctx context.Context, s *domain.Session) (int64, error)

	CleanupConcurrentByUser(ctx context.Context, userID domain.UserID) error
	CleanupHistoryByUser(ctx context.Context, userID domain.UserID) error
	// CleanupByUser runs concurrency cleanup then history cleanup, in that
	// order. Invoked after each successful sign-in.
	CleanupByUser(ctx context.Context, userID domain.UserID) error

	// FindActiveMubSession makes admin-session issuance idempotent: an
	// existing valid mub session is reused instead of duplicated.
	FindActiveMubSession(ctx context.Context, userID domain.UserID) (*domain.Session, error)

	ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Session, error)
}
