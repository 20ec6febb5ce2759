package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/metrics"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/middleware"
	"github.com/xi-effect/xi.back-2-sub001/internal/store"
)

type SessionConfig struct {
	ExpiryTimeout         time.Duration // lifetime of a fresh or renewed session
	RenewPeriod           time.Duration // trailing window in which reads trigger renewal
	MaxConcurrentSessions int           // cap on simultaneously valid non-mub sessions
	MaxHistorySessions    int           // rows kept per user by retention
	MaxHistoryTimedelta   time.Duration // age past expiry after which rows are pruned
	Now                   func() time.Time
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ExpiryTimeout == 0 {
		c.ExpiryTimeout = 7 * 24 * time.Hour
	}
	if c.RenewPeriod == 0 {
		c.RenewPeriod = 3 * 24 * time.Hour
	}
	if c.MaxConcurrentSessions == 0 {
		c.MaxConcurrentSessions = 10
	}
	if c.MaxHistorySessions == 0 {
		c.MaxHistorySessions = 20
	}
	if c.MaxHistoryTimedelta == 0 {
		c.MaxHistoryTimedelta = 7 * 24 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type SessionServiceImpl struct {
	cfg   SessionConfig
	store *store.Store
}

func NewSessionService(cfg SessionConfig, st *store.Store) *SessionServiceImpl {
	return &SessionServiceImpl{cfg: cfg.withDefaults(), store: st}
}

// newUniqueToken generates a fresh bearer secret and re-checks global
// uniqueness. A collision means the random source is broken; it aborts loudly
// and is never retried.
func (s *SessionServiceImpl) newUniqueToken(ctx context.Context) (string, error) {
	buf := make([]byte, domain.SessionTokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	exists, err := s.store.Sessions().TokenExists(ctx, token)
	if err != nil {
		return "", err
	}
	if exists {
		slog.Error("session token collision, random source may be broken",
			"request_id", middleware.RequestIDFromContext(ctx))
		return "", domain.ErrSessionCollision
	}
	return token, nil
}

func (s *SessionServiceImpl) Create(ctx context.Context, userID domain.UserID, isCrossSite, isMub bool) (*domain.Session, error) {
	result := "success"
	defer func() {
		metrics.SessionsIssuedTotal.WithLabelValues("create", result).Inc()
	}()

	token, err := s.newUniqueToken(ctx)
	if err != nil {
		result = "failure"
		return nil, err
	}

	now := s.cfg.Now().UTC()
	sess := &domain.Session{
		UserID:      userID,
		Token:       token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.ExpiryTimeout),
		IsCrossSite: isCrossSite,
		IsMub:       isMub,
	}
	if err := s.store.Sessions().Create(ctx, sess); err != nil {
		result = "failure"
		return nil, err
	}
	return sess, nil
}

func (s *SessionServiceImpl) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := s.store.Sessions().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *SessionServiceImpl) Invalid(sess *domain.Session) bool {
	return sess.IsInvalid(s.cfg.Now().UTC())
}

func (s *SessionServiceImpl) RenewalRequired(sess *domain.Session) bool {
	return sess.IsRenewalRequired(s.cfg.Now().UTC(), s.cfg.RenewPeriod)
}

// Renew replaces the token and expiry in place. A concurrent renewal of the
// same session is not guarded against: the last write wins and the client
// holding the discarded token sees an early invalidation once it fully
// expires. Accepted race.
func (s *SessionServiceImpl) Renew(ctx context.Context, sess *domain.Session) error {
	result := "success"
	defer func() {
		metrics.SessionsIssuedTotal.WithLabelValues("renew", result).Inc()
	}()

	token, err := s.newUniqueToken(ctx)
	if err != nil {
		result = "failure"
		return err
	}

	expiresAt := s.cfg.Now().UTC().Add(s.cfg.ExpiryTimeout)
	if err := s.store.Sessions().UpdateCredential(ctx, sess.ID, token, expiresAt); err != nil {
		result = "failure"
		return err
	}
	sess.Token = token
	sess.ExpiresAt = expiresAt
	return nil
}

func (s *SessionServiceImpl) Disable(ctx context.Context, id domain.SessionID) error {
	return s.store.Sessions().Disable(ctx, id)
}

func (s *SessionServiceImpl) DisableAllOther(ctx context.Context, sess *domain.Session) (int64, error) {
	return s.store.Sessions().DisableAllOther(ctx, sess.UserID, sess.ID)
}

// CleanupConcurrentByUser enforces the concurrency cap: among the user's
// currently valid non-mub sessions ordered by expiry descending, everything
// at or past the boundary position is disabled. Sessions sharing the boundary
// expiry exactly go down together; there is no finer tie-break.
func (s *SessionServiceImpl) CleanupConcurrentByUser(ctx context.Context, userID domain.UserID) error {
	now := s.cfg.Now().UTC()
	boundary, err := s.store.Sessions().ValidExpiryAtOffset(ctx, userID, now, s.cfg.MaxConcurrentSessions)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil // under the cap
		}
		return err
	}
	n, err := s.store.Sessions().DisableValidExpiringBy(ctx, userID, now, boundary)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.SessionsPrunedTotal.WithLabelValues("concurrency").Add(float64(n))
		slog.Info("disabled sessions over concurrency cap", "user_id", userID, "count", n)
	}
	return nil
}

// CleanupHistoryByUser enforces retention: a session row survives only while
// it is among the newest MaxHistorySessions and not older than
// MaxHistoryTimedelta past expiry, whichever constraint is reached first.
func (s *SessionServiceImpl) CleanupHistoryByUser(ctx context.Context, userID domain.UserID) error {
	floor := s.cfg.Now().UTC().Add(-s.cfg.MaxHistoryTimedelta)
	boundary, err := s.store.Sessions().HistoryExpiryAtOffset(ctx, userID, floor, s.cfg.MaxHistorySessions)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			boundary = floor
		} else {
			return err
		}
	}
	n, err := s.store.Sessions().DeleteExpiringBy(ctx, userID, boundary)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.SessionsPrunedTotal.WithLabelValues("history").Add(float64(n))
		slog.Info("deleted sessions past retention", "user_id", userID, "count", n)
	}
	return nil
}

// CleanupByUser runs the concurrency pass then the history pass in one
// transaction, synchronously after a successful sign-in. All queries are
// scoped by user, so a slow cleanup only delays this user's response.
func (s *SessionServiceImpl) CleanupByUser(ctx context.Context, userID domain.UserID) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		scoped := &SessionServiceImpl{cfg: s.cfg, store: tx}
		if err := scoped.CleanupConcurrentByUser(ctx, userID); err != nil {
			return err
		}
		return scoped.CleanupHistoryByUser(ctx, userID)
	})
}

func (s *SessionServiceImpl) FindActiveMubSession(ctx context.Context, userID domain.UserID) (*domain.Session, error) {
	sess, err := s.store.Sessions().FindActiveMub(ctx, userID, s.cfg.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

func (s *SessionServiceImpl) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Session, error) {
	return s.store.Sessions().ListByUser(ctx, userID)
}
