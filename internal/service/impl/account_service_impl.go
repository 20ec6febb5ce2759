package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/dto"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/metrics"
	"github.com/xi-effect/xi.back-2-sub001/internal/observability/middleware"
	"github.com/xi-effect/xi.back-2-sub001/internal/service"
	"github.com/xi-effect/xi.back-2-sub001/internal/store"
	"github.com/xi-effect/xi.back-2-sub001/internal/token"
)

type AccountServiceImpl struct {
	Store           *store.Store
	PasswordService service.PasswordService
	Sessions        service.SessionService
	// Separate sealed providers per purpose; TTLs and keys are never shared
	// across purposes.
	ResetTokens   *token.SealedProvider
	ConfirmTokens *token.SealedProvider
	Notifier      service.Notifier
}

func NewAccountService(
	st *store.Store,
	passwords service.PasswordService,
	sessions service.SessionService,
	resetTokens, confirmTokens *token.SealedProvider,
	notifier service.Notifier,
) *AccountServiceImpl {
	return &AccountServiceImpl{
		Store:           st,
		PasswordService: passwords,
		Sessions:        sessions,
		ResetTokens:     resetTokens,
		ConfirmTokens:   confirmTokens,
		Notifier:        notifier,
	}
}

func (a *AccountServiceImpl) SignIn(ctx context.Context, r dto.SignInRequest) (*domain.User, *domain.Session, error) {
	result := "success"
	defer func() {
		metrics.SignInsTotal.WithLabelValues(result).Inc()
	}()

	if r.Email == "" || r.Password == "" {
		result = "failure"
		return nil, nil, ErrEmptyCredential
	}

	var user *domain.User
	err := a.Store.WithTx(ctx, func(tx *store.Store) error {
		u, err := tx.Users().GetByEmail(ctx, r.Email)
		if err != nil {
			return domain.ErrInvalidCredentials // don't leak which field failed
		}
		if u.IsDisabled {
			return domain.ErrUserDisabled
		}

		cred, err := tx.Credentials().GetPasswordByUserID(ctx, u.ID)
		if err != nil {
			return domain.ErrInvalidCredentials
		}

		rehashNeeded, ok := a.PasswordService.Verify(r.Password, cred)
		if !ok {
			return domain.ErrInvalidCredentials
		}
		if rehashNeeded {
			hash, salt, paramsJSON, algo, ver, err := a.PasswordService.Hash(r.Password)
			if err != nil {
				return err
			}
			cred.Algo = algo
			cred.Hash = hash
			cred.Salt = salt
			cred.ParamsJSON = paramsJSON
			cred.PasswordVer = ver
			if err := tx.Credentials().UpsertPassword(ctx, cred); err != nil {
				return err
			}
		}

		user = u
		return nil
	})
	if err != nil {
		result = "failure"
		return nil, nil, err
	}

	sess, err := a.Sessions.Create(ctx, user.ID, r.CrossSite, false)
	if err != nil {
		result = "failure"
		return nil, nil, err
	}

	// Cap and retention passes run synchronously right after sign-in.
	if err := a.Sessions.CleanupByUser(ctx, user.ID); err != nil {
		result = "failure"
		return nil, nil, err
	}

	slog.Info("signed in", "user_id", user.ID, "session_id", sess.ID,
		"request_id", middleware.RequestIDFromContext(ctx))
	return user, sess, nil
}

func (a *AccountServiceImpl) SignOut(ctx context.Context, s *domain.Session) error {
	return a.Sessions.Disable(ctx, s.ID)
}

func newResetSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RequestPasswordReset stores a fresh secret on the user row and seals it
// into a token. Who requested the reset is re-established at confirmation by
// looking the decrypted secret back up, not by the token itself.
func (a *AccountServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}

	secret, err := newResetSecret()
	if err != nil {
		return err
	}
	if err := a.Store.Users().SetResetSecret(ctx, user.ID, &secret); err != nil {
		return err
	}

	sealed, err := a.ResetTokens.Encrypt(secret)
	if err != nil {
		return err
	}
	return a.Notifier.SendPasswordReset(ctx, user.Email, sealed)
}

func (a *AccountServiceImpl) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrPasswordLength
	}

	secret, err := a.ResetTokens.Decrypt(tokenStr)
	if err != nil {
		metrics.TokenVerificationsTotal.WithLabelValues("reset", "failure").Inc()
		return domain.ErrTokenInvalid
	}
	metrics.TokenVerificationsTotal.WithLabelValues("reset", "success").Inc()

	return a.Store.WithTx(ctx, func(tx *store.Store) error {
		user, err := tx.Users().GetByResetSecret(ctx, secret)
		if err != nil {
			// Sealed token is authentic but the secret was already consumed
			// or replaced.
			return domain.ErrTokenInvalid
		}

		hash, salt, paramsJSON, algo, ver, err := a.PasswordService.Hash(newPassword)
		if err != nil {
			return err
		}
		cred := &domain.PasswordCredential{
			UserID:      user.ID,
			Algo:        algo,
			Hash:        hash,
			Salt:        salt,
			ParamsJSON:  paramsJSON,
			PasswordVer: ver,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Credentials().UpsertPassword(ctx, cred); err != nil {
			return err
		}
		return tx.Users().SetResetSecret(ctx, user.ID, nil)
	})
}

func (a *AccountServiceImpl) RequestEmailConfirmation(ctx context.Context, email string) error {
	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrUserNotFound
		}
		return err
	}

	sealed, err := a.ConfirmTokens.Encrypt(user.Email)
	if err != nil {
		return err
	}
	return a.Notifier.SendEmailConfirmation(ctx, user.Email, sealed)
}

func (a *AccountServiceImpl) ConfirmEmail(ctx context.Context, tokenStr string) error {
	email, err := a.ConfirmTokens.Decrypt(tokenStr)
	if err != nil {
		metrics.TokenVerificationsTotal.WithLabelValues("confirm", "failure").Inc()
		return domain.ErrTokenInvalid
	}
	metrics.TokenVerificationsTotal.WithLabelValues("confirm", "success").Inc()

	user, err := a.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		return domain.ErrTokenInvalid
	}
	return a.Store.Users().SetEmailConfirmed(ctx, user.ID)
}
