package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
)

type SessionStore struct{ db *gorm.DB }

func (s *Store) Sessions() *SessionStore { return &SessionStore{s.DB} }

func (ss *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	return ss.db.WithContext(ctx).Create(sess).Error
}

func (ss *SessionStore) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var sess domain.Session
	if err := ss.db.WithContext(ctx).First(&sess, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (ss *SessionStore) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := ss.db.WithContext(ctx).Model(&domain.Session{}).
		Where("token = ?", token).
		Count(&count).Error
	return count > 0, err
}

// UpdateCredential replaces the session's token and expiry in place.
func (ss *SessionStore) UpdateCredential(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return ss.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"token": token, "expires_at": expiresAt}).Error
}

func (ss *SessionStore) Disable(ctx context.Context, id uuid.UUID) error {
	return ss.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ?", id).
		Update("is_disabled", true).Error
}

// DisableAllOther disables every other enabled non-mub session of the same
// user.
func (ss *SessionStore) DisableAllOther(ctx context.Context, userID, keepID uuid.UUID) (int64, error) {
	tx := ss.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id <> ? AND is_mub = ? AND is_disabled = ?", userID, keepID, false, false).
		Update("is_disabled", true)
	return tx.RowsAffected, tx.Error
}

// ValidExpiryAtOffset returns the expires_at of the user's valid non-mub
// session at the given position when ordered by expires_at descending, or
// ErrRecordNotFound when the user has that many or fewer.
func (ss *SessionStore) ValidExpiryAtOffset(ctx context.Context, userID uuid.UUID, now time.Time, offset int) (time.Time, error) {
	var sess domain.Session
	err := ss.db.WithContext(ctx).
		Where("user_id = ? AND is_mub = ? AND is_disabled = ? AND expires_at >= ?", userID, false, false, now).
		Order("expires_at DESC").
		Offset(offset).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrRecordNotFound
		}
		return time.Time{}, err
	}
	return sess.ExpiresAt, nil
}

// DisableValidExpiringBy disables the user's valid non-mub sessions whose
// expiry is at or before the boundary. Sessions sharing the boundary expiry
// exactly are disabled together.
func (ss *SessionStore) DisableValidExpiringBy(ctx context.Context, userID uuid.UUID, now, boundary time.Time) (int64, error) {
	tx := ss.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND is_mub = ? AND is_disabled = ? AND expires_at >= ? AND expires_at <= ?",
			userID, false, false, now, boundary).
		Update("is_disabled", true)
	return tx.RowsAffected, tx.Error
}

// HistoryExpiryAtOffset returns the expires_at of the user's non-mub session
// (any status) at the given position among those expiring after the retention
// floor, ordered by expires_at descending.
func (ss *SessionStore) HistoryExpiryAtOffset(ctx context.Context, userID uuid.UUID, floor time.Time, offset int) (time.Time, error) {
	var sess domain.Session
	err := ss.db.WithContext(ctx).
		Where("user_id = ? AND is_mub = ? AND expires_at > ?", userID, false, floor).
		Order("expires_at DESC").
		Offset(offset).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrRecordNotFound
		}
		return time.Time{}, err
	}
	return sess.ExpiresAt, nil
}

// DeleteExpiringBy removes the user's non-mub session rows whose expiry is at
// or before the boundary. The only physical deletion in the subsystem.
func (ss *SessionStore) DeleteExpiringBy(ctx context.Context, userID uuid.UUID, boundary time.Time) (int64, error) {
	tx := ss.db.WithContext(ctx).
		Where("user_id = ? AND is_mub = ? AND expires_at <= ?", userID, false, boundary).
		Delete(&domain.Session{})
	return tx.RowsAffected, tx.Error
}

// FindActiveMub returns the user's most recent valid mub session, if any.
func (ss *SessionStore) FindActiveMub(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Session, error) {
	var sess domain.Session
	err := ss.db.WithContext(ctx).
		Where("user_id = ? AND is_mub = ? AND is_disabled = ? AND expires_at > ?", userID, true, false, now).
		Order("expires_at DESC").
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// ListByUser returns the user's sessions newest-expiring first, for the
// session management surface.
func (ss *SessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	var sessions []domain.Session
	err := ss.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expires_at DESC").
		Find(&sessions).Error
	return sessions, err
}
