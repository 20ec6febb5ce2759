package domain

import "time"

// SessionTokenLength is the length of the opaque bearer secret in characters
// (hex encoding of 32 random bytes).
const SessionTokenLength = 64

type Session struct {
	ID     SessionID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID UserID    `gorm:"type:uuid;index" db:"user_id" json:"userId"`
	// Token is the opaque bearer secret carried by the client. Globally
	// unique; a collision on generation is a fatal defect, not a retry.
	Token      string    `gorm:"type:varchar(64);uniqueIndex:ux_sessions_token" db:"token" json:"-"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	ExpiresAt  time.Time `gorm:"not null" db:"expires_at" json:"expiresAt"`
	IsDisabled bool      `gorm:"not null;default:false" db:"is_disabled" json:"isDisabled"`
	// IsCrossSite selects SameSite=None cookie policy for embedded clients.
	IsCrossSite bool `gorm:"not null;default:false" db:"is_cross_site" json:"isCrossSite"`
	// IsMub marks an administrative/impersonation session, excluded from the
	// concurrency cap and history retention accounting.
	IsMub bool `gorm:"not null;default:false" db:"is_mub" json:"isMub"`
}

func (Session) TableName() string { return "sessions" }

// IsInvalid reports whether the session can no longer authenticate requests:
// it was disabled or its expiry has passed.
func (s *Session) IsInvalid(now time.Time) bool {
	return s.IsDisabled || !now.Before(s.ExpiresAt)
}

// IsRenewalRequired reports whether the session is inside its trailing renew
// window and should have its token and expiry replaced on the next
// authenticated read.
func (s *Session) IsRenewalRequired(now time.Time, renewPeriod time.Duration) bool {
	return s.ExpiresAt.Add(-renewPeriod).Before(now)
}
