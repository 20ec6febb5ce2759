package domain

import "time"

type User struct {
	ID             UserID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email          string    `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	EmailConfirmed bool      `gorm:"not null;default:false" db:"email_confirmed" json:"emailConfirmed"`
	Username       string    `gorm:"type:citext;uniqueIndex:ux_users_username" db:"username" json:"username"`
	IsDisabled     bool      `gorm:"not null;default:false" db:"is_disabled" json:"isDisabled"`
	// ResetSecret holds the currently outstanding password-reset secret, if
	// any. The reset token itself only carries this value; the binding to the
	// user is re-established by looking the secret up here.
	ResetSecret *string   `gorm:"type:varchar(64);index" db:"reset_secret" json:"-"`
	CreatedAt   time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }
