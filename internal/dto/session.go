package dto

import "time"

type SessionResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsDisabled  bool      `json:"isDisabled"`
	IsCrossSite bool      `json:"isCrossSite"`
	IsCurrent   bool      `json:"isCurrent"`
}

type MubSessionResponse struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
