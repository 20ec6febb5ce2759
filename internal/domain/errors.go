package domain

import "errors"

var (
	// ErrAuthMissing is returned when no session credential was presented at
	// a place that requires one.
	ErrAuthMissing = errors.New("authorization is missing")
	// ErrAuthInvalid is returned when a credential was presented but resolves
	// to no session, a disabled/expired session, or a mis-bound storage token.
	ErrAuthInvalid = errors.New("session is invalid")
	// ErrTokenInvalid covers signature, format and staleness failures of both
	// token kinds.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrCapabilityDenied means the token is valid and correctly bound but
	// lacks the flag required by the attempted operation.
	ErrCapabilityDenied = errors.New("capability denied")
	// ErrSessionCollision signals a freshly generated session token that
	// already exists. Treated as a defect (broken random source), never
	// retried.
	ErrSessionCollision = errors.New("session token collision")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user disabled")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
)
