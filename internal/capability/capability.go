package capability

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xi-effect/xi.back-2-sub001/internal/domain"
	"github.com/xi-effect/xi.back-2-sub001/internal/token"
)

// YdocAccessLevel grades collaborative-document access carried by a storage
// token.
type YdocAccessLevel int

const (
	YdocNoAccess YdocAccessLevel = iota
	YdocReadOnly
	YdocReadWrite
)

// TokenPayload is the fixed-shape record carried by a storage capability
// token. It is signed, not encrypted: clients can inspect it but not mutate
// it. Produced once by a privileged caller and re-validated on every use;
// never stored server-side.
type TokenPayload struct {
	AccessGroupID string `json:"access_group_id"`
	// UserID pins the token to one user when set; nil means any
	// authenticated caller may present it.
	UserID          *uuid.UUID      `json:"user_id"`
	CanUploadFiles  bool            `json:"can_upload_files"`
	CanReadFiles    bool            `json:"can_read_files"`
	YdocAccessLevel YdocAccessLevel `json:"ydoc_access_level"`
}

func (p TokenPayload) validate() error {
	if p.AccessGroupID == "" {
		return errors.New("missing access group")
	}
	if p.YdocAccessLevel < YdocNoAccess || p.YdocAccessLevel > YdocReadWrite {
		return errors.New("ydoc access level out of range")
	}
	return nil
}

// AllowsYdoc reports whether the token grants at least the requested
// collaborative-document access level.
func (p TokenPayload) AllowsYdoc(level YdocAccessLevel) bool {
	return p.YdocAccessLevel >= level
}

// Verifier validates storage capability tokens and enforces their user
// binding. Possessing a valid, correctly bound token is necessary but never
// sufficient: every call site additionally checks the flag relevant to its
// operation.
type Verifier struct {
	provider *token.SignedProvider[TokenPayload]
}

func NewVerifier(keys [][]byte, maxAge time.Duration) (*Verifier, error) {
	provider, err := token.NewSignedProvider[TokenPayload](keys, maxAge)
	if err != nil {
		return nil, err
	}
	return &Verifier{provider: provider}, nil
}

// WithNow overrides the underlying provider's clock. Used by tests.
func (v *Verifier) WithNow(now func() time.Time) *Verifier {
	v.provider.WithNow(now)
	return v
}

// Issue signs a payload for a privileged caller.
func (v *Verifier) Issue(p TokenPayload) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	return v.provider.Issue(p)
}

// Verify checks signature, structure and staleness, then the user binding:
// a token pinned to a user may only be presented by that user, even when the
// signature itself is valid.
func (v *Verifier) Verify(tokenStr string, callerID domain.UserID) (TokenPayload, error) {
	payload, err := v.provider.Verify(tokenStr)
	if err != nil {
		return TokenPayload{}, domain.ErrTokenInvalid
	}
	if err := payload.validate(); err != nil {
		return TokenPayload{}, domain.ErrTokenInvalid
	}
	if payload.UserID != nil && *payload.UserID != callerID {
		return TokenPayload{}, domain.ErrAuthInvalid
	}
	return payload, nil
}
