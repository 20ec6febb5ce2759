package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignedProvider serializes a structured payload with an HS256 signature and
// an issue timestamp. The content is inspectable (base64 JSON), but any
// mutation invalidates the signature. Like SealedProvider it carries an
// ordered key list for rotation and enforces max age at verify time.
//
// Each logical purpose (storage capability grants, onboarding confirmations)
// gets its own instance with its own keys and TTL.
type SignedProvider[T any] struct {
	keys   [][]byte
	maxAge time.Duration
	now    func() time.Time
}

type signedClaims[T any] struct {
	Payload T `json:"payload"`
	jwt.RegisteredClaims
}

func NewSignedProvider[T any](keys [][]byte, maxAge time.Duration) (*SignedProvider[T], error) {
	if len(keys) == 0 {
		return nil, errors.New("signed provider: at least one key required")
	}
	return &SignedProvider[T]{keys: keys, maxAge: maxAge, now: time.Now}, nil
}

// WithNow overrides the provider's clock. Used by tests.
func (p *SignedProvider[T]) WithNow(now func() time.Time) *SignedProvider[T] {
	p.now = now
	return p
}

// Issue signs the payload with the current key.
func (p *SignedProvider[T]) Issue(payload T) (string, error) {
	claims := signedClaims[T]{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(p.now().UTC()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.keys[0])
}

// Verify checks the signature against the key list, enforces max age against
// the issue timestamp and deserializes into the payload shape. Unknown fields
// in the claims are rejected.
func (p *SignedProvider[T]) Verify(tokenStr string) (T, error) {
	var zero T

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return p.now().UTC() }),
	)

	for _, key := range p.keys {
		claims := &signedClaims[T]{}
		tok, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !tok.Valid {
			continue
		}
		// The jwt codec tolerates unknown claim fields; re-decode strictly so
		// a payload with extra fields does not slip through.
		if err := strictDecodeClaims(tokenStr, claims); err != nil {
			return zero, ErrInvalid
		}
		if claims.IssuedAt == nil {
			return zero, ErrInvalid
		}
		if p.now().UTC().Sub(claims.IssuedAt.Time) > p.maxAge {
			return zero, ErrInvalid
		}
		return claims.Payload, nil
	}
	return zero, ErrInvalid
}

func strictDecodeClaims[T any](tokenStr string, into *signedClaims[T]) error {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return ErrInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalid
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
