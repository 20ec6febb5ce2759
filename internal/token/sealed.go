package token

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalid is returned by both providers for malformed, unauthenticated and
// stale tokens alike; callers never learn which check failed.
var ErrInvalid = errors.New("invalid token")

// SealedProvider reversibly encrypts a single opaque string with
// XChaCha20-Poly1305. The ciphertext embeds its creation timestamp, so
// validity is entirely a function of the token and the verifier's clock; no
// state is persisted. The provider holds an ordered key list, current key
// first, so keys can be rotated without invalidating tokens sealed under a
// previous key.
type SealedProvider struct {
	aeads []cipher.AEAD
	ttl   time.Duration
	now   func() time.Time
}

func NewSealedProvider(keys [][]byte, ttl time.Duration) (*SealedProvider, error) {
	if len(keys) == 0 {
		return nil, errors.New("sealed provider: at least one key required")
	}
	p := &SealedProvider{ttl: ttl, now: time.Now}
	for _, k := range keys {
		// Arbitrary-length key material is reduced to the 32 bytes the AEAD
		// needs.
		sum := sha256.Sum256(k)
		aead, err := chacha20poly1305.NewX(sum[:])
		if err != nil {
			return nil, err
		}
		p.aeads = append(p.aeads, aead)
	}
	return p, nil
}

// WithNow overrides the provider's clock. Used by tests.
func (p *SealedProvider) WithNow(now func() time.Time) *SealedProvider {
	p.now = now
	return p
}

// Encrypt seals the payload under the current key together with the current
// timestamp and returns a base64url string safe to hand to clients.
func (p *SealedProvider) Encrypt(payload string) (string, error) {
	aead := p.aeads[0]

	plaintext := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(plaintext[:8], uint64(p.now().UTC().Unix()))
	copy(plaintext[8:], payload)

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens the token under each configured key in order and enforces the
// TTL against the embedded timestamp. Side-effect free and idempotent.
func (p *SealedProvider) Decrypt(opaque string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return "", ErrInvalid
	}

	for _, aead := range p.aeads {
		if len(raw) < aead.NonceSize() {
			continue
		}
		nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
		plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			continue
		}
		if len(plaintext) < 8 {
			return "", ErrInvalid
		}
		issuedAt := time.Unix(int64(binary.BigEndian.Uint64(plaintext[:8])), 0)
		if p.now().UTC().Sub(issuedAt) > p.ttl {
			return "", ErrInvalid
		}
		return string(plaintext[8:]), nil
	}
	return "", ErrInvalid
}
