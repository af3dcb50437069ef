// Package crypto implements server-side secret hashing and random token generation.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the production bcrypt cost.
const DefaultCost = 10

// refreshTokenBytes is the entropy of a raw refresh token.
const refreshTokenBytes = 32

// ErrTooLong is returned for inputs bcrypt would silently refuse (over 72 bytes).
var ErrTooLong = bcrypt.ErrPasswordTooLong

// Hasher hashes secrets one-way and verifies candidates against stored digests.
type Hasher interface {
	// Hash returns a salted digest of plain.
	Hash(plain string) (string, error)
	// Verify reports whether plain matches digest.
	Verify(plain, digest string) bool
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

var _ Hasher = (*Bcrypt)(nil)

// NewBcrypt constructs a bcrypt hasher. Costs below bcrypt.MinCost are raised to it.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns a bcrypt digest of plain.
func (b *Bcrypt) Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify compares plain with digest using bcrypt's own comparison.
func (b *Bcrypt) Verify(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandomToken returns an unguessable URL-safe token short enough for bcrypt.
func RandomToken() (string, error) {
	b, err := RandBytes(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsTooLong reports whether err came from an oversize bcrypt input.
func IsTooLong(err error) bool { return errors.Is(err, ErrTooLong) }
