package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by CheckPassword when the password does not match.
var ErrPasswordMismatch = errors.New("password mismatch")

// Hasher hashes and verifies account passwords with bcrypt.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's range. 0 selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{Cost: min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)}
}

// HashPassword returns the bcrypt hash of password.
func (h *Hasher) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword returns nil when password matches hash, ErrPasswordMismatch when it does not,
// or the bcrypt error for a malformed hash.
func (h *Hasher) CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// HashToken returns the hex SHA-256 of an opaque token (refresh jti, validation token) so stores
// never hold the raw value.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual compares token's hash with storedHash in constant time.
func TokenHashEqual(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}
