// Package cryptox holds the password hashing used by every backend.
package cryptox

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned by HashPassword for an empty password.
var ErrEmptyPassword = errors.New("empty password")

// HashPassword returns a bcrypt hash of password. A cost outside
// [bcrypt.MinCost, bcrypt.MaxCost] falls back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

// CheckPassword reports whether password matches hash. Malformed hashes
// never match.
func CheckPassword(hash []byte, password string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
