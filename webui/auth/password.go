// Package auth guards the admin endpoints with HTTP Basic credentials
// checked against a bcrypt hash.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt cost factors.
const (
	// DefaultCost is used when hashing a plain ADMIN_PASSWORD at startup.
	DefaultCost = 12

	// MinCost is the lowest cost accepted for a configured ADMIN_PASSWORD_HASH.
	MinCost = 10
)

// Errors returned by the password helpers.
var (
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrPasswordMismatch = errors.New("password does not match")
	ErrInvalidHash      = errors.New("invalid password hash format")
	ErrCostTooLow       = errors.New("hash cost is below minimum acceptable value")
)

// HashPassword returns a bcrypt hash of password at DefaultCost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost returns a bcrypt hash of password at cost. Tests use
// bcrypt.MinCost to stay fast.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares password with hash in constant time. Every
// mismatch, including a malformed hash, is reported as ErrPasswordMismatch.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidateHashStrength checks that hash is a bcrypt hash of at least MinCost.
func ValidateHashStrength(hash string) error {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return ErrInvalidHash
	}
	if cost < MinCost {
		return ErrCostTooLow
	}
	return nil
}

// IsValidHash reports whether hash is a well-formed bcrypt hash.
func IsValidHash(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}

// ResolveAdminHash picks the admin credential: a configured hash wins and
// must pass ValidateHashStrength; otherwise the plain password is hashed.
func ResolveAdminHash(plain, hash string) (string, error) {
	if hash != "" {
		if err := ValidateHashStrength(hash); err != nil {
			return "", err
		}
		return hash, nil
	}
	return HashPassword(plain)
}
