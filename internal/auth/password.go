package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordNotConfigured is returned when no admin password hash is set.
var ErrPasswordNotConfigured = errors.New("admin password hash is not configured")

// HashPassword hashes a plaintext password with configured cost. Costs
// outside bcrypt's range fall back to the library default.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	if hashed == "" {
		return ErrPasswordNotConfigured
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
