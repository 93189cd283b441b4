package identity

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meditrust/hospital-core/internal/apperr"
)

const (
	passwordMinLength = 8
	// bcrypt silently truncates beyond 72 bytes, so longer inputs are
	// rejected instead of hashed.
	passwordMaxLength = 72
	bcryptCost        = 12
)

const passwordSpecialSet = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// ValidatePassword enforces the password policy: length bounds plus at least
// one upper, lower, digit and special character.
func ValidatePassword(password string) *apperr.Error {
	if len(password) < passwordMinLength {
		return apperr.Validation("Password does not meet requirements").
			WithField("password", "must be at least 8 characters", nil)
	}
	if len(password) > passwordMaxLength {
		return apperr.Validation("Password does not meet requirements").
			WithField("password", "must be at most 72 characters", nil)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecialSet, r):
			special = true
		}
	}

	err := apperr.Validation("Password does not meet requirements")
	if !upper {
		err = err.WithField("password", "must contain an uppercase letter", nil)
	}
	if !lower {
		err = err.WithField("password", "must contain a lowercase letter", nil)
	}
	if !digit {
		err = err.WithField("password", "must contain a digit", nil)
	}
	if !special {
		err = err.WithField("password", "must contain a special character", nil)
	}
	if len(err.FieldErrors) > 0 {
		return err
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt. Plaintext is never
// stored or logged.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
