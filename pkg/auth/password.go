package auth

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	ErrPasswordTooShort  = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong   = errors.New("password must be at most 72 bytes")
	ErrPasswordNoUpper   = errors.New("password must contain an uppercase letter")
	ErrPasswordNoLower   = errors.New("password must contain a lowercase letter")
	ErrPasswordNoDigit   = errors.New("password must contain a digit")
	ErrPasswordNoSpecial = errors.New("password must contain a special character")
)

// dummyHash is compared against when no account exists so that unknown
// emails and wrong passwords take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("wildwatch-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a bcrypt hash.
func CheckPassword(password, stored string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// BurnCheck performs a throwaway comparison with the same cost as CheckPassword.
func BurnCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// ValidatePassword enforces the account password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordNoUpper
	case !lower:
		return ErrPasswordNoLower
	case !digit:
		return ErrPasswordNoDigit
	case !special:
		return ErrPasswordNoSpecial
	}
	return nil
}
