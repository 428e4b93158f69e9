package auth

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes: bcrypt не принимает пароли длиннее 72 байт.
	MaxPasswordBytes = 72
)

var (
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrLongPassword = errors.New("password must be at most 72 bytes")
)

// HashPassword хеширует пароль bcrypt.
func HashPassword(password string) (string, error) {
	if err := CheckPassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CheckPassword: политика длины. Минимум в символах, максимум в байтах.
func CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrLongPassword
	}
	return nil
}
