package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAPIKeyTooShort = errors.New("api key must be at least 16 characters")
)

const (
	bcryptCost   = 12
	minKeyLength = 16
)

// HashAPIKey hashes a pre-shared API key using bcrypt. The hash, not the
// key, is what gets configured on the server side.
func HashAPIKey(key string) (string, error) {
	if len(key) < minKeyLength {
		return "", ErrAPIKeyTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckAPIKey compares a presented API key with the configured hash
func CheckAPIKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
