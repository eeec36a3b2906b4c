// Package apikey issues and checks the bearer keys remote callers use.
// A key is stored as its last four characters (the lookup suffix) plus a
// bcrypt hash of the whole key.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	SuffixLen = 4
	MinLen    = 16
	maxLen    = 72 // bcrypt input limit
)

var ErrMalformed = errors.New("malformed api key")

// Generate returns a new random key (32 random bytes, URL-safe base64).
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Suffix is the lookup key of an API key.
func Suffix(key string) (string, error) {
	if err := validate(key); err != nil {
		return "", err
	}
	return key[len(key)-SuffixLen:], nil
}

func Hash(key string) (string, error) {
	if err := validate(key); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}

// Verify reports whether key matches hash.
func Verify(key, hash string) bool {
	if validate(key) != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

func validate(key string) error {
	if len(key) < MinLen || len(key) > maxLen {
		return fmt.Errorf("%w: length %d not in [%d,%d]", ErrMalformed, len(key), MinLen, maxLen)
	}
	return nil
}
