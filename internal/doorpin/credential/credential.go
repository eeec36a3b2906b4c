// Package credential verifies PIN and RFID candidates against salted
// hashes. Plaintext credentials are never stored.
package credential

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"

	"github.com/doorpin/server/internal/doorpin/permission"
)

type Kind string

const (
	KindPin  Kind = "pin"
	KindRfid Kind = "rfid"
)

// PinRecord is a stored PIN. Hash is Hash(plaintext, Salt).
type PinRecord struct {
	ID        int64
	OwnerID   int64
	OwnerRole permission.Role
	Salt      string
	Hash      string
	Label     string
}

// RfidRecord is a stored RFID tag. LastFourDigits is kept in clear so a
// user can tell their tags apart.
type RfidRecord struct {
	ID             int64
	OwnerID        int64
	OwnerRole      permission.Role
	Salt           string
	Hash           string
	Label          string
	LastFourDigits string
}

// saltBytes matches the 16-byte token the first deployments stored.
const saltBytes = 16

// GenerateSalt returns a fresh hex-encoded random salt.
func GenerateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Hash computes the stored form of plaintext: the hex of the salt bytes
// followed by hex(SHA-512(salt ‖ plaintext)).
func Hash(plaintext, salt string) string {
	h := sha512.New()
	h.Write([]byte(salt))
	h.Write([]byte(plaintext))
	return hex.EncodeToString([]byte(salt)) + hex.EncodeToString(h.Sum(nil))
}

// NewPin builds a PinRecord for plaintext with a fresh salt.
func NewPin(ownerID int64, role permission.Role, plaintext, label string) (PinRecord, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return PinRecord{}, err
	}
	return PinRecord{
		OwnerID:   ownerID,
		OwnerRole: role,
		Salt:      salt,
		Hash:      Hash(plaintext, salt),
		Label:     label,
	}, nil
}

// NewRfid builds an RfidRecord for the tag payload uuid with a fresh salt.
func NewRfid(ownerID int64, role permission.Role, uuid, label string) (RfidRecord, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return RfidRecord{}, err
	}
	last := uuid
	if len(last) > 4 {
		last = last[len(last)-4:]
	}
	return RfidRecord{
		OwnerID:        ownerID,
		OwnerRole:      role,
		Salt:           salt,
		Hash:           Hash(uuid, salt),
		Label:          label,
		LastFourDigits: last,
	}, nil
}
