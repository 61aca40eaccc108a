package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"agency-platform/pkg/password"
)

const dummyPasswordInput = "timing-equalizer-not-a-real-password"

// NewDummyPasswordHash returns a bcrypt hash at hasher's cost. Login compares
// against it when the email is unknown so both paths take the same time.
func NewDummyPasswordHash(hasher *password.Hasher) (string, error) {
	return hasher.Hash(dummyPasswordInput)
}

// HashTokenID hashes a token id before it is used as a storage key.
func HashTokenID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
