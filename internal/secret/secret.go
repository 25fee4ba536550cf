// Package secret manages the shared secret sent to patients out-of-band. The
// ledger only ever stores the bcrypt hash; the plaintext exists once, at
// issuance, on its way into the notification.
package secret

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const (
	secretBytes = 15
	bcryptCost  = 10
)

// Generate produces a fresh random shared secret as a hex string.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Hash derives the one-way hash stored on the ledger.
func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether candidate matches the stored hash. An empty
// candidate never validates.
func Verify(hash, candidate string) bool {
	if candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
