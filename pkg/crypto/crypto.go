package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret returns a bcrypt hash of the supplied secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret compares a bcrypt hash with the plaintext candidate.
func VerifySecret(hashedSecret, candidate string) bool {
	if hashedSecret == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(candidate)) == nil
}

// IsBcryptHash reports whether value looks like a bcrypt hash.
func IsBcryptHash(value string) bool {
	if _, err := bcrypt.Cost([]byte(value)); err != nil {
		return false
	}
	return strings.HasPrefix(value, "$2")
}

// SecretsEqual compares two secrets in constant time. Both sides are hashed
// first so the comparison does not leak their lengths.
func SecretsEqual(expected, candidate string) bool {
	if expected == "" || candidate == "" {
		return false
	}
	a := sha256.Sum256([]byte(expected))
	b := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
