package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// CryptoRandomBytes generates cryptographically secure random bytes.
func CryptoRandomBytes(length int64) ([]byte, error) {
	buf := make([]byte, length)
	_, err := rand.Read(buf)
	return buf, err
}

// CryptoRandomString generates a random hex string for salts.
func CryptoRandomString(length int) (string, error) {
	bytes, err := CryptoRandomBytes(int64((length + 1) / 2))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes)[:length], nil
}

// RandomURLToken generates a URL-safe random token with n bytes of entropy.
// Used for OAuth state and nonce values (n >= 32 in all callers).
func RandomURLToken(n int64) (string, error) {
	bytes, err := CryptoRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashPassword returns the PBKDF2-SHA256 hash of password with salt.
func HashPassword(password, salt string) string {
	hash := pbkdf2.Key([]byte(password), []byte(salt), 10000, 50, sha256.New)
	return hex.EncodeToString(hash)
}

// VerifyPassword compares password against a stored PBKDF2 hash in constant time.
func VerifyPassword(password, salt, storedHash string) bool {
	computed := HashPassword(password, salt)
	return ConstantTimeEquals(computed, storedHash)
}

// SHA256Hex returns the SHA-256 hash of s as a lowercase hex string.
// Intended for high-entropy, unguessable values (refresh tokens, API keys,
// authorization codes); for such inputs a salt is not required.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEquals compares two strings without leaking the match position.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
