package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoRandomBytes(t *testing.T) {
	a, err := CryptoRandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := CryptoRandomBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCryptoRandomString(t *testing.T) {
	for _, length := range []int{1, 10, 15, 32} {
		s, err := CryptoRandomString(length)
		require.NoError(t, err)
		assert.Len(t, s, length)
		for _, r := range s {
			assert.Contains(t, "0123456789abcdef", string(r))
		}
	}

	a, err := CryptoRandomString(32)
	require.NoError(t, err)
	b, err := CryptoRandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRandomURLToken(t *testing.T) {
	s, err := RandomURLToken(32)
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
}

func TestHashAndVerifyPassword(t *testing.T) {
	salt, err := CryptoRandomString(10)
	require.NoError(t, err)

	hash := HashPassword("correct horse battery", salt)
	assert.Equal(t, hash, HashPassword("correct horse battery", salt))

	assert.True(t, VerifyPassword("correct horse battery", salt, hash))
	assert.False(t, VerifyPassword("wrong password", salt, hash))
	assert.False(t, VerifyPassword("correct horse battery", "othersalt0", hash))
	assert.False(t, VerifyPassword("correct horse battery", salt, ""))
}

func TestSHA256Hex(t *testing.T) {
	// Known vector: sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Hex("abc"))
	assert.Len(t, SHA256Hex(""), 64)
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("token", "token"))
	assert.False(t, ConstantTimeEquals("token", "Token"))
	assert.False(t, ConstantTimeEquals("token", "token-longer"))
	assert.True(t, ConstantTimeEquals("", ""))
}
