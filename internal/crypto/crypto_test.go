package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := testSealer(t)
	for _, plain := range []string{"", "abc123XYZ789", "a much longer binance api secret value"} {
		sealed, err := s.Seal(plain)
		require.NoError(t, err)
		assert.True(t, IsSealed(sealed))

		opened, err := s.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, opened)
	}
}

func TestSeal_RandomNonce(t *testing.T) {
	s := testSealer(t)
	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal("secret")
	require.NoError(t, err)

	other, err := NewSealer(make([]byte, KeySize))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpen_Invalid(t *testing.T) {
	s := testSealer(t)
	for _, bad := range []string{"", "plain", "ENC[v1]:", "ENC[v1]:!!!", "ENC[v1"} {
		_, err := s.Open(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewSealer_BadKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyFromBase64(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)

	key, err := KeyFromBase64(k)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	_, err = KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromBase64("%%%")
	assert.Error(t, err)
}
