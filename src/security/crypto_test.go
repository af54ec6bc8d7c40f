package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret := "7231958273:AAF-telegram-bot-token"

	encrypted, err := EncryptString(secret)
	require.NoError(t, err)
	require.NotEqual(t, secret, encrypted)

	decrypted, err := DecryptString(encrypted)
	require.NoError(t, err)
	require.Equal(t, secret, decrypted)

	// Fresh nonce every time.
	again, err := EncryptString(secret)
	require.NoError(t, err)
	require.NotEqual(t, encrypted, again)
}

func TestDecryptRejectsTamperedCredential(t *testing.T) {
	encrypted, err := EncryptString("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = DecryptString(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := DecryptString("not base64 at all!")
	require.Error(t, err)

	_, err = DecryptString(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	encrypted, err := EncryptString("from-vault")
	require.NoError(t, err)

	t.Run("prefers the encrypted form", func(t *testing.T) {
		got, err := ResolveSecret(encrypted, "plain-fallback")
		require.NoError(t, err)
		require.Equal(t, "from-vault", got)
	})

	t.Run("falls back to the plain value", func(t *testing.T) {
		got, err := ResolveSecret("", "plain-fallback")
		require.NoError(t, err)
		require.Equal(t, "plain-fallback", got)
	})
}
