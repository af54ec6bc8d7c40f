package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

func gcmFromKey() (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(GetConfig().CredentialsKey)
	if err != nil {
		return nil, fmt.Errorf("decoding credentials key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptString seals a credential with AES-GCM under the configured key and
// returns it base64 encoded, nonce prepended.
func EncryptString(plaintext string) (string, error) {
	gcm, err := gcmFromKey()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	gcm, err := gcmFromKey()
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding credential: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("credential too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening credential: %w", err)
	}
	return string(plain), nil
}

// ResolveSecret returns the decrypted value when an encrypted form is set,
// otherwise the plain fallback.
func ResolveSecret(encrypted, plain string) (string, error) {
	if encrypted == "" {
		return plain, nil
	}
	return DecryptString(encrypted)
}
