package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

const testEncryptionKey = Secret("0123456789abcdef0123456789abcdef")

func TestNewEncrypter_KeySize(t *testing.T) {
	t.Parallel()
	_, err := NewEncrypter(Secret("too-short"))
	require.Error(t, err)
	assert.Equal(t, sferr.CodeInternalConfiguration, sferr.GetCode(err))

	_, err = NewEncrypter(testEncryptionKey)
	assert.NoError(t, err)
}

func TestEncrypter_RoundTrip(t *testing.T) {
	t.Parallel()
	enc, err := NewEncrypter(testEncryptionKey)
	require.NoError(t, err)

	plaintext := []byte("-----BEGIN CERTIFICATE-----\nMIIB...\n-----END CERTIFICATE-----")

	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "BEGIN CERTIFICATE")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestEncrypter_NonceIsRandom(t *testing.T) {
	t.Parallel()
	enc, err := NewEncrypter(testEncryptionKey)
	require.NoError(t, err)

	first, err := enc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := enc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "repeated encryption must not produce identical ciphertext")
}

func TestEncrypter_Decrypt_Tampered(t *testing.T) {
	t.Parallel()
	enc, err := NewEncrypter(testEncryptionKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("bind password"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = enc.Decrypt(sealed)
	require.Error(t, err)
	assert.Equal(t, sferr.CodeInternalCrypto, sferr.GetCode(err))
}

func TestEncrypter_Decrypt_WrongKey(t *testing.T) {
	t.Parallel()
	enc, err := NewEncrypter(testEncryptionKey)
	require.NoError(t, err)
	other, err := NewEncrypter(Secret("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("bind password"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}

func TestEncrypter_Decrypt_Truncated(t *testing.T) {
	t.Parallel()
	enc, err := NewEncrypter(testEncryptionKey)
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte{0x01, 0x02})
	require.Error(t, err)
	assert.Equal(t, sferr.CodeInternalCrypto, sferr.GetCode(err))
}
