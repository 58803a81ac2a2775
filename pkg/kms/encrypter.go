package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	sferr "github.com/secretforge/secretforge-core/pkg/errors"
)

// encryptionKeySize is the required AES-256 key length in bytes.
const encryptionKeySize = 32

// Encrypter seals and opens byte blobs with AES-256-GCM. It is used to
// store verification material (CA certificates, LDAP bind passwords) at
// rest without the rest of the core touching key material.
//
// Ciphertext layout is nonce || sealed; the nonce is random per call, so
// encrypting the same plaintext twice yields different ciphertexts.
//
// Encrypter is safe for concurrent use by multiple goroutines.
type Encrypter struct {
	aead cipher.AEAD
}

// NewEncrypter creates an Encrypter from a 32-byte key.
func NewEncrypter(key Secret) (*Encrypter, error) {
	if len(key.Value()) != encryptionKeySize {
		return nil, sferr.Newf(sferr.CodeInternalConfiguration,
			"encryption key must be exactly %d bytes", encryptionKeySize)
	}

	block, err := aes.NewCipher([]byte(key.Value()))
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternalCrypto, "failed to initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternalCrypto, "failed to initialize GCM")
	}
	return &Encrypter{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce-prefixed ciphertext.
func (e *Encrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternalCrypto, "failed to generate nonce")
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens nonce-prefixed ciphertext produced by [Encrypter.Encrypt].
// Truncated or tampered input fails with a crypto error that carries no
// detail about which check failed.
func (e *Encrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < e.aead.NonceSize() {
		return nil, sferr.New(sferr.CodeInternalCrypto, "ciphertext is truncated")
	}
	nonce, sealed := ciphertext[:e.aead.NonceSize()], ciphertext[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, sferr.Wrap(err, sferr.CodeInternalCrypto, "failed to decrypt ciphertext")
	}
	return plaintext, nil
}
