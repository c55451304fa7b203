// Package crypto provides the authenticated secret-box encryption,
// password-derived keys, and public-key box used for protecting stored
// credentials, backed by golang.org/x/crypto's nacl primitives.
package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	SecretKeySize = 32
	NonceSize     = 24
)

// SecureBuffer is a zeroing-on-free byte buffer, used to hold session keys
// and passwords in memory for as short a time as possible.
type SecureBuffer struct {
	data []byte
}

// NewSecureBuffer takes ownership of b; the caller must not reuse b after
// this call.
func NewSecureBuffer(b []byte) *SecureBuffer {
	return &SecureBuffer{data: b}
}

// Bytes returns the underlying buffer. The returned slice is only valid
// until Wipe is called.
func (s *SecureBuffer) Bytes() []byte { return s.data }

// Wipe zeroes the buffer in place; safe to call more than once.
func (s *SecureBuffer) Wipe() {
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
}

// DeriveKey derives a SecretKeySize key from a password and salt using
// scrypt, the password-derived-key primitive named.
func DeriveKey(password, salt []byte) (*SecureBuffer, error) {
	key, err := scrypt.Key(password, salt, 1<<15, 8, 1, SecretKeySize)
	if err != nil {
		return nil, err
	}
	return NewSecureBuffer(key), nil
}

// SealSecretBox authenticated-encrypts plaintext under key, prefixing a
// freshly generated random nonce to the ciphertext.
func SealSecretBox(plaintext []byte, key *SecureBuffer) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	var keyArr [SecretKeySize]byte
	copy(keyArr[:], key.Bytes())
	out := make([]byte, 0, len(nonce)+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, &keyArr), nil
}

// OpenSecretBox reverses SealSecretBox.
func OpenSecretBox(sealed []byte, key *SecureBuffer) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, errors.New("crypto: sealed message too short")
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	var keyArr [SecretKeySize]byte
	copy(keyArr[:], key.Bytes())
	out, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, &keyArr)
	if !ok {
		return nil, errors.New("crypto: secretbox authentication failed")
	}
	return out, nil
}

// GenerateBoxKeyPair generates a public-key box keypair, the public-key box
// primitive named.
func GenerateBoxKeyPair() (publicKey, privateKey *[32]byte, err error) {
	return box.GenerateKey(rand.Reader)
}

// SealBox authenticated-encrypts plaintext from sender to recipient.
func SealBox(plaintext []byte, recipientPublic, senderPrivate *[32]byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+box.Overhead)
	out = append(out, nonce[:]...)
	return box.Seal(out, plaintext, &nonce, recipientPublic, senderPrivate), nil
}

// OpenBox reverses SealBox.
func OpenBox(sealed []byte, senderPublic, recipientPrivate *[32]byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, errors.New("crypto: sealed message too short")
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	out, ok := box.Open(nil, sealed[NonceSize:], &nonce, senderPublic, recipientPrivate)
	if !ok {
		return nil, errors.New("crypto: box authentication failed")
	}
	return out, nil
}
