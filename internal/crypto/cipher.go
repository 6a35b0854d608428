// Package crypto implements the shared-key message cipher for the chat
// relay. A single XChaCha20-Poly1305 key is generated per process and
// distributed to every registered client; ciphertexts travel as opaque
// base64url tokens of the form nonce || sealed-payload.
//
// Security model: there is one symmetric key for the whole process. Any
// participant holding the key can read all traffic. There are no per-user
// keys, no rotation, and no forward secrecy.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size in bytes of the shared symmetric key.
	KeySize = chacha20poly1305.KeySize
	// NonceSize is the size in bytes of the random per-message nonce.
	NonceSize = chacha20poly1305.NonceSizeX
)

// ErrInvalidToken is returned when a token was not produced by Encrypt
// under the same key: bad encoding, truncated data, or a failed
// authentication tag. Decryption failure is deterministic and never panics.
var ErrInvalidToken = errors.New("crypto: invalid or forged token")

// Cipher encrypts and decrypts chat messages under the process-wide key.
type Cipher struct {
	key  []byte
	aead cipher.AEAD
}

// NewCipher generates a fresh random key and returns a Cipher for it.
func NewCipher() (*Cipher, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewCipherFromKey(key)
}

// NewCipherFromKey returns a Cipher using the provided key, which must be
// exactly KeySize bytes.
func NewCipherFromKey(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("bad key size: need %d, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k, aead: aead}, nil
}

// NewCipherFromBase64Key builds a Cipher from a base64 key as delivered in
// an encryption_key event.
func NewCipherFromBase64Key(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return NewCipherFromKey(key)
}

// KeyBase64 returns the shared key encoded for an encryption_key event.
func (c *Cipher) KeyBase64() string {
	return base64.StdEncoding.EncodeToString(c.key)
}

// Encrypt seals plaintext with a fresh random nonce and returns an opaque
// token. Two encryptions of the same plaintext differ byte-for-byte.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt under the same key. Any token
// not produced that way yields ErrInvalidToken.
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	if len(raw) < NonceSize+c.aead.Overhead() {
		return "", ErrInvalidToken
	}
	plaintext, err := c.aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plaintext), nil
}
