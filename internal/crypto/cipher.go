package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	KeySize = 32 // AES-256
	ivSize  = 16 // 128-bit IV, GCM with a non-standard nonce size
	tagSize = 16 // 128-bit authentication tag

	sep = ":"
)

var (
	ErrInvalidKey = errors.New("crypto: data key must be 32 bytes")
	ErrDecryption = errors.New("crypto: decryption failed")
)

// DecryptionError reports why an encoded secret was rejected. It matches
// ErrDecryption under errors.Is. Reason never contains key or plaintext bytes.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	return "crypto: decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

// Cipher seals strings with AES-256-GCM. The encoded form is
// hex(iv):hex(tag):hex(ciphertext). A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key. The key slice is not retained.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, sep), nil
}

// Decrypt verifies the tag and returns the plaintext. Any failure, including
// malformed input, yields a *DecryptionError and no partial output.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	iv, tag, ct, err := split(encoded)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(ct)+tagSize)
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	pt, err := c.aead.Open(nil, iv, buf, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed", Err: err}
	}
	return string(pt), nil
}

// IsEncoded reports whether s has the shape of an encoded secret. It does not
// authenticate anything.
func IsEncoded(s string) bool {
	_, _, _, err := split(s)
	return err == nil
}

func split(encoded string) (iv, tag, ct []byte, err error) {
	parts := strings.Split(encoded, sep)
	if len(parts) != 3 {
		return nil, nil, nil, &DecryptionError{Reason: "malformed input"}
	}
	if iv, err = hex.DecodeString(parts[0]); err != nil || len(iv) != ivSize {
		return nil, nil, nil, &DecryptionError{Reason: "malformed iv", Err: err}
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != tagSize {
		return nil, nil, nil, &DecryptionError{Reason: "malformed tag", Err: err}
	}
	if ct, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, &DecryptionError{Reason: "malformed ciphertext", Err: err}
	}
	return iv, tag, ct, nil
}
