package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands secret into n bytes bound to info with HKDF-SHA256.
// Distinct info strings yield independent keys from the same secret.
func DeriveKey(secret []byte, info string, n int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("crypto: empty secret")
	}
	out := make([]byte, n)
	stream := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(stream, out); err != nil {
		Zero(out)
		return nil, err
	}
	return out, nil
}
