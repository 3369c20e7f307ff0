package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const NonceLength = 32

// NonceCharset is the alphabet nonces are drawn from.
const NonceCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVXYZabcdefghijklmnopqrstuvwxyz-._"

const nonceBatchSize = 16

// NonceGenerator draws nonces from Reader, crypto/rand when nil.
type NonceGenerator struct {
	Reader io.Reader
}

// GenerateNonce returns a random nonce of NonceLength characters.
func GenerateNonce() (string, error) {
	return NonceGenerator{}.Generate(NonceLength)
}

// Generate returns length characters from NonceCharset. Bytes that fall
// outside the charset range are discarded so every character is equally
// likely.
func (g NonceGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("auth: nonce length must be positive")
	}
	reader := g.Reader
	if reader == nil {
		reader = rand.Reader
	}

	out := make([]byte, 0, length)
	batch := make([]byte, nonceBatchSize)
	for len(out) < length {
		if _, err := io.ReadFull(reader, batch); err != nil {
			return "", fmt.Errorf("auth: read random bytes: %w", err)
		}
		for _, b := range batch {
			if len(out) == length {
				break
			}
			if int(b) < len(NonceCharset) {
				out = append(out, NonceCharset[b])
			}
		}
	}
	return string(out), nil
}

// HashNonce returns the lowercase hex SHA-256 digest of nonce.
func HashNonce(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return hex.EncodeToString(sum[:])
}
