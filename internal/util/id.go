package util

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns 128 random bits as hex. Used for request, event and consumer ids.
func NewID() string {
	return hex.EncodeToString(randomBytes(16))
}

// NewToken returns 256 random bits, base64url without padding, for session
// tokens that must stay unguessable.
func NewToken() string {
	return base64.RawURLEncoding.EncodeToString(randomBytes(32))
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return b
}
