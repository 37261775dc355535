package sessiontoken

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	// DefaultLeeway is clock skew tolerance for token validation.
	DefaultLeeway = 15 * time.Second
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 16

	issuer = "wedding-portal"
)

// Codec signs and verifies HS256 tokens that carry a single subject string.
// Each purpose (session cookie, flash message) derives its own key from the
// shared secret, so a token minted for one purpose never verifies for another.
type Codec struct {
	purpose string
	key     []byte
	ttl     time.Duration
	leeway  time.Duration
}

// NewCodec derives a purpose-bound key from secret. A zero ttl issues tokens without expiry.
func NewCodec(secret, purpose string, ttl time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, errors.New("token purpose is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(issuer+"/"+purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return &Codec{
		purpose: purpose,
		key:     key,
		ttl:     ttl,
		leeway:  DefaultLeeway,
	}, nil
}

// Sign issues a token for subject.
func (c *Codec) Sign(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  subject,
		Audience: jwt.ClaimStrings{c.purpose},
		IssuedAt: jwt.NewNumericDate(now),
		ID:       randomHexID(8),
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Verify validates signature, expiry, issuer and audience and returns the subject.
func (c *Codec) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token required")
	}
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(c.purpose),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("subject required")
	}
	return claims.Subject, nil
}

// TTL reports the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
