// Package token issues and verifies the short-lived signed access tokens.
package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"homeledger/internal/apperrors"
)

// Codec signs and verifies HS256 access tokens. It is stateless; the signing
// secret is injected at construction.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// NewCodecAt builds a codec with an injected clock for tests.
func NewCodecAt(secret []byte, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// Issue signs the given claims, adding iat and exp (now and now+ttl, unix
// seconds). The result is a compact header.payload.signature token.
func (c *Codec) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	now := c.now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(ttl).Unix()

	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
}

// Verify checks the token's shape, signature and expiry, returning the claim
// set on success. The HMAC comparison inside the parser is constant-time.
func (c *Codec) Verify(tokenString string) (map[string]any, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, apperrors.ErrMalformedToken
	}

	// A signature segment that is not even valid base64url can never match
	// the recomputed HMAC. Classify it as a signature failure rather than
	// letting the parser's decode error surface as a payload problem.
	if _, err := base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, apperrors.ErrBadSignature
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil && parsed.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, apperrors.ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, apperrors.ErrExpired
	default:
		// Three segments but the payload (or header) did not decode to a
		// well-formed claim set.
		return nil, apperrors.ErrInvalidPayload
	}
}
