package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeledger/internal/apperrors"
)

var testSecret = []byte("test-secret")

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(testSecret)

	claims := map[string]any{
		"sub":   "7d9f0b19-6c8e-4f1a-9b57-0e2f3a6f1c11",
		"email": "test@example.com",
	}

	tok, err := codec.Issue(claims, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(tok, ".")+1, "expected compact three-segment token")

	got, err := codec.Verify(tok)
	require.NoError(t, err)

	assert.Equal(t, claims["sub"], got["sub"])
	assert.Equal(t, claims["email"], got["email"])
	assert.Contains(t, got, "iat")
	assert.Contains(t, got, "exp")

	iat, ok := got["iat"].(float64)
	require.True(t, ok)
	exp, ok := got["exp"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 15*time.Minute, time.Duration(exp-iat)*time.Second, float64(time.Second))
}

func TestCodec_BitFlippedSignature(t *testing.T) {
	codec := NewCodec(testSecret)

	tok, err := codec.Issue(map[string]any{"sub": "user-1"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for _, bit := range []int{0, 3, 7} {
		flipped := make([]byte, len(sig))
		copy(flipped, sig)
		flipped[0] ^= 1 << bit

		tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)
		_, err := codec.Verify(tampered)
		assert.ErrorIs(t, err, apperrors.ErrBadSignature, "bit %d", bit)
	}

	// Flipping a bit of the encoded text directly can push a character out
	// of the base64url alphabet entirely. That must still read as a
	// signature failure, not a payload one.
	for bit := 0; bit < 8; bit++ {
		raw := []byte(tok)
		raw[len(raw)-1] ^= 1 << bit
		if raw[len(raw)-1] == '.' {
			// This flip changes the segment structure instead.
			continue
		}
		_, err := codec.Verify(string(raw))
		assert.ErrorIs(t, err, apperrors.ErrBadSignature, "encoded bit %d", bit)
	}
}

func TestCodec_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	issuer := NewCodecAt(testSecret, func() time.Time { return issuedAt })

	// Signed an hour ago with a 30 minute lifetime; the signature is valid
	// but the token is past its exp.
	tok, err := issuer.Issue(map[string]any{"sub": "user-1"}, 30*time.Minute)
	require.NoError(t, err)

	_, err = NewCodec(testSecret).Verify(tok)
	assert.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestCodec_Malformed(t *testing.T) {
	codec := NewCodec(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"empty signature", "a.b."},
		{"empty payload", "a..c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			assert.ErrorIs(t, err, apperrors.ErrMalformedToken)
		})
	}
}

func TestCodec_InvalidPayload(t *testing.T) {
	codec := NewCodec(testSecret)

	garbage := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	_, err := codec.Verify(garbage + "." + garbage + "." + garbage)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPayload)
}

func TestCodec_WrongSecret(t *testing.T) {
	tok, err := NewCodec([]byte("other-secret")).Issue(map[string]any{"sub": "user-1"}, time.Minute)
	require.NoError(t, err)

	_, err = NewCodec(testSecret).Verify(tok)
	assert.ErrorIs(t, err, apperrors.ErrBadSignature)
}
