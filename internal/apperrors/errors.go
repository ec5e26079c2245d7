// Package apperrors defines the sentinel errors shared across the auth core.
// Handlers match them with errors.Is to pick status codes; anything not listed
// here is treated as an internal storage failure and never shown to clients.
package apperrors

import "errors"

// Business-rule rejections.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrDuplicateEmail     = errors.New("email already exists")
)

// Access-token verification failures.
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrInvalidPayload = errors.New("invalid token payload")
	ErrExpired        = errors.New("token has expired")
)

// Refresh-token failures.
var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token has expired")
	ErrUserInactive  = errors.New("user is deactivated")
)

// ErrRateLimited is advisory: the client should back off and retry later.
var ErrRateLimited = errors.New("too many attempts, try again later")
