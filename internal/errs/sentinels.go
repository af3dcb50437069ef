// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates missing or malformed input fields.
	ErrValidation = errors.New("validation")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidCredentials covers unknown email, inactive account and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken indicates no live refresh token matched the presented secret.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidToken indicates an access token that failed structural, signature or expiry checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller without a required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrConfiguration indicates missing or invalid server configuration (e.g., signing secret).
	ErrConfiguration = errors.New("configuration")
)

// IsAuthFailure reports whether err is one of the client-caused authentication failures
// that must be collapsed into a single generic response.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUnauthorized)
}

// ValidationError carries a client-facing message and matches ErrValidation.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation returns a ValidationError with msg.
func Validation(msg string) error { return &ValidationError{Msg: msg} }
