package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmployeeAlreadyExists = errors.New("employee already exists")
	ErrEmployeeNotFound      = errors.New("employee not found")

	// Login failures
	// Unknown employee and wrong password both end up as ErrInvalidCredentials
	ErrRateLimitExceeded  = errors.New("too many login attempts")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordExpired    = errors.New("password expired")
	ErrPasswordRequired   = errors.New("password required")
	ErrDepartmentRequired = errors.New("department required")

	// New password has to differ from the current one
	ErrPasswordUnchanged = errors.New("new password equals the current one")

	// Token failures
	// Malformed, expired and reused refresh tokens are all reported to clients as ErrInvalidRefreshToken
	ErrMalformedToken       = errors.New("token is malformed")
	ErrExpiredToken         = errors.New("token is expired")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrSigningMisconfigured = errors.New("token signing is misconfigured")

	// Storage could not serve the request. Callers must fail closed
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RateLimitError is returned when the client made too many failed login attempts
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// RetryAfterMinutes rounds the wait up, so clients never retry too early
func (e *RateLimitError) RetryAfterMinutes() int {
	return CeilMinutes(e.RetryAfter)
}

// CredentialsError is returned on a failed credential check
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: %d attempts left", ErrInvalidCredentials, e.RemainingAttempts)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// PasswordExpiredError is returned when credentials are valid but the password must be changed first
type PasswordExpiredError struct {
	ExpiredAt time.Time
}

func (e *PasswordExpiredError) Error() string {
	return fmt.Sprintf("%s at %s", ErrPasswordExpired, e.ExpiredAt.Format(time.RFC3339))
}

func (e *PasswordExpiredError) Unwrap() error { return ErrPasswordExpired }

// CeilMinutes converts duration to whole minutes rounding up
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
