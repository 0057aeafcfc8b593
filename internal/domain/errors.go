package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBanned      = errors.New("account banned")
	ErrEmailNotVerified   = errors.New("email not verified")

	ErrTokenExpired   = errors.New("token expired")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrTokenMalformed = errors.New("token malformed")
	// ErrRefreshReuse is always returned together with ErrTokenRevoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrInfrastructure marks store, ledger and broker failures. Safe to retry.
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

// Infra wraps a backing-store failure so that it matches ErrInfrastructure
// while keeping the cause for logs.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// Invalid builds a validation error naming the offending field.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, reason)
}

// Code returns the stable machine code for err. Order matters: more specific
// kinds are checked before the kinds they are wrapped in.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInfrastructure):
		return "infrastructure_unavailable"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountBanned):
		return "account_banned"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrRefreshReuse):
		return "refresh_token_reused"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenMalformed):
		return "token_malformed"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
