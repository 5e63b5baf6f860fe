// Package cerrs defines the error taxonomy shared by the messaging core.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is without parsing strings.
package cerrs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed, empty or oversized input and
	// duplicate group names.
	ErrValidation = errors.New("validation error")
	// ErrAuthorization marks an actor acting on a record it has no
	// permission for.
	ErrAuthorization = errors.New("authorization error")
	// ErrNotFound marks an absent id or name.
	ErrNotFound = errors.New("not found")
	// ErrState marks an operation invalid for the record's lifecycle
	// state, e.g. editing a tombstone or ending an ended call.
	ErrState = errors.New("state error")
	// ErrCrypto marks a decryption failure (corrupt blob or wrong key).
	ErrCrypto = errors.New("crypto error")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Authorizationf wraps ErrAuthorization with a formatted message.
func Authorizationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrAuthorization)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Statef wraps ErrState with a formatted message.
func Statef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrState)...)
}

// Cryptof wraps ErrCrypto with a formatted message.
func Cryptof(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCrypto)...)
}

// Kind returns a short stable name for the sentinel err wraps, or "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	default:
		return "internal"
	}
}
