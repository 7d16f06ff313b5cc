package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired means the credential could not be refreshed or was
	// rejected even after a refresh. The user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrLoginRequired means an anonymous request hit a protected resource.
	ErrLoginRequired = errors.New("login required")
)

// AuthError is a terminal authentication failure. By the time a caller sees
// one, the login redirect has already been triggered.
type AuthError struct {
	// Reason is ErrSessionExpired or ErrLoginRequired.
	Reason error
	// Err is the underlying cause, e.g. the refresh failure. May be nil.
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Reason, e.Err)
	}
	return e.Reason.Error()
}

// Unwrap exposes both the reason and the cause to errors.Is and errors.As.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// IsAuthError reports whether err is a terminal authentication failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
