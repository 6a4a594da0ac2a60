package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is absent or already swept.
	ErrNotFound = errors.New("record not found")

	// ErrSessionExpired is returned when a session exists but its expiry has
	// passed. It wraps ErrNotFound: callers that only care about usability can
	// match ErrNotFound and treat both the same way.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrNotFound)

	// ErrFamilyInvalidated is returned when a rotation is attempted against a
	// family that was already invalidated or is past its expiry ceiling.
	ErrFamilyInvalidated = errors.New("token family invalidated")

	// ErrTheftDetected is returned when a superseded token generation is
	// presented, implying a duplicate copy of a refresh token exists.
	ErrTheftDetected = errors.New("refresh token theft detected")

	// ErrTamperDetected is returned when the presented token matches the
	// current generation but not the expected link identifier.
	ErrTamperDetected = errors.New("refresh token tamper detected")

	// ErrScopeWidened is returned when a rotation requests scope outside the
	// scope granted at family creation.
	ErrScopeWidened = errors.New("requested scope exceeds granted scope")

	// ErrUnauthorized is returned when a privileged operation is attempted
	// without a valid credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// IsSecurityViolation reports whether err is a terminal security outcome that
// must force re-authentication, as opposed to an ordinary negative path.
func IsSecurityViolation(err error) bool {
	return errors.Is(err, ErrTheftDetected) ||
		errors.Is(err, ErrTamperDetected) ||
		errors.Is(err, ErrScopeWidened)
}
