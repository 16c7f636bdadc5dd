// Package alerting records evidence, gates alerts through the per-identity
// cooldown and delivers admitted alerts asynchronously.
package alerting

import "errors"

var (
	// ErrNotFound is returned for unknown alert IDs.
	ErrNotFound = errors.New("alert not found")
	// ErrForbidden is returned when the caller is not the identity's handler.
	ErrForbidden = errors.New("not the responsible handler")
	// ErrInvalidAction is returned for unsupported notification actions.
	ErrInvalidAction = errors.New("invalid action")
	// ErrUnknownIdentity is returned when an alert references a missing identity.
	ErrUnknownIdentity = errors.New("unknown identity")
	// ErrNoChannel is returned when no notification channel is configured.
	ErrNoChannel = errors.New("no notification channel configured")
)

// permanentError marks a dispatch failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
