// Package apperr holds the sentinel errors shared by the service layers.
// Handlers map them to HTTP statuses with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrUnauthorized  = errors.New("unauthorized")
	// ErrAuthRequired means a third-party credential is missing or revoked
	// and the user has to go through the OAuth flow again.
	ErrAuthRequired = errors.New("authorization required")
	ErrUpstream     = errors.New("upstream provider error")
)

// Validation wraps msg so that errors.Is(err, ErrValidation) holds.
func Validation(msg string) error {
	return &wrapped{msg: msg, kind: ErrValidation}
}

// NotFound wraps msg so that errors.Is(err, ErrNotFound) holds.
func NotFound(msg string) error {
	return &wrapped{msg: msg, kind: ErrNotFound}
}

type wrapped struct {
	msg  string
	kind error
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Unwrap() error { return w.kind }

// IsPermanent reports whether retrying the operation that produced err
// cannot change the outcome.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAuthRequired)
}
