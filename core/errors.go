package core

import "github.com/pkg/errors"

// auth errors
var (
	ErrUnauthenticated = errors.New("could not validate credentials")
	ErrForbidden       = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
)

// validation errors
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrCrossOrgReference = errors.New("all lesson members must belong to your organisation")
	ErrRoleMismatch      = errors.New("lesson members must have the role of their slot")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrUserNotFound      = errors.New("user not found")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error {
	return err.Err
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
