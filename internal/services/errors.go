package services

import "errors"

var (
	// ErrEmailInUse is returned when registering an address that already has an account.
	ErrEmailInUse = errors.New("email already in use")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthorized is returned when a verified token names no account.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports malformed or inconsistent input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
