// Package errors defines the domain error taxonomy shared by the ledger
// services and the HTTP layer.
package errors

import "fmt"

// DomainError is a business error with a stable machine-readable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so a detailed error
// built with Wrap still satisfies errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of the sentinel carrying a specific message and cause.
func Wrap(sentinel *DomainError, message string, cause error) *DomainError {
	if message == "" {
		message = sentinel.Message
	}
	return &DomainError{Code: sentinel.Code, Message: message, Err: cause}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...interface{}) *DomainError {
	return Wrap(ErrValidation, fmt.Sprintf(format, args...), nil)
}

// CodeOf extracts the code of the first DomainError in err's chain.
func CodeOf(err error) string {
	for err != nil {
		if de, ok := err.(*DomainError); ok {
			return de.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
