package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller lacks the required relation to
	// the entity (not its owner, not the client, not an admin).
	ErrForbidden = errors.New("forbidden")
)

// ValidationError carries a caller-facing message for a 400 response.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
