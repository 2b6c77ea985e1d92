package share

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden rejects a source address outside the grant's allowlist.
	ErrForbidden = errors.New("source address not allowed")
	// ErrUnauthorized rejects a wrong share password.
	ErrUnauthorized = errors.New("invalid share password")
)

// ValidationError reports malformed creation input. It is raised
// synchronously at creation time and never reaches a share holder.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
