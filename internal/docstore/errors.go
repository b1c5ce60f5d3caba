package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the target file or directory does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned by Create when the target file already exists.
	ErrExists = errors.New("already exists")
)

// ValidationError reports a rejected path or content before any filesystem
// access has happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
