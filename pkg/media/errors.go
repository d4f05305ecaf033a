package media

import (
	"errors"
	"fmt"
)

// Sentinel errors for media validation.
var (
	ErrUnsupportedType   = errors.New("media: unsupported type")
	ErrTooLarge          = errors.New("media: file too large")
	ErrEmpty             = errors.New("media: empty file")
	ErrInvalidDescriptor = errors.New("media: invalid descriptor")
)

// MediaError wraps a media failure with the operation and file name.
type MediaError struct {
	Op   string
	File string
	Err  error
}

// Error returns the error message with file context.
func (e *MediaError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("media: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media: %s %s: %v", e.Op, e.File, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *MediaError) Unwrap() error {
	return e.Err
}
