package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol: malformed data")

// Decoding and framing errors.
var (
	ErrBufferTooShort     = errors.New("protocol: buffer too short")
	ErrUnknownMarker      = errors.New("protocol: unknown marker byte")
	ErrInvalidToken       = errors.New("protocol: dictionary index out of range")
	ErrInvalidPacked      = errors.New("protocol: invalid packed digit")
	ErrMaxDepthExceeded   = errors.New("protocol: maximum nesting depth exceeded")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrTrailingData       = errors.New("protocol: trailing bytes after node")
	ErrEmptyNode          = errors.New("protocol: node has no tag")
	ErrNodeTooLarge       = errors.New("protocol: too many elements in list")
	ErrStringTooLong      = errors.New("protocol: string too long")
	ErrInvalidFrame       = errors.New("protocol: frame has no tag separator")
)

// ProtocolError reports a grammar violation at a byte offset.
type ProtocolError struct {
	Op     string // "encode", "decode" or "frame"
	Offset int
	Err    error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	if e.Op == "encode" {
		return fmt.Sprintf("protocol: encode: %v", e.Err)
	}
	return fmt.Sprintf("protocol: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is makes every ProtocolError match ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func newProtocolError(op string, offset int, err error) *ProtocolError {
	return &ProtocolError{Op: op, Offset: offset, Err: err}
}
