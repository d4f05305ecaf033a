package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/media"
	"github.com/waweb-dev/waweb/pkg/protocol"
	"github.com/waweb-dev/waweb/pkg/signal"
	"github.com/waweb-dev/waweb/pkg/store"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryConnection Category = "connection"
	CategoryAuth       Category = "auth"
	CategoryMessage    Category = "message"
	CategoryMedia      Category = "media"
	CategoryProtocol   Category = "protocol"
	CategoryCrypto     Category = "crypto"
	CategoryStore      Category = "store"
	CategoryCLI        Category = "cli"
)

// WAError is a structured error with a stable code, a hint and a link to
// documentation. The CLI prints it with Format.
type WAError struct {
	// Code is a unique error identifier (e.g., "W201").
	Code string

	// Category is the error type (connection, auth, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *WAError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *WAError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *WAError) WithSuggestion(s string) *WAError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *WAError) WithDetail(d string) *WAError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *WAError) Wrap(err error) *WAError {
	e.Wrapped = err
	return e
}

// New creates a WAError from a registered error code.
func New(code string) *WAError {
	template, ok := registry[code]
	if !ok {
		return &WAError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &WAError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
		DocURL:     template.DocURL,
	}
}

// Newf creates a new WAError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *WAError {
	return &WAError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a WAError.
func FromError(err error, code string) *WAError {
	if err == nil {
		return nil
	}
	var we *WAError
	if stderrors.As(err, &we) {
		return we
	}
	return New(code).Wrap(err)
}

// classification maps library sentinels to codes. Order matters: the
// first match wins, so specific causes come before generic ones.
var classification = []struct {
	target error
	code   string
}{
	{client.ErrHandshakeTimeout, "W202"},
	{client.ErrKeepAliveTimeout, "W203"},
	{client.ErrReconnectExhausted, "W204"},
	{client.ErrConnectionReplaced, "W205"},
	{client.ErrRequestTimeout, "W206"},
	{client.ErrNotConnected, "W207"},
	{client.ErrConnectionClosed, "W207"},
	{client.ErrSessionExpired, "W301"},
	{client.ErrNotAuthenticated, "W302"},
	{client.ErrInvalidPhone, "W303"},
	{client.ErrInvalidCode, "W304"},
	{client.ErrNoPairingRequest, "W305"},
	{client.ErrPairingRejected, "W306"},
	{client.ErrInvalidPeer, "W401"},
	{client.ErrMessageRejected, "W402"},
	{media.ErrTooLarge, "W451"},
	{media.ErrUnsupportedType, "W452"},
	{media.ErrEmpty, "W453"},
	{media.ErrInvalidDescriptor, "W454"},
	{signal.ErrNoSession, "W501"},
	{signal.ErrDecrypt, "W502"},
	{signal.ErrBadSignature, "W503"},
	{signal.ErrInvalidKey, "W504"},
	{signal.ErrUnknownPreKey, "W504"},
	{store.ErrStoreClosed, "W601"},
	{store.ErrInvalidPeerID, "W602"},
	{protocol.ErrProtocol, "W701"},
}

// Classify wraps err in the WAError registered for its cause. Errors
// without a known cause become code fallback.
func Classify(err error, fallback string) *WAError {
	if err == nil {
		return nil
	}
	var we *WAError
	if stderrors.As(err, &we) {
		return we
	}
	for _, c := range classification {
		if stderrors.Is(err, c.target) {
			return New(c.code).Wrap(err)
		}
	}
	var ce *client.ConnectionError
	if stderrors.As(err, &ce) && ce.Op == "dial" {
		return New("W201").Wrap(err)
	}
	return New(fallback).Wrap(err)
}

// ExitCode maps an error to a process exit status. Configuration and usage
// problems exit with 2, everything else with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var we *WAError
	if stderrors.As(err, &we) {
		switch we.Category {
		case CategoryConfig, CategoryCLI:
			return 2
		}
	}
	return 1
}
