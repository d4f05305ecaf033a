package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for client operations.
var (
	// ErrNotConnected is returned when an operation needs an open transport.
	ErrNotConnected = errors.New("client: not connected")

	// ErrNotAuthenticated is returned when sending before the server
	// accepted the device.
	ErrNotAuthenticated = errors.New("client: not authenticated")

	// ErrConnectionClosed fails requests still pending when the
	// connection goes away.
	ErrConnectionClosed = errors.New("client: connection closed")

	// ErrAlreadyConnected is returned by Connect outside the
	// Disconnected state.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrHandshakeTimeout is returned when the server does not answer the
	// init message in time.
	ErrHandshakeTimeout = errors.New("client: handshake timeout")

	// ErrRequestTimeout is returned when no reply arrives for a tag.
	ErrRequestTimeout = errors.New("client: request timeout")

	// ErrReconnectExhausted is reported once the backoff runs out of attempts.
	ErrReconnectExhausted = errors.New("client: reconnect attempts exhausted")

	// ErrKeepAliveTimeout is reported when the link stays silent too long.
	ErrKeepAliveTimeout = errors.New("client: keep-alive timeout")

	// ErrDuplicateTag is returned when a tag is already awaiting a reply.
	ErrDuplicateTag = errors.New("client: tag already pending")

	// ErrSessionExpired is returned when the server rejects stored tokens.
	ErrSessionExpired = errors.New("client: session expired")

	// ErrConnectionReplaced is reported when another client takes over.
	ErrConnectionReplaced = errors.New("client: connection replaced")

	// ErrNoPairingRequest is returned by VerifyPairingCode without a prior
	// RequestPairingCode.
	ErrNoPairingRequest = errors.New("client: no pairing code requested")

	// ErrPairingRejected is returned when the server refuses a pairing step.
	ErrPairingRejected = errors.New("client: pairing rejected")

	// ErrInvalidPhone is returned for phone numbers outside E.164.
	ErrInvalidPhone = errors.New("client: invalid phone number")

	// ErrInvalidCode is returned for pairing codes that are not six digits.
	ErrInvalidCode = errors.New("client: invalid pairing code")

	// ErrInvalidPeer is returned when a recipient cannot be turned into a JID.
	ErrInvalidPeer = errors.New("client: invalid peer")

	// ErrMessageRejected is returned when the server nacks a message.
	ErrMessageRejected = errors.New("client: message rejected")
)

// ConnectionError reports a transport or handshake failure.
type ConnectionError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("client: connection %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthenticationError reports a failed challenge or pairing step.
type AuthenticationError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("client: authentication %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// MessageError reports a message that could not be sent or was refused.
type MessageError struct {
	Op    string
	MsgID string
	Err   error
}

// Error returns the error message with message context.
func (e *MessageError) Error() string {
	if e.MsgID != "" {
		return fmt.Sprintf("client: %s %s: %v", e.Op, e.MsgID, e.Err)
	}
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *MessageError) Unwrap() error {
	return e.Err
}
