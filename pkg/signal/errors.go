package signal

import (
	"errors"
	"fmt"
)

// Sentinel errors for session layer failures.
var (
	// ErrNoSession is returned when encrypting or decrypting for a peer
	// without an established session.
	ErrNoSession = errors.New("signal: no session")

	// ErrDecrypt is returned when a blob fails authentication or is malformed.
	ErrDecrypt = errors.New("signal: decryption failed")

	// ErrBadSignature is returned when a bundle's signed prekey signature
	// does not verify.
	ErrBadSignature = errors.New("signal: bad signature")

	// ErrKeyDerivation is returned when HKDF or a DH agreement fails.
	ErrKeyDerivation = errors.New("signal: key derivation failed")

	// ErrInvalidKey is returned for keys of the wrong size or curve.
	ErrInvalidKey = errors.New("signal: invalid key")

	// ErrUnknownPreKey is returned when an initial message references a
	// prekey that is not in the local pool.
	ErrUnknownPreKey = errors.New("signal: unknown prekey")
)

// CryptoError wraps a session layer failure with the operation and peer.
type CryptoError struct {
	Op     string
	PeerID string
	Err    error
}

// Error returns the error message with peer context.
func (e *CryptoError) Error() string {
	if e.PeerID == "" {
		return fmt.Sprintf("signal: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("signal: %s %s: %v", e.Op, e.PeerID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

func newCryptoError(op, peerID string, err error) *CryptoError {
	return &CryptoError{Op: op, PeerID: peerID, Err: err}
}
