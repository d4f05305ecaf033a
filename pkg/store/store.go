package store

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/waweb-dev/waweb/pkg/signal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document names shared by the file and object backends.
const (
	identityDoc = "keys/identity_key.json"
	preKeysDoc  = "keys/prekeys.json"
	sessionsDir = "sessions/"
	docSuffix   = ".json"

	// maxDocNameLen leaves room for the suffix and temp-file markers
	// within a 255 byte file name.
	maxDocNameLen = 200
)

// Sentinel errors.
var (
	// ErrStoreClosed is returned when a closed store is used.
	ErrStoreClosed = errors.New("store: closed")

	// ErrInvalidPeerID is returned for peer ids that cannot name a document.
	ErrInvalidPeerID = errors.New("store: invalid peer id")
)

// Store is a complete persistence backend.
type Store interface {
	signal.KeyStore
	signal.SessionStore
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
	_ Store = (*S3Store)(nil)
	_ Store = (*MemoryStore)(nil)
)

// sessionDocName maps a peer id to a document base name. Lowercase
// letters, digits and "@._-" are kept; every other byte, uppercase letters
// and '%' included, is written as %XX. The mapping is injective, also on
// case-insensitive file systems, so distinct peers never share a document.
func sessionDocName(peerID string) (string, error) {
	if peerID == "" || peerID == "." || peerID == ".." || len(peerID) > 200 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeerID, peerID)
	}
	const hexDigits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(peerID))
	for i := 0; i < len(peerID); i++ {
		c := peerID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '@', c == '.', c == '_', c == '-':
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0x0F])
		}
	}
	if sb.Len() > maxDocNameLen {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeerID, peerID)
	}
	return sb.String(), nil
}

func copySession(s *signal.Session) *signal.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
