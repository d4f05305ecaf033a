package signal

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KDF labels.
const (
	rootKeyInfo    = "waweb root key"
	chainKeyInfo   = "waweb chain key"
	messageKeyInfo = "waweb message key"
)

// KeySize is the size of root, chain and message keys.
const KeySize = 32

func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, ErrKeyDerivation
	}
	return out, nil
}

// deriveSessionKeys expands the concatenated DH outputs into the root and
// chain keys.
func deriveSessionKeys(secret []byte) (root, chain []byte, err error) {
	root, err = deriveKey(secret, nil, rootKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	chain, err = deriveKey(secret, nil, chainKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	return root, chain, nil
}

func deriveMessageKey(chainKey []byte) ([]byte, error) {
	if len(chainKey) != KeySize {
		return nil, ErrInvalidKey
	}
	return deriveKey(chainKey, nil, messageKeyInfo)
}
