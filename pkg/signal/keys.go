package signal

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"
)

// DefaultPreKeyCount is the size of the one-time prekey pool.
const DefaultPreKeyCount = 100

// KeyPair is a DH key pair for one Agreement.
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// IdentityKeyPair is the long-term identity: an Ed25519 signing pair plus a
// DH pair for agreement.
type IdentityKeyPair struct {
	Agreement      string             `json:"agreement"`
	RegistrationID uint32             `json:"registrationId"`
	SigningPublic  ed25519.PublicKey  `json:"signingPublic"`
	SigningPrivate ed25519.PrivateKey `json:"signingPrivate"`
	DH             KeyPair            `json:"dh"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// GenerateIdentityKeyPair creates a new identity for agr.
func GenerateIdentityKeyPair(agr Agreement, r io.Reader) (*IdentityKeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, newCryptoError("generate identity", "", err)
	}
	dh, err := agr.GenerateKeyPair(r)
	if err != nil {
		return nil, newCryptoError("generate identity", "", err)
	}
	var reg [4]byte
	if _, err := io.ReadFull(r, reg[:]); err != nil {
		return nil, newCryptoError("generate identity", "", err)
	}
	return &IdentityKeyPair{
		Agreement: agr.Name(),
		// Registration ids are 14 bit, never zero.
		RegistrationID: binary.BigEndian.Uint32(reg[:])%16380 + 1,
		SigningPublic:  pub,
		SigningPrivate: priv,
		DH:             dh,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Sign signs msg with the identity's signing key.
func (k *IdentityKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.SigningPrivate, msg)
}

// Valid reports whether the key sizes are consistent.
func (k *IdentityKeyPair) Valid() bool {
	return k != nil &&
		len(k.SigningPublic) == ed25519.PublicKeySize &&
		len(k.SigningPrivate) == ed25519.PrivateKeySize &&
		len(k.DH.Private) > 0 && len(k.DH.Public) == len(k.DH.Private)
}

// PreKey is a one-time prekey.
type PreKey struct {
	ID      uint32  `json:"id"`
	KeyPair KeyPair `json:"keyPair"`
}

// SignedPreKey is a medium-term prekey signed by the identity.
type SignedPreKey struct {
	PreKey
	Signature []byte    `json:"signature"`
	CreatedAt time.Time `json:"createdAt"`
}

// PreKeyState is the persisted prekey pool.
type PreKeyState struct {
	SignedPreKey SignedPreKey `json:"signedPreKey"`
	PreKeys      []PreKey     `json:"preKeys"`
	NextID       uint32       `json:"nextId"`
}

// Find returns the one-time prekey with id.
func (s *PreKeyState) Find(id uint32) (PreKey, bool) {
	for _, pk := range s.PreKeys {
		if pk.ID == id {
			return pk, true
		}
	}
	return PreKey{}, false
}

// Remove drops the one-time prekey with id and reports whether it existed.
func (s *PreKeyState) Remove(id uint32) bool {
	for i, pk := range s.PreKeys {
		if pk.ID == id {
			s.PreKeys = append(s.PreKeys[:i], s.PreKeys[i+1:]...)
			return true
		}
	}
	return false
}

// GeneratePreKeys creates n one-time prekeys with consecutive ids from start.
func GeneratePreKeys(agr Agreement, r io.Reader, start uint32, n int) ([]PreKey, error) {
	keys := make([]PreKey, 0, n)
	for i := 0; i < n; i++ {
		kp, err := agr.GenerateKeyPair(r)
		if err != nil {
			return nil, newCryptoError("generate prekeys", "", err)
		}
		keys = append(keys, PreKey{ID: start + uint32(i), KeyPair: kp})
	}
	return keys, nil
}

// GenerateSignedPreKey creates a prekey and signs its public half.
func GenerateSignedPreKey(agr Agreement, r io.Reader, identity *IdentityKeyPair, id uint32) (*SignedPreKey, error) {
	kp, err := agr.GenerateKeyPair(r)
	if err != nil {
		return nil, newCryptoError("generate signed prekey", "", err)
	}
	return &SignedPreKey{
		PreKey:    PreKey{ID: id, KeyPair: kp},
		Signature: identity.Sign(kp.Public),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewPreKeyState generates a signed prekey and n one-time prekeys.
func NewPreKeyState(agr Agreement, r io.Reader, identity *IdentityKeyPair, n int) (*PreKeyState, error) {
	spk, err := GenerateSignedPreKey(agr, r, identity, 1)
	if err != nil {
		return nil, err
	}
	pks, err := GeneratePreKeys(agr, r, 1, n)
	if err != nil {
		return nil, err
	}
	return &PreKeyState{SignedPreKey: *spk, PreKeys: pks, NextID: uint32(n) + 1}, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
