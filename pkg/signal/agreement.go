package signal

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/curve25519"
)

// Agreement is a Diffie-Hellman key agreement primitive.
type Agreement interface {
	// Name identifies the curve in persisted key material.
	Name() string

	// GenerateKeyPair creates a fresh key pair from r.
	GenerateKeyPair(r io.Reader) (KeyPair, error)

	// Agree computes the shared secret between priv and pub.
	Agree(priv, pub []byte) ([]byte, error)
}

// Built-in agreements.
var (
	X25519 Agreement = x25519Agreement{}
	X448   Agreement = x448Agreement{}
)

// AgreementByName returns the built-in agreement with the given name.
func AgreementByName(name string) (Agreement, error) {
	switch name {
	case "", X25519.Name():
		return X25519, nil
	case X448.Name():
		return X448, nil
	}
	return nil, fmt.Errorf("signal: unknown agreement %q: %w", name, ErrInvalidKey)
}

type x25519Agreement struct{}

func (x25519Agreement) Name() string { return "x25519" }

func (x25519Agreement) GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return KeyPair{}, err
	}
	// Clamp per RFC 7748.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

func (x25519Agreement) Agree(priv, pub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(pub) != curve25519.PointSize {
		return nil, ErrInvalidKey
	}
	// X25519 rejects low-order points with an all-zero output.
	out, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return out, nil
}

type x448Agreement struct{}

func (x448Agreement) Name() string { return "x448" }

func (x448Agreement) GenerateKeyPair(r io.Reader) (KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	var priv, pub x448.Key
	if _, err := io.ReadFull(r, priv[:]); err != nil {
		return KeyPair{}, err
	}
	x448.KeyGen(&pub, &priv)
	return KeyPair{Private: priv[:], Public: pub[:]}, nil
}

func (x448Agreement) Agree(priv, pub []byte) ([]byte, error) {
	if len(priv) != x448.Size || len(pub) != x448.Size {
		return nil, ErrInvalidKey
	}
	var sk, pk, shared x448.Key
	copy(sk[:], priv)
	copy(pk[:], pub)
	if !x448.Shared(&shared, &sk, &pk) {
		return nil, ErrKeyDerivation
	}
	return shared[:], nil
}
