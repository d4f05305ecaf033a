package signal

import (
	"crypto/ed25519"
	"io"
)

// Bundle is the public key material a peer publishes so that sessions can be
// established without interaction.
type Bundle struct {
	RegistrationID        uint32            `json:"registrationId"`
	DeviceID              uint32            `json:"deviceId"`
	IdentityKey           []byte            `json:"identityKey"`
	SigningKey            ed25519.PublicKey `json:"signingKey"`
	SignedPreKeyID        uint32            `json:"signedPreKeyId"`
	SignedPreKey          []byte            `json:"signedPreKey"`
	SignedPreKeySignature []byte            `json:"signedPreKeySignature"`
	PreKeyID              *uint32           `json:"preKeyId,omitempty"`
	PreKey                []byte            `json:"preKey,omitempty"`
}

// VerifyBundle checks the signed prekey signature and the key sizes.
func VerifyBundle(b *Bundle) error {
	if b == nil || len(b.SigningKey) != ed25519.PublicKeySize || len(b.IdentityKey) == 0 || len(b.SignedPreKey) == 0 {
		return ErrInvalidKey
	}
	if (b.PreKeyID == nil) != (len(b.PreKey) == 0) {
		return ErrInvalidKey
	}
	if !ed25519.Verify(b.SigningKey, b.SignedPreKey, b.SignedPreKeySignature) {
		return ErrBadSignature
	}
	return nil
}

// InitialMessage is what the initiator sends so the responder can derive the
// same keys.
type InitialMessage struct {
	RegistrationID uint32            `json:"registrationId"`
	IdentityKey    []byte            `json:"identityKey"`
	SigningKey     ed25519.PublicKey `json:"signingKey"`
	EphemeralKey   []byte            `json:"ephemeralKey"`
	SignedPreKeyID uint32            `json:"signedPreKeyId"`
	PreKeyID       *uint32           `json:"preKeyId,omitempty"`
}

// initiatorSecret generates the ephemeral pair and concatenates
// DH(IK, SPK) || DH(EK, IK_peer) || DH(EK, SPK) [|| DH(EK, OPK)].
func initiatorSecret(agr Agreement, r io.Reader, identity KeyPair, b *Bundle) (secret []byte, ephemeral KeyPair, err error) {
	ephemeral, err = agr.GenerateKeyPair(r)
	if err != nil {
		return nil, KeyPair{}, err
	}
	pairs := [][2][]byte{
		{identity.Private, b.SignedPreKey},
		{ephemeral.Private, b.IdentityKey},
		{ephemeral.Private, b.SignedPreKey},
	}
	if b.PreKeyID != nil {
		pairs = append(pairs, [2][]byte{ephemeral.Private, b.PreKey})
	}
	secret, err = concatAgreements(agr, pairs)
	if err != nil {
		return nil, KeyPair{}, err
	}
	return secret, ephemeral, nil
}

// responderSecret mirrors initiatorSecret from the receiving side.
func responderSecret(agr Agreement, identity, signedPreKey KeyPair, oneTime *KeyPair, msg *InitialMessage) ([]byte, error) {
	pairs := [][2][]byte{
		{signedPreKey.Private, msg.IdentityKey},
		{identity.Private, msg.EphemeralKey},
		{signedPreKey.Private, msg.EphemeralKey},
	}
	if oneTime != nil {
		pairs = append(pairs, [2][]byte{oneTime.Private, msg.EphemeralKey})
	}
	return concatAgreements(agr, pairs)
}

func concatAgreements(agr Agreement, pairs [][2][]byte) ([]byte, error) {
	var secret []byte
	for _, p := range pairs {
		shared, err := agr.Agree(p[0], p[1])
		if err != nil {
			wipe(secret)
			return nil, err
		}
		secret = append(secret, shared...)
		wipe(shared)
	}
	return secret, nil
}
