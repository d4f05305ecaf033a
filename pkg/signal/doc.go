// Package signal implements the per-peer session layer: identity and prekey
// material, X3DH-style session establishment and authenticated encryption of
// message payloads.
//
// Key agreement is pluggable through the Agreement interface. X25519 is the
// default; X448 is available for deployments that want the larger curve.
//
// A session is established once per peer. The initiator combines up to four
// Diffie-Hellman outputs
//
//	DH1 = DH(IK_local, SPK_peer)
//	DH2 = DH(EK_local, IK_peer)
//	DH3 = DH(EK_local, SPK_peer)
//	DH4 = DH(EK_local, OPK_peer)   (only when a one-time prekey is offered)
//
// and derives a 32 byte root key and a 32 byte chain key with HKDF-SHA256.
// The responder computes the mirror image from the InitialMessage.
//
// Encrypted blobs are nonce || ciphertext || tag (AES-256-GCM). A blob that
// fails authentication yields ErrDecrypt and never releases plaintext.
//
// The package does no network I/O. Persistence goes through the KeyStore and
// SessionStore interfaces; see package store for implementations.
package signal
