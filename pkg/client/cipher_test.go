package client

import (
	"context"
	"errors"
	"testing"

	"github.com/waweb-dev/waweb/pkg/protocol"
	"github.com/waweb-dev/waweb/pkg/signal"
	"github.com/waweb-dev/waweb/pkg/store"
)

const (
	alicePeer = "alice@host"
	bobPeer   = "bob@host"
)

// sessionPair returns two managers sharing an established session.
func sessionPair(t *testing.T) (alice, bob *signal.Manager) {
	t.Helper()
	ctx := context.Background()
	newManager := func() *signal.Manager {
		st := store.NewMemoryStore()
		m, err := signal.NewManager(ctx, st, st, signal.WithPreKeyCount(2))
		if err != nil {
			t.Fatalf("NewManager() error: %v", err)
		}
		return m
	}
	alice, bob = newManager(), newManager()
	msg, err := alice.EstablishSession(ctx, bobPeer, bob.Bundle(1))
	if err != nil {
		t.Fatalf("EstablishSession() error: %v", err)
	}
	if err := bob.AcceptSession(ctx, alicePeer, msg); err != nil {
		t.Fatalf("AcceptSession() error: %v", err)
	}
	return alice, bob
}

func encryptedFrame(t *testing.T, tag string, blob []byte) string {
	t.Helper()
	n := protocol.NewNode("message").
		Attr("id", NewMessageID()).
		JIDAttr("from", protocol.NewJID("bob", "host")).
		Children(protocol.NewNode("enc").Attr("v", "2").Attr("type", "text").Bytes(blob))
	f, err := protocol.NodeFrame(tag, n)
	if err != nil {
		t.Fatalf("NodeFrame() error: %v", err)
	}
	return string(f.Encode())
}

func TestSendTextEncryptsForPeerWithSession(t *testing.T) {
	alice, bob := sessionPair(t)
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		for {
			f := sc.read()
			if f == nil {
				return
			}
			sc.send(f.Tag + `,{"status":200}`)
		}
	})
	c := newTestClient(t, testConfig(fs.URL()), WithCipher(alice))
	connect(t, c)

	if _, err := c.SendText(context.Background(), bobPeer, "meet at noon"); err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	// No session with this peer: sent as a plain body.
	if _, err := c.SendText(context.Background(), "carol@host", "hello carol"); err != nil {
		t.Fatalf("SendText(no session) error: %v", err)
	}
	_ = c.Disconnect()

	var nodes []*protocol.Node
	for _, f := range fs.Frames() {
		if f.Tag == protocol.AdminTag {
			continue
		}
		n, err := protocol.DecodeNodePayload(f.Payload, false)
		if err != nil {
			t.Fatalf("decode sent node: %v", err)
		}
		nodes = append(nodes, n)
	}
	if len(nodes) != 2 {
		t.Fatalf("sent nodes = %d, want 2", len(nodes))
	}

	enc := nodes[0].ChildByTag("enc")
	if enc == nil || nodes[0].ChildByTag("body") != nil {
		t.Fatalf("message to %s not encrypted: %s", bobPeer, nodes[0])
	}
	if enc.AttrString("v") != "2" || enc.AttrString("type") != "text" {
		t.Fatalf("enc attributes = %s", enc)
	}
	pt, err := bob.Decrypt(context.Background(), alicePeer, enc.ContentBytes())
	if err != nil {
		t.Fatalf("peer Decrypt() error: %v", err)
	}
	if string(pt) != "meet at noon" {
		t.Fatalf("peer decrypted %q", pt)
	}

	if nodes[1].ChildByTag("enc") != nil {
		t.Fatal("message without a session was encrypted")
	}
	if body := nodes[1].ChildByTag("body"); body == nil || string(body.ContentBytes()) != "hello carol" {
		t.Fatalf("plain message = %s", nodes[1])
	}
}

func TestInboundEncryptedMessages(t *testing.T) {
	alice, bob := sessionPair(t)
	ctx := context.Background()

	good, err := bob.Encrypt(ctx, alicePeer, []byte("hi alice"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	tampered, err := bob.Encrypt(ctx, alicePeer, []byte("forged"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	tampered[len(tampered)-1] ^= 0x01

	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.send(encryptedFrame(t, "m1", tampered))
		sc.send(encryptedFrame(t, "m2", good))
		sc.drain()
	})
	obs := &countingObserver{}
	c := newTestClient(t, testConfig(fs.URL()), WithCipher(alice), WithObserver(obs))
	events := c.Events()
	connect(t, c)

	msg := waitEvent[Message](t, events)
	if msg.Tag != "m2" {
		t.Fatalf("first delivered message = %q, want m2", msg.Tag)
	}
	if msg.Text() != "hi alice" {
		t.Fatalf("Text() = %q", msg.Text())
	}
	if msg.Node == nil || msg.Node.AttrString("from") != bobPeer {
		t.Fatalf("Node = %v", msg.Node)
	}
	if got := obs.dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestInboundEncryptedWithoutCipherDropped(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.send(encryptedFrame(t, "m1", []byte("opaque")))
		sc.send(`m2,{"plain":true}`)
		sc.drain()
	})
	obs := &countingObserver{}
	c := newTestClient(t, testConfig(fs.URL()), WithObserver(obs))
	events := c.Events()
	connect(t, c)

	if msg := waitEvent[Message](t, events); msg.Tag != "m2" {
		t.Fatalf("delivered %q, want m2", msg.Tag)
	}
	if obs.dropped.Load() != 1 {
		t.Fatalf("dropped = %d, want 1", obs.dropped.Load())
	}
}

// brokenCipher has a session it cannot load.
type brokenCipher struct{}

func (brokenCipher) HasSession(_ context.Context, peerID string) (bool, error) {
	return false, &signal.CryptoError{Op: "load session", PeerID: peerID, Err: signal.ErrInvalidKey}
}

func (brokenCipher) Encrypt(context.Context, string, []byte) ([]byte, error) {
	return nil, signal.ErrInvalidKey
}

func (brokenCipher) Decrypt(context.Context, string, []byte) ([]byte, error) {
	return nil, signal.ErrInvalidKey
}

func TestSendFailsWhenSessionCannotBeLoaded(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		for {
			f := sc.read()
			if f == nil {
				return
			}
			sc.send(f.Tag + `,{"status":200}`)
		}
	})
	c := newTestClient(t, testConfig(fs.URL()), WithCipher(brokenCipher{}))
	connect(t, c)

	_, err := c.SendText(context.Background(), bobPeer, "secret")
	var me *MessageError
	if !errors.As(err, &me) || !errors.Is(err, signal.ErrInvalidKey) {
		t.Fatalf("SendText() error = %v, want *MessageError wrapping ErrInvalidKey", err)
	}
	_ = c.Disconnect()

	for _, f := range fs.Frames() {
		if f.Tag != protocol.AdminTag {
			t.Fatalf("message left the client despite the broken session: %s", f.Payload)
		}
	}
}
