package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/waweb-dev/waweb/pkg/signal"
)

func testIdentity(t *testing.T) *signal.IdentityKeyPair {
	t.Helper()
	id, err := signal.GenerateIdentityKeyPair(signal.X25519, nil)
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair() error: %v", err)
	}
	return id
}

func testSession(peer string) *signal.Session {
	return &signal.Session{
		PeerID:    peer,
		Agreement: "x25519",
		RootKey:   make([]byte, 32),
		ChainKey:  []byte("0123456789abcdef0123456789abcdef"),
		Initiator: true,
		Sent:      3,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		UpdatedAt: time.Unix(1700000100, 0).UTC(),
	}
}

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	if id, err := st.LoadIdentity(ctx); err != nil || id != nil {
		t.Fatalf("LoadIdentity() on empty store = %v, %v; want nil, nil", id, err)
	}
	if pk, err := st.LoadPreKeys(ctx); err != nil || pk != nil {
		t.Fatalf("LoadPreKeys() on empty store = %v, %v; want nil, nil", pk, err)
	}
	if s, err := st.LoadSession(ctx, "nobody@s.whatsapp.net"); err != nil || s != nil {
		t.Fatalf("LoadSession(unknown) = %v, %v; want nil, nil", s, err)
	}

	id := testIdentity(t)
	if err := st.SaveIdentity(ctx, id); err != nil {
		t.Fatalf("SaveIdentity() error: %v", err)
	}
	got, err := st.LoadIdentity(ctx)
	if err != nil || got == nil {
		t.Fatalf("LoadIdentity() = %v, %v", got, err)
	}
	if string(got.DH.Private) != string(id.DH.Private) || string(got.SigningPrivate) != string(id.SigningPrivate) {
		t.Fatal("identity key material changed across save/load")
	}
	if got.RegistrationID != id.RegistrationID || got.Agreement != id.Agreement {
		t.Fatalf("identity metadata = %d/%s, want %d/%s", got.RegistrationID, got.Agreement, id.RegistrationID, id.Agreement)
	}

	state, err := signal.NewPreKeyState(signal.X25519, nil, id, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SavePreKeys(ctx, state); err != nil {
		t.Fatalf("SavePreKeys() error: %v", err)
	}
	gotState, err := st.LoadPreKeys(ctx)
	if err != nil || gotState == nil || len(gotState.PreKeys) != 3 || gotState.NextID != 4 {
		t.Fatalf("LoadPreKeys() = %+v, %v", gotState, err)
	}
	if string(gotState.SignedPreKey.Signature) != string(state.SignedPreKey.Signature) {
		t.Fatal("signed prekey signature changed across save/load")
	}

	for _, peer := range []string{"1234@s.whatsapp.net", "group-1@g.us"} {
		if err := st.SaveSession(ctx, testSession(peer)); err != nil {
			t.Fatalf("SaveSession(%s) error: %v", peer, err)
		}
	}
	sess, err := st.LoadSession(ctx, "1234@s.whatsapp.net")
	if err != nil || sess == nil {
		t.Fatalf("LoadSession() = %v, %v", sess, err)
	}
	if string(sess.ChainKey) != "0123456789abcdef0123456789abcdef" || sess.Sent != 3 || !sess.Initiator {
		t.Fatalf("loaded session = %+v", sess)
	}

	updated := testSession("1234@s.whatsapp.net")
	updated.Sent = 4
	if err := st.SaveSession(ctx, updated); err != nil {
		t.Fatal(err)
	}
	if sess, _ := st.LoadSession(ctx, "1234@s.whatsapp.net"); sess.Sent != 4 {
		t.Fatalf("overwritten session Sent = %d, want 4", sess.Sent)
	}

	peers, err := st.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	sort.Strings(peers)
	if len(peers) != 2 || peers[0] != "1234@s.whatsapp.net" || peers[1] != "group-1@g.us" {
		t.Fatalf("ListSessions() = %v", peers)
	}

	if err := st.DeleteSession(ctx, "group-1@g.us"); err != nil {
		t.Fatalf("DeleteSession() error: %v", err)
	}
	if err := st.DeleteSession(ctx, "group-1@g.us"); err != nil {
		t.Fatalf("DeleteSession(missing) error: %v", err)
	}
	if s, _ := st.LoadSession(ctx, "group-1@g.us"); s != nil {
		t.Fatal("session still loadable after delete")
	}

	// A device id and its underscore lookalike are distinct peers.
	device := testSession("1234:5@s.whatsapp.net")
	device.Sent = 7
	if err := st.SaveSession(ctx, device); err != nil {
		t.Fatalf("SaveSession(device) error: %v", err)
	}
	if s, err := st.LoadSession(ctx, "1234_5@s.whatsapp.net"); err != nil || s != nil {
		t.Fatalf("LoadSession(lookalike) = %+v, %v; want nil, nil", s, err)
	}
	if err := st.SaveSession(ctx, testSession("1234_5@s.whatsapp.net")); err != nil {
		t.Fatal(err)
	}
	if s, _ := st.LoadSession(ctx, "1234:5@s.whatsapp.net"); s == nil || s.PeerID != "1234:5@s.whatsapp.net" || s.Sent != 7 {
		t.Fatalf("device session clobbered by lookalike: %+v", s)
	}
	for _, peer := range []string{"1234:5@s.whatsapp.net", "1234_5@s.whatsapp.net"} {
		if err := st.DeleteSession(ctx, peer); err != nil {
			t.Fatal(err)
		}
	}

	if err := st.SaveSession(ctx, testSession("")); !errors.Is(err, ErrInvalidPeerID) {
		t.Fatalf("SaveSession(empty peer) error = %v, want ErrInvalidPeerID", err)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := st.LoadIdentity(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("LoadIdentity() after Close error = %v, want ErrStoreClosed", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	s := testSession("peer")
	if err := st.SaveSession(ctx, s); err != nil {
		t.Fatal(err)
	}
	s.Sent = 99
	got, _ := st.LoadSession(ctx, "peer")
	if got.Sent != 3 {
		t.Fatalf("stored session aliased the caller's value: Sent = %d", got.Sent)
	}
}

func TestSessionDocNameIsInjective(t *testing.T) {
	ids := []string{
		"1234:5@s.whatsapp.net", "1234_5@s.whatsapp.net", "1234/5@s.whatsapp.net",
		"1234%3A5@s.whatsapp.net", "Peer", "peer", "%50eer", "a b", "a_b",
	}
	seen := make(map[string]string, len(ids))
	for _, id := range ids {
		name, err := sessionDocName(id)
		if err != nil {
			t.Fatalf("sessionDocName(%q): %v", id, err)
		}
		folded := strings.ToLower(name)
		if prev, ok := seen[folded]; ok {
			t.Fatalf("%q and %q map to the same document %q", prev, id, name)
		}
		seen[folded] = id
	}
}

func TestSessionDocName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"1234@s.whatsapp.net", "1234@s.whatsapp.net", false},
		{"1234:5@s.whatsapp.net", "1234%3A5@s.whatsapp.net", false},
		{"1234_5@s.whatsapp.net", "1234_5@s.whatsapp.net", false},
		{"../../etc/passwd", "..%2F..%2Fetc%2Fpasswd", false},
		{"a/b\\c", "a%2Fb%5Cc", false},
		{"Peer", "%50eer", false},
		{"100%", "100%25", false},
		{"héllo", "h%C3%A9llo", false},
		{"", "", true},
		{"..", "", true},
		{strings.Repeat("/", 100), "", true},
	}
	for _, tt := range tests {
		got, err := sessionDocName(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("sessionDocName(%q) error = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("sessionDocName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
