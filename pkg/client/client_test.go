package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

func TestQRChallengeThenAuthenticated(t *testing.T) {
	release := make(chan struct{})
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusQR)
		// The same ref again must not produce a second event.
		sc.send("s2," + statusQR)
		<-release
		sc.send("s3," + statusOK)
		sc.drain()
	})

	c := newTestClient(t, testConfig(fs.URL()))
	events := c.Events()
	connect(t, c)

	if got := c.State(); got != StateAuthenticating {
		t.Fatalf("State() after challenge = %s, want authenticating", got)
	}
	qr := waitEvent[QRCode](t, events)
	if qr.Ref != "abc" || qr.TTL != 20*time.Second {
		t.Fatalf("QRCode = %+v", qr)
	}
	close(release)

	auth := waitEvent[Authenticated](t, events)
	if auth.User.ClientToken != "c1" || auth.User.ServerToken != "s1" || auth.User.PushName != "Test" {
		t.Fatalf("Authenticated = %+v", auth)
	}
	if !c.WaitForAuthentication(time.Second) {
		t.Fatal("WaitForAuthentication() = false")
	}
	conn := c.Connection()
	if conn.ClientToken != "c1" || conn.ServerToken != "s1" || conn.Wid != "40712345678@c.us" {
		t.Fatalf("Connection() = %+v", conn)
	}
	creds := c.Credentials()
	if creds == nil || creds.ClientID != conn.ClientID || creds.ClientToken != "c1" {
		t.Fatalf("Credentials() = %+v", creds)
	}

	// Only one QR event was queued before Authenticated.
	for {
		select {
		case ev := <-events:
			if _, ok := ev.(QRCode); ok {
				t.Fatal("duplicate QRCode event for the same ref")
			}
		default:
			return
		}
	}
}

func TestInitRequestCarriesDeviceAndCredentials(t *testing.T) {
	inits := make(chan *protocol.InitRequest, 1)
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		inits <- sc.init
		sc.drain()
	})

	cfg := testConfig(fs.URL())
	cfg.Credentials = &Credentials{ClientID: "Y2xpZW50", ClientToken: "old-c", ServerToken: "old-s"}
	c := newTestClient(t, cfg)
	connect(t, c)

	init := <-inits
	if init.ClientID != "Y2xpZW50" || init.ClientToken != "old-c" || init.ServerToken != "old-s" {
		t.Fatalf("init credentials = %+v", init)
	}
	if init.ConnectType != protocol.ConnectTypeWiFiUnknown || init.ConnectReason != protocol.ConnectReasonUserActivate {
		t.Fatalf("init connect fields = %+v", init)
	}
	if init.WebVersion != DefaultWebVersion || init.BrowserName != DefaultBrowserName || init.UserAgent != DefaultUserAgent {
		t.Fatalf("init device fields = %+v", init)
	}
	if c.State() != StateAuthenticated {
		t.Fatalf("State() = %s, want authenticated", c.State())
	}
	// Fresh tokens from the server replace the restored ones.
	if got := c.Connection().ClientToken; got != "c1" {
		t.Fatalf("ClientToken = %q, want c1", got)
	}
}

func TestFreshClientIDIsRandom16Bytes(t *testing.T) {
	a, b := newClientID(), newClientID()
	if a == b {
		t.Fatal("client ids repeat")
	}
	if len(a) != 24 {
		t.Fatalf("client id %q is not 16 base64-encoded bytes", a)
	}
}

func TestTagCorrelation(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		seen := map[string]bool{}
		for len(seen) < 2 {
			f := sc.read()
			if f == nil {
				return
			}
			seen[f.Tag] = true
		}
		sc.send(`unregistered,{"from":"server"}`)
		sc.send(`t1,{"for":"t1"}`)
		sc.send(`t2,{"for":"t2"}`)
		sc.drain()
	})

	c := newTestClient(t, testConfig(fs.URL()))
	events := c.Events()
	connect(t, c)

	ctx := context.Background()
	t2 := make(chan []byte, 1)
	go func() {
		reply, err := c.Request(ctx, "t2", []byte(`{"q":2}`))
		if err != nil {
			t.Errorf("Request(t2) error: %v", err)
		}
		t2 <- reply
	}()
	reply, err := c.Request(ctx, "t1", []byte(`{"q":1}`))
	if err != nil {
		t.Fatalf("Request(t1) error: %v", err)
	}
	if string(reply) != `{"for":"t1"}` {
		t.Fatalf("t1 reply = %s", reply)
	}
	if got := <-t2; string(got) != `{"for":"t2"}` {
		t.Fatalf("t2 reply = %s", got)
	}

	msg := waitEvent[Message](t, events)
	if msg.Tag != "unregistered" || msg.Node != nil || string(msg.Raw) != `{"from":"server"}` {
		t.Fatalf("general message = %+v", msg)
	}
	if p := c.Connection().Pending; p != 0 {
		t.Fatalf("Pending = %d after replies", p)
	}
}

func TestDuplicatePendingTagRejected(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.drain()
	})
	c := newTestClient(t, testConfig(fs.URL()))
	connect(t, c)

	go c.Request(context.Background(), "dup", nil)
	eventually(t, "pending request", func() bool { return c.Connection().Pending == 1 })
	_, err := c.Request(context.Background(), "dup", nil)
	if !errors.Is(err, ErrDuplicateTag) {
		t.Fatalf("Request(dup) error = %v, want ErrDuplicateTag", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.drain()
	})
	cfg := testConfig(fs.URL())
	cfg.RequestTimeout = 50 * time.Millisecond
	c := newTestClient(t, cfg)
	connect(t, c)

	_, err := c.Request(context.Background(), "", []byte("{}"))
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Request() error = %v, want ErrRequestTimeout", err)
	}
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Request() error %T is not *ConnectionError", err)
	}
	if p := c.Connection().Pending; p != 0 {
		t.Fatalf("timed out request left %d pending", p)
	}
}

func TestSendTextSingleFrameMatchingAck(t *testing.T) {
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

	c := newTestClient(t, testConfig(fs.URL()))
	connect(t, c)

	id, err := c.SendText(context.Background(), "1234@host", "hi")
	if err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if id == "" {
		t.Fatal("SendText() returned an empty id")
	}
	_ = c.Disconnect()

	var sent []*protocol.Frame
	for _, f := range fs.Frames() {
		if f.Tag != protocol.AdminTag {
			sent = append(sent, f)
		}
	}
	if len(sent) != 1 {
		t.Fatalf("outbound frames = %d, want 1", len(sent))
	}
	n, err := protocol.DecodeNodePayload(sent[0].Payload, false)
	if err != nil {
		t.Fatalf("decode sent node: %v", err)
	}
	if n.Tag != "message" || n.AttrString("id") != id || n.AttrString("to") != "1234@host" {
		t.Fatalf("sent node = %s", n)
	}
	if to, _ := n.GetAttr("to"); to.Kind != protocol.AttrJID {
		t.Fatalf("to attribute kind = %v, want JID", to.Kind)
	}
	if body := n.ChildByTag("body"); body == nil || string(body.ContentBytes()) != "hi" {
		t.Fatalf("sent node body = %s", n)
	}
}

func TestSendRejectedByServer(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		f := sc.read()
		if f != nil {
			sc.send(f.Tag + `,{"status":403}`)
		}
		sc.drain()
	})
	c := newTestClient(t, testConfig(fs.URL()))
	connect(t, c)

	_, err := c.SendText(context.Background(), "+40712345678", "hi")
	var me *MessageError
	if !errors.As(err, &me) || me.MsgID == "" {
		t.Fatalf("SendText() error = %v, want *MessageError with id", err)
	}
	if !IsRejected(err) {
		t.Fatalf("IsRejected(%v) = false", err)
	}
}

func TestSendRequiresAuthentication(t *testing.T) {
	c := newTestClient(t, testConfig("ws://127.0.0.1:1/ws"))
	_, err := c.SendText(context.Background(), "1234@host", "hi")
	var me *MessageError
	if !errors.As(err, &me) || !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("SendText() while disconnected error = %v", err)
	}

	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusQR)
		sc.drain()
	})
	c = newTestClient(t, testConfig(fs.URL()))
	connect(t, c)
	if _, err := c.SendNode(context.Background(), protocol.NewNode("presence")); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("SendNode() while authenticating error = %v", err)
	}
	if _, err := c.SendText(context.Background(), "1234@host", "hi"); !errors.As(err, &me) {
		t.Fatalf("SendText() while authenticating error = %v", err)
	}
	for _, f := range fs.Frames() {
		if f.Tag != protocol.AdminTag {
			t.Fatalf("unauthenticated send wrote frame %q", f.Tag)
		}
	}
}

func TestParsePeer(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1234@host", "1234@host", true},
		{"+40 712 345 678", "40712345678@s.whatsapp.net", true},
		{"40712345678", "40712345678@s.whatsapp.net", true},
		{"group-1@g.us", "group-1@g.us", true},
		{"@host", "", false},
		{"user@", "", false},
		{"1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		j, err := ParsePeer(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParsePeer(%q) error = %v", tt.in, err)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidPeer) {
				t.Errorf("ParsePeer(%q) error = %v, want ErrInvalidPeer", tt.in, err)
			}
			continue
		}
		if j.String() != tt.want {
			t.Errorf("ParsePeer(%q) = %s, want %s", tt.in, j, tt.want)
		}
	}
}

func TestHandshakeTimeout(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake("")
		sc.drain()
	})
	cfg := testConfig(fs.URL())
	cfg.HandshakeTimeout = 50 * time.Millisecond
	obs := &countingObserver{}
	c := newTestClient(t, cfg, WithObserver(obs))

	err := c.Connect(context.Background())
	var ce *ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Connect() error = %v, want handshake timeout", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %s after failed connect", c.State())
	}
	time.Sleep(50 * time.Millisecond)
	if obs.reconnects.Load() != 0 || fs.Conns() != 1 {
		t.Fatalf("failed connect scheduled a reconnect (conns=%d)", fs.Conns())
	}
}

func TestConnectDialFailure(t *testing.T) {
	fs := newFakeServer(t, func(int, *serverConn) {})
	url := fs.URL()
	fs.srv.Close()

	c := newTestClient(t, testConfig(url))
	err := c.Connect(context.Background())
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Op != "dial" {
		t.Fatalf("Connect() error = %v, want dial ConnectionError", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %s", c.State())
	}
}

func TestConnectTwice(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.drain()
	})
	c := newTestClient(t, testConfig(fs.URL()))
	connect(t, c)
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect() error = %v", err)
	}
}

func TestKeepAliveSilenceReconnectsOnce(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		if n == 1 {
			// Swallow pings without answering.
			sc.drain()
			return
		}
		sc.drainPong()
	})

	cfg := testConfig(fs.URL())
	cfg.KeepAliveInterval = 30 * time.Millisecond
	obs := &countingObserver{}
	c := newTestClient(t, cfg, WithObserver(obs))
	events := c.Events()
	connect(t, c)

	dis := waitEvent[Disconnected](t, events)
	if dis.Reason != ReasonConnectionLost || !errors.Is(dis.Err, ErrKeepAliveTimeout) {
		t.Fatalf("Disconnected = %+v", dis)
	}
	eventually(t, "second connection", func() bool { return fs.Conns() == 2 })
	if !c.WaitForAuthentication(3 * time.Second) {
		t.Fatal("client did not re-authenticate")
	}

	// The answered link stays up for several intervals.
	time.Sleep(200 * time.Millisecond)
	if got := obs.reconnects.Load(); got != 1 {
		t.Fatalf("reconnects scheduled = %d, want 1", got)
	}
	if fs.Conns() != 2 {
		t.Fatalf("connections = %d, want 2", fs.Conns())
	}
	if c.Connection().ReconnectAttempt != 0 {
		t.Fatal("backoff not reset after a successful reconnect")
	}
}

func TestServerCloseReconnects(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		if n == 1 {
			sc.ws.Close()
			return
		}
		sc.drain()
	})

	c := newTestClient(t, testConfig(fs.URL()))
	events := c.Events()
	connect(t, c)

	dis := waitEvent[Disconnected](t, events)
	if !dis.Reason.Reconnects() {
		t.Fatalf("Disconnected reason = %q, want a retryable reason", dis.Reason)
	}
	eventually(t, "reconnect", func() bool { return fs.Conns() == 2 && c.State() == StateAuthenticated })
}

func TestReconnectExhausted(t *testing.T) {
	var fs *fakeServer
	fs = newFakeServer(t, func(n int, sc *serverConn) {
		if n == 1 {
			sc.handshake(statusOK)
			sc.ws.Close()
			return
		}
		// Every retry fails its handshake.
		sc.ws.Close()
	})

	cfg := testConfig(fs.URL())
	obs := &countingObserver{}
	c := newTestClient(t, cfg, WithObserver(obs))
	events := c.Events()
	connect(t, c)

	waitEvent[Disconnected](t, events)
	final := waitEvent[Disconnected](t, events)
	if !errors.Is(final.Err, ErrReconnectExhausted) {
		t.Fatalf("final Disconnected = %+v, want ErrReconnectExhausted", final)
	}
	eventually(t, "disconnected state", func() bool { return c.State() == StateDisconnected })
	if got := obs.reconnects.Load(); got != int32(cfg.Backoff.MaxAttempts) {
		t.Fatalf("reconnects = %d, want %d", got, cfg.Backoff.MaxAttempts)
	}
	if got := fs.Conns(); got != 1+cfg.Backoff.MaxAttempts {
		t.Fatalf("connections = %d, want %d", got, 1+cfg.Backoff.MaxAttempts)
	}
}

func TestSessionExpiredDoesNotReconnect(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.send("s2," + statusExp)
		sc.drain()
	})
	obs := &countingObserver{}
	c := newTestClient(t, testConfig(fs.URL()), WithObserver(obs))
	events := c.Events()
	connect(t, c)

	dis := waitEvent[Disconnected](t, events)
	if dis.Reason != ReasonSessionExpired || dis.Code != 403 {
		t.Fatalf("Disconnected = %+v", dis)
	}
	eventually(t, "disconnected state", func() bool { return c.State() == StateDisconnected })
	if c.Credentials() != nil {
		t.Fatal("expired tokens kept")
	}
	time.Sleep(50 * time.Millisecond)
	if obs.reconnects.Load() != 0 {
		t.Fatal("expired session scheduled a reconnect")
	}
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.drain()
	})
	obs := &countingObserver{}
	c := newTestClient(t, testConfig(fs.URL()), WithObserver(obs))
	events := c.Events()
	connect(t, c)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "", []byte("{}"))
		errc <- err
	}()
	eventually(t, "pending request", func() bool { return c.Connection().Pending == 1 })

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("pending request error = %v, want ErrConnectionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not failed by Disconnect")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %s", c.State())
	}
	dis := waitEvent[Disconnected](t, events)
	if dis.Reason != ReasonNormal {
		t.Fatalf("Disconnected reason = %q", dis.Reason)
	}
	time.Sleep(50 * time.Millisecond)
	if obs.reconnects.Load() != 0 || fs.Conns() != 1 {
		t.Fatal("user disconnect triggered a reconnect")
	}
	if _, err := c.Request(context.Background(), "", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Request() after Disconnect error = %v", err)
	}
}

func TestLogoutClearsCredentials(t *testing.T) {
	goodbye := make(chan string, 1)
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		for {
			f := sc.read()
			if f == nil {
				return
			}
			if f.Tag == protocol.LogoutTag {
				goodbye <- string(f.Payload)
			}
		}
	})
	c := newTestClient(t, testConfig(fs.URL()))
	events := c.Events()
	connect(t, c)
	oldID := c.Connection().ClientID

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	select {
	case p := <-goodbye:
		if p != string(protocol.LogoutPayload) {
			t.Fatalf("logout payload = %s", p)
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw the logout frame")
	}
	if c.Credentials() != nil || c.Connection().ClientID == oldID {
		t.Fatal("Logout kept the device identity")
	}
	if dis := waitEvent[Disconnected](t, events); dis.Reason != ReasonLogout {
		t.Fatalf("Disconnected reason = %q, want logout", dis.Reason)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.send("no separator")
		sc.send("x1,zz-not-hex")
		sc.send("pong,123")
		sc.send(`after,{"ok":1}`)
		sc.drain()
	})
	obs := &countingObserver{}
	c := newTestClient(t, testConfig(fs.URL()), WithObserver(obs))
	events := c.Events()
	connect(t, c)

	msg := waitEvent[Message](t, events)
	if msg.Tag != "after" {
		t.Fatalf("first message tag = %q, want after", msg.Tag)
	}
	if got := obs.dropped.Load(); got != 2 {
		t.Fatalf("dropped frames = %d, want 2", got)
	}
	if c.State() != StateAuthenticated {
		t.Fatalf("State() = %s after malformed frames", c.State())
	}
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	c := newTestClient(t, testConfig("ws://127.0.0.1:1/ws"))
	start := time.Now()
	if c.WaitForConnection(30 * time.Millisecond) {
		t.Fatal("WaitForConnection() = true while disconnected")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("WaitForConnection() returned early")
	}
}

func TestStateString(t *testing.T) {
	want := map[ConnectionState]string{
		StateDisconnected:    "disconnected",
		StateConnecting:      "connecting",
		StateConnected:       "connected",
		StateAuthenticating:  "authenticating",
		StateAuthenticated:   "authenticated",
		StateDisconnecting:   "disconnecting",
		StateReconnecting:    "reconnecting",
		ConnectionState(99):  "unknown",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), name)
		}
	}
}

func TestLateStatusFromOldLinkIgnored(t *testing.T) {
	fs := newFakeServer(t, func(n int, sc *serverConn) {
		sc.handshake(statusOK)
		sc.drain()
	})
	c := newTestClient(t, testConfig(fs.URL()))
	connect(t, c)
	if !c.WaitForAuthentication(2 * time.Second) {
		t.Fatal("not authenticated")
	}

	stale := newLink(nil)
	c.handleStatus(stale, []byte(statusExp))
	c.handleStatus(stale, []byte(`{"status":409}`))

	creds := c.Credentials()
	if creds == nil || creds.ClientToken != "c1" || creds.ServerToken != "s1" {
		t.Fatalf("credentials after stale 403 = %+v, want the current tokens", creds)
	}
	if c.State() != StateAuthenticated {
		t.Fatalf("state after stale statuses = %s, want authenticated", c.State())
	}
	_ = c.Disconnect()
}
