package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

// fakeServer is a websocket endpoint that runs script once per accepted
// connection. n is the 1-based connection number.
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	script func(n int, sc *serverConn)
	conns  atomic.Int32

	mu     sync.Mutex
	frames []*protocol.Frame
}

type serverConn struct {
	t    *testing.T
	ws   *websocket.Conn
	fs   *fakeServer
	wmu  sync.Mutex
	init *protocol.InitRequest
}

func newFakeServer(t *testing.T, script func(n int, sc *serverConn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, script: script}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer ws.Close()
		n := int(fs.conns.Add(1))
		fs.script(n, &serverConn{t: t, ws: ws, fs: fs})
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) URL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) Conns() int {
	return int(fs.conns.Load())
}

// Frames returns every frame read by the server except keep-alive pings.
func (fs *fakeServer) Frames() []*protocol.Frame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]*protocol.Frame(nil), fs.frames...)
}

// read returns the next non-ping frame, or nil once the client hung up.
func (sc *serverConn) read() *protocol.Frame {
	for {
		_, data, err := sc.ws.ReadMessage()
		if err != nil {
			return nil
		}
		if string(data) == protocol.KeepAliveFrame {
			continue
		}
		f, err := protocol.ParseFrame(data)
		if err != nil {
			sc.t.Errorf("server got malformed frame %q", data)
			return nil
		}
		sc.fs.mu.Lock()
		sc.fs.frames = append(sc.fs.frames, f)
		sc.fs.mu.Unlock()
		return f
	}
}

func (sc *serverConn) send(s string) {
	sc.wmu.Lock()
	defer sc.wmu.Unlock()
	_ = sc.ws.WriteMessage(websocket.TextMessage, []byte(s))
}

// handshake reads the init frame and answers it with status.
func (sc *serverConn) handshake(status string) {
	f := sc.read()
	if f == nil {
		return
	}
	if f.Tag != protocol.AdminTag {
		sc.t.Errorf("first frame tag = %q, want %q", f.Tag, protocol.AdminTag)
		return
	}
	var init protocol.InitRequest
	if err := protocol.UnmarshalAdmin(f.Payload, &init); err != nil {
		sc.t.Errorf("init payload: %v", err)
		return
	}
	sc.init = &init
	if status != "" {
		sc.send("s1," + status)
	}
}

// drain reads until the client hangs up.
func (sc *serverConn) drain() {
	for sc.read() != nil {
	}
}

// drainPong reads until the client hangs up, answering pings.
func (sc *serverConn) drainPong() {
	for {
		_, data, err := sc.ws.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == protocol.KeepAliveFrame {
			sc.send("pong,1")
		}
	}
}

const (
	statusOK  = `{"status":200,"clientToken":"c1","serverToken":"s1","wid":"40712345678@c.us","pushname":"Test"}`
	statusQR  = `{"status":401,"ref":"abc","ttl":20000}`
	statusExp = `{"status":403,"reason":"tokens rejected"}`
)

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.KeepAliveInterval = time.Minute
	cfg.RequestTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.Backoff = BackoffConfig{
		Initial:     10 * time.Millisecond,
		Max:         50 * time.Millisecond,
		Factor:      1.5,
		Jitter:      0,
		MaxAttempts: 3,
	}
	return cfg
}

func newTestClient(t *testing.T, cfg *Config, opts ...Option) *Client {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
}

// waitEvent returns the first event of type T from ch.
func waitEvent[T Event](t *testing.T, ch <-chan Event) T {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				var zero T
				t.Fatalf("event channel closed waiting for %s", zero.EventName())
			}
			if e, ok := ev.(T); ok {
				return e
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %s event", zero.EventName())
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// countingObserver records reconnect scheduling.
type countingObserver struct {
	nopObserver
	reconnects atomic.Int32
	dropped    atomic.Int32
}

func (o *countingObserver) ReconnectScheduled(int, time.Duration) { o.reconnects.Add(1) }
func (o *countingObserver) FrameDropped(string)                   { o.dropped.Add(1) }
