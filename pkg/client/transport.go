package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Transport is one open duplex connection carrying frames.
type Transport interface {
	// ReadFrame blocks for the next frame. binary reports the frame type.
	ReadFrame() (data []byte, binary bool, err error)

	// WriteFrame writes one frame. Callers serialize writes.
	WriteFrame(data []byte, binary bool) error

	// Close closes the connection and unblocks ReadFrame.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, cfg *Config) (Transport, error)
}

// WebSocketDialer dials with gorilla/websocket, optionally through a proxy.
type WebSocketDialer struct {
	// ReadBufferSize and WriteBufferSize size the websocket buffers.
	// Zero uses the library defaults.
	ReadBufferSize  int
	WriteBufferSize int
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, cfg *Config) (Transport, error) {
	wd := &websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
		ReadBufferSize:   d.ReadBufferSize,
		WriteBufferSize:  d.WriteBufferSize,
		Proxy:            http.ProxyFromEnvironment,
	}
	if cfg.ProxyURL != "" {
		if err := configureProxy(wd, cfg.ProxyURL); err != nil {
			return nil, err
		}
	}

	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}
	if cfg.UserAgent != "" {
		header.Set("User-Agent", cfg.UserAgent)
	}

	conn, resp, err := wd.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	return &wsTransport{conn: conn, writeTimeout: cfg.WriteTimeout}, nil
}

// configureProxy routes the dialer through proxyURL. SOCKS proxies go
// through x/net/proxy; HTTP proxies use CONNECT via the websocket dialer.
func configureProxy(wd *websocket.Dialer, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		wd.Proxy = http.ProxyURL(u)
		return nil
	}

	pd, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", u.Redacted(), err)
	}
	wd.Proxy = nil
	if cd, ok := pd.(proxy.ContextDialer); ok {
		wd.NetDialContext = cd.DialContext
		return nil
	}
	wd.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return pd.Dial(network, addr)
	}
	return nil
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func (t *wsTransport) ReadFrame() ([]byte, bool, error) {
	mt, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, mt == websocket.BinaryMessage, nil
}

func (t *wsTransport) WriteFrame(data []byte, binary bool) error {
	mt := websocket.TextMessage
	if binary {
		mt = websocket.BinaryMessage
	}
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(mt, data)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// closeCode extracts the websocket close code from a read error, or 0.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

// reasonForClose maps a transport read error to a disconnect reason.
func reasonForClose(err error) (DisconnectReason, int) {
	code := closeCode(err)
	switch code {
	case websocket.CloseNormalClosure:
		return ReasonNormal, code
	case 0, websocket.CloseAbnormalClosure:
		return ReasonConnectionLost, code
	}
	return ReasonConnectionClosed, code
}
