package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

const tracerName = "github.com/waweb-dev/waweb/pkg/client"

// Cipher encrypts message bodies for peers with an established session.
// *signal.Manager implements it.
type Cipher interface {
	HasSession(ctx context.Context, peerID string) (bool, error)
	Encrypt(ctx context.Context, peerID string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, peerID string, blob []byte) ([]byte, error)
}

// Observer receives connection telemetry. Implementations must not block.
type Observer interface {
	StateChanged(from, to string)
	FrameSent(kind string, size int)
	FrameReceived(kind string, size int)
	FrameDropped(reason string)
	ReconnectScheduled(attempt int, delay time.Duration)
	RequestCompleted(op string, d time.Duration, err error)
	PendingRequests(n int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, string)                   {}
func (nopObserver) FrameSent(string, int)                         {}
func (nopObserver) FrameReceived(string, int)                     {}
func (nopObserver) FrameDropped(string)                           {}
func (nopObserver) ReconnectScheduled(int, time.Duration)         {}
func (nopObserver) RequestCompleted(string, time.Duration, error) {}
func (nopObserver) PendingRequests(int)                           {}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithCipher enables end-to-end encryption for peers with a session.
func WithCipher(cipher Cipher) Option {
	return func(c *Client) {
		c.cipher = cipher
	}
}

// WithObserver installs a telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithTracer sets the tracer used for connect, request and send spans.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithTagGenerator replaces the request tag generator.
func WithTagGenerator(g *protocol.TagGenerator) Option {
	return func(c *Client) {
		if g != nil {
			c.tags = g
		}
	}
}

// reply is the payload delivered to a pending request.
type reply struct {
	payload []byte
	binary  bool
	err     error
}

// link is one transport plus the goroutines bound to it.
type link struct {
	t          Transport
	done       chan struct{}
	readerDone chan struct{}
	handshake  chan error

	kaStop    chan struct{}
	kaDone    chan struct{}
	kaStarted atomic.Bool
	kaOnce    sync.Once
	stopOnce  sync.Once

	// ready is set once the server answered the init message. Guarded by
	// Client.mu.
	ready bool
}

func newLink(t Transport) *link {
	return &link{
		t:          t,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		handshake:  make(chan error, 1),
		kaStop:     make(chan struct{}),
		kaDone:     make(chan struct{}),
	}
}

func (l *link) signal(err error) {
	select {
	case l.handshake <- err:
	default:
	}
}

func (l *link) haltKeepAlive() {
	l.kaOnce.Do(func() { close(l.kaStop) })
}

// stopKeepAlive halts the keep-alive goroutine and waits for it.
func (l *link) stopKeepAlive() {
	l.haltKeepAlive()
	if l.kaStarted.Load() {
		<-l.kaDone
	}
}

// stop tears the link down without waiting for its goroutines.
func (l *link) stop() {
	l.stopOnce.Do(func() {
		l.haltKeepAlive()
		close(l.done)
		_ = l.t.Close()
	})
}

// Client is a connection to the chat web transport.
//
// The state machine runs Disconnected -> Connecting -> Connected ->
// Authenticating -> Authenticated. Unexpected closes move to Reconnecting
// and back to Connecting after a backoff delay.
type Client struct {
	cfg      *Config
	dialer   Dialer
	logger   *slog.Logger
	cipher   Cipher
	observer Observer
	tracer   trace.Tracer
	tags     *protocol.TagGenerator
	backoff  *Backoff
	events   *emitter

	writeMu     sync.Mutex
	lastTraffic atomic.Int64

	mu             sync.Mutex
	state          ConnectionState
	stateCh        chan struct{}
	link           *link
	epoch          uint64
	closing        bool
	closed         bool
	clientID       string
	clientToken    string
	serverToken    string
	wid            string
	lastQRRef      string
	pairing        *pairingState
	pending        map[string]chan reply
	reconnectTimer *time.Timer
}

// New creates a client. cfg is copied; nil uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.Clone()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		dialer:   WebSocketDialer{},
		logger:   slog.Default(),
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
		tags:     protocol.NewTagGenerator(),
		stateCh:  make(chan struct{}),
		pending:  make(map[string]chan reply),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff = NewBackoff(cfg.Backoff)
	c.events = newEmitter(cfg.EventQueueSize, c.logger)

	if creds := cfg.Credentials; creds.Valid() {
		c.clientID = creds.ClientID
		c.clientToken = creds.ClientToken
		c.serverToken = creds.ServerToken
		c.wid = creds.Wid
	} else {
		c.clientID = newClientID()
	}
	return c, nil
}

// newClientID returns 16 random bytes, base64 encoded.
func newClientID() string {
	id := uuid.New()
	return base64.StdEncoding.EncodeToString(id[:])
}

// Config returns a copy of the client configuration.
func (c *Client) Config() *Config {
	return c.cfg.Clone()
}

// OnEvent registers fn for every event. Handlers run on the event
// goroutine, never on the reader.
func (c *Client) OnEvent(fn func(Event)) {
	c.events.on(fn)
}

// Events returns a channel receiving every event emitted from now on. The
// channel is closed by Close. Events are dropped when it is full.
func (c *Client) Events() <-chan Event {
	return c.events.subscribe(c.cfg.EventQueueSize)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connection returns a snapshot of the connection.
func (c *Client) Connection() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	var last time.Time
	if ns := c.lastTraffic.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Connection{
		State:            c.state,
		ClientID:         c.clientID,
		ClientToken:      c.clientToken,
		ServerToken:      c.serverToken,
		Wid:              c.wid,
		LastTraffic:      last,
		ReconnectAttempt: c.backoff.Attempt(),
		Pending:          len(c.pending),
	}
}

// Credentials returns the tokens needed to restore this login, or nil
// before the first successful authentication.
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	creds := &Credentials{
		ClientID:    c.clientID,
		ClientToken: c.clientToken,
		ServerToken: c.serverToken,
		Wid:         c.wid,
	}
	if !creds.Valid() {
		return nil
	}
	return creds
}

// WaitForConnection blocks until a transport is open or d elapses.
func (c *Client) WaitForConnection(d time.Duration) bool {
	return c.waitFor(d, ConnectionState.IsOpen)
}

// WaitForAuthentication blocks until the client is authenticated or d
// elapses.
func (c *Client) WaitForAuthentication(d time.Duration) bool {
	return c.waitFor(d, func(s ConnectionState) bool { return s == StateAuthenticated })
}

func (c *Client) waitFor(d time.Duration, ok func(ConnectionState) bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		c.mu.Lock()
		s, ch := c.state, c.stateCh
		c.mu.Unlock()
		if ok(s) {
			return true
		}
		select {
		case <-ch:
		case <-timer.C:
			return false
		}
	}
}

func (c *Client) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	c.logger.Debug("state changed", "from", from.String(), "to", s.String())
	c.observer.StateChanged(from.String(), s.String())
	c.events.emit(StateChanged{From: from, To: s})
}

func (c *Client) touch() {
	c.lastTraffic.Store(time.Now().UnixNano())
}

func (c *Client) lastTrafficTime() time.Time {
	return time.Unix(0, c.lastTraffic.Load())
}

// Connect dials the server, sends the init message and waits for the
// first status reply. It returns once the server either accepted the
// device or issued a login challenge (see QRCode). A failure here never
// schedules a reconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrConnectionClosed}
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return &ConnectionError{Op: "connect", Err: ErrAlreadyConnected}
	}
	c.closing = false
	c.epoch++
	epoch := c.epoch
	c.backoff.Reset()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.open(ctx, epoch); err != nil {
		c.mu.Lock()
		if c.epoch == epoch && c.link == nil {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) open(ctx context.Context, epoch uint64) (err error) {
	ctx, span := c.tracer.Start(ctx, "waweb.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("waweb.url", c.cfg.URL)))
	defer func() { endSpan(span, err) }()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	t, err := c.dialer.Dial(dialCtx, c.cfg)
	cancel()
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}

	l := newLink(t)
	c.mu.Lock()
	if c.closing || c.epoch != epoch {
		c.mu.Unlock()
		_ = t.Close()
		return &ConnectionError{Op: "dial", Err: ErrConnectionClosed}
	}
	c.link = l
	c.lastQRRef = ""
	c.pairing = nil
	c.setStateLocked(StateConnected)
	init := c.initRequestLocked()
	c.mu.Unlock()

	c.touch()
	c.logger.Info("transport open", "url", c.cfg.URL, "restore", init.ClientToken != "")
	c.events.emit(Connected{ClientID: init.ClientID, URL: c.cfg.URL})
	go c.readLoop(l)

	payload, err := protocol.MarshalAdmin(init)
	if err != nil {
		c.abort(l)
		return &ConnectionError{Op: "handshake", Err: err}
	}
	c.mu.Lock()
	if c.link == l {
		c.setStateLocked(StateAuthenticating)
	}
	c.mu.Unlock()
	if err := c.write(l, protocol.NewFrame(protocol.AdminTag, payload).Encode(), false, true); err != nil {
		c.abort(l)
		return &ConnectionError{Op: "handshake", Err: err}
	}

	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-l.handshake:
		if err != nil {
			c.abort(l)
		}
		return err
	case <-l.done:
		// A status may have landed just before the close.
		select {
		case err := <-l.handshake:
			if err != nil {
				return err
			}
			return nil
		default:
		}
		return &ConnectionError{Op: "handshake", Err: ErrConnectionClosed}
	case <-timer.C:
		c.abort(l)
		return &ConnectionError{Op: "handshake", Err: ErrHandshakeTimeout}
	case <-ctx.Done():
		c.abort(l)
		return &ConnectionError{Op: "handshake", Err: ctx.Err()}
	}
}

func (c *Client) initRequestLocked() *protocol.InitRequest {
	return &protocol.InitRequest{
		ClientID:       c.clientID,
		ConnectType:    protocol.ConnectTypeWiFiUnknown,
		ConnectReason:  protocol.ConnectReasonUserActivate,
		UserAgent:      c.cfg.UserAgent,
		WebVersion:     c.cfg.WebVersion,
		BrowserName:    c.cfg.BrowserName,
		BrowserVersion: c.cfg.BrowserVersion,
		ClientToken:    c.clientToken,
		ServerToken:    c.serverToken,
	}
}

// abort drops a link that never finished its handshake.
func (c *Client) abort(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	pending := c.takePendingLocked()
	c.mu.Unlock()
	l.stop()
	failPending(pending)
}

// Disconnect closes the connection and suppresses reconnects. Keep-alive
// stops first, then the reader, then the transport; pending requests fail
// with ErrConnectionClosed.
func (c *Client) Disconnect() error {
	return c.disconnect(ReasonNormal, nil)
}

// Logout tells the server to forget this device, clears the stored tokens
// and disconnects. The next Connect starts a fresh login.
func (c *Client) Logout(ctx context.Context) error {
	_, span := c.tracer.Start(ctx, "waweb.logout", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	c.mu.Lock()
	l := c.link
	authed := c.state == StateAuthenticated
	c.mu.Unlock()
	if l != nil && authed {
		frame := protocol.NewFrame(protocol.LogoutTag, protocol.LogoutPayload).Encode()
		if err := c.write(l, frame, false, true); err != nil {
			c.logger.Warn("logout frame failed", "error", err)
		}
	}

	c.mu.Lock()
	c.clientToken = ""
	c.serverToken = ""
	c.wid = ""
	c.clientID = newClientID()
	c.mu.Unlock()
	return c.disconnect(ReasonLogout, nil)
}

func (c *Client) disconnect(reason DisconnectReason, cause error) error {
	c.mu.Lock()
	if c.state == StateDisconnected && c.link == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.epoch++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.setStateLocked(StateDisconnecting)
	l := c.link
	c.link = nil
	pending := c.takePendingLocked()
	c.mu.Unlock()

	if l != nil {
		l.stopKeepAlive()
		l.stop()
		<-l.readerDone
	}
	failPending(pending)

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.logger.Info("disconnected", "reason", string(reason))
	c.events.emit(Disconnected{Reason: reason, Code: 1000, Err: cause})
	return nil
}

// Close disconnects and stops event delivery. The client cannot be reused.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.events.close()
	return err
}

// handleClose routes an unexpected close of l through the state machine.
func (c *Client) handleClose(l *link, reason DisconnectReason, code int, cause error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		l.stop()
		return
	}
	c.link = nil
	pending := c.takePendingLocked()
	if !l.ready {
		// open is still waiting for the handshake and reports the failure.
		c.mu.Unlock()
		l.stop()
		failPending(pending)
		return
	}

	wantRetry := !c.closing && c.cfg.AutoReconnect && reason.Reconnects()
	retry := wantRetry && c.scheduleReconnectLocked(c.epoch)
	if retry {
		c.setStateLocked(StateReconnecting)
	} else {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	l.stop()
	failPending(pending)

	if wantRetry && !retry {
		cause = ErrReconnectExhausted
	}
	c.logger.Info("connection closed", "reason", string(reason), "code", code, "reconnect", retry)
	c.events.emit(Disconnected{Reason: reason, Code: code, Err: cause})
}

// scheduleReconnectLocked arms the reconnect timer. At most one timer is
// pending at a time. It reports false when the backoff is exhausted.
func (c *Client) scheduleReconnectLocked(epoch uint64) bool {
	if c.reconnectTimer != nil {
		return true
	}
	delay, ok := c.backoff.NextDelay()
	if !ok {
		return false
	}
	attempt := c.backoff.Attempt()
	c.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	c.observer.ReconnectScheduled(attempt, delay)
	c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(epoch) })
	return true
}

func (c *Client) reconnect(epoch uint64) {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closing || c.epoch != epoch || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout+c.cfg.HandshakeTimeout)
	err := c.open(ctx, epoch)
	cancel()
	if err == nil {
		return
	}
	c.logger.Warn("reconnect failed", "attempt", c.backoff.Attempt(), "error", err)

	reason := ReasonConnectionLost
	terminal := false
	switch {
	case errors.Is(err, ErrSessionExpired):
		reason, terminal = ReasonSessionExpired, true
	case errors.Is(err, ErrConnectionReplaced):
		reason, terminal = ReasonConnectionReplaced, true
	}

	c.mu.Lock()
	if c.closing || c.epoch != epoch || c.link != nil {
		c.mu.Unlock()
		return
	}
	if !terminal && c.scheduleReconnectLocked(epoch) {
		c.setStateLocked(StateReconnecting)
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	cause := err
	if !terminal {
		cause = ErrReconnectExhausted
		c.logger.Error("reconnect attempts exhausted", "attempts", c.cfg.Backoff.MaxAttempts)
	}
	c.events.emit(Disconnected{Reason: reason, Err: cause})
}

// write sends one frame. Writes from all goroutines are serialized.
// Keep-alive pings pass touch=false so they do not count as traffic.
func (c *Client) write(l *link, data []byte, binary, touch bool) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-l.done:
		return ErrConnectionClosed
	default:
	}
	if err := l.t.WriteFrame(data, binary); err != nil {
		return err
	}
	if touch {
		c.touch()
	}
	c.observer.FrameSent(frameKind(binary), len(data))
	return nil
}

func frameKind(binary bool) string {
	if binary {
		return "binary"
	}
	return "text"
}

func (c *Client) readLoop(l *link) {
	defer close(l.readerDone)
	for {
		data, binary, err := l.t.ReadFrame()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			reason, code := reasonForClose(err)
			c.logger.Warn("transport closed", "reason", string(reason), "code", code, "error", err)
			c.handleClose(l, reason, code, err)
			return
		}
		c.touch()
		c.observer.FrameReceived(frameKind(binary), len(data))
		c.dispatch(l, data, binary)
	}
}

// dispatch routes one inbound frame: pongs are swallowed, replies resolve
// their pending request, status pushes drive the handshake and everything
// else becomes a Message event.
func (c *Client) dispatch(l *link, data []byte, binary bool) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		c.logger.Debug("dropping malformed frame", "error", err, "size", len(data))
		c.observer.FrameDropped("malformed")
		return
	}
	if frame.IsPong() {
		return
	}
	if c.resolve(frame.Tag, reply{payload: frame.Payload, binary: binary}) {
		return
	}
	if protocol.IsStatusTag(frame.Tag) && frame.IsJSON() {
		if _, ok := protocol.PeekStatus(frame.Payload); ok {
			c.handleStatus(l, frame.Payload)
			return
		}
	}
	c.handleMessage(frame, binary)
}

func (c *Client) handleStatus(l *link, payload []byte) {
	var st protocol.StatusResponse
	if err := protocol.UnmarshalAdmin(payload, &st); err != nil {
		c.logger.Warn("dropping malformed status", "error", err)
		c.observer.FrameDropped("malformed")
		return
	}

	switch st.Status {
	case protocol.StatusOK:
		c.mu.Lock()
		if c.link != l {
			c.mu.Unlock()
			return
		}
		if st.ClientToken != "" {
			c.clientToken = st.ClientToken
		}
		if st.ServerToken != "" {
			c.serverToken = st.ServerToken
		}
		if st.Wid != "" {
			c.wid = st.Wid
		}
		c.pairing = nil
		c.markReadyLocked(l)
		c.setStateLocked(StateAuthenticated)
		user := UserInfo{
			Wid:         c.wid,
			PushName:    st.PushName,
			Platform:    st.Platform,
			Device:      st.Device,
			ClientToken: c.clientToken,
			ServerToken: c.serverToken,
		}
		c.mu.Unlock()

		c.logger.Info("authenticated", "wid", user.Wid)
		c.startKeepAlive(l)
		c.events.emit(Authenticated{User: user})
		l.signal(nil)

	case protocol.StatusUnauthorized:
		c.mu.Lock()
		if c.link != l {
			c.mu.Unlock()
			return
		}
		fresh := st.Ref != "" && st.Ref != c.lastQRRef
		if fresh {
			c.lastQRRef = st.Ref
		}
		c.markReadyLocked(l)
		c.setStateLocked(StateAuthenticating)
		c.mu.Unlock()

		if fresh {
			c.logger.Info("login challenge received", "ttl_ms", st.TTL)
			c.events.emit(QRCode{Ref: st.Ref, TTL: time.Duration(st.TTL) * time.Millisecond})
		}
		l.signal(nil)

	case protocol.StatusForbidden:
		c.mu.Lock()
		if c.link != l {
			c.mu.Unlock()
			return
		}
		c.clientToken = ""
		c.serverToken = ""
		ready := l.ready
		c.mu.Unlock()
		c.logger.Warn("session expired", "reason", st.Reason)
		if !ready {
			l.signal(&AuthenticationError{Op: "handshake", Err: ErrSessionExpired})
			return
		}
		c.handleClose(l, ReasonSessionExpired, st.Status, ErrSessionExpired)

	case protocol.StatusConflict:
		c.mu.Lock()
		if c.link != l {
			c.mu.Unlock()
			return
		}
		ready := l.ready
		c.mu.Unlock()
		c.logger.Warn("connection replaced", "reason", st.Reason)
		if !ready {
			l.signal(&ConnectionError{Op: "handshake", Err: ErrConnectionReplaced})
			return
		}
		c.handleClose(l, ReasonConnectionReplaced, st.Status, ErrConnectionReplaced)

	default:
		c.mu.Lock()
		ready := l.ready
		c.mu.Unlock()
		c.logger.Warn("unexpected status", "status", st.Status, "reason", st.Reason)
		if !ready {
			l.signal(&ConnectionError{Op: "handshake", Err: fmt.Errorf("unexpected status %d", st.Status)})
		}
	}
}

func (c *Client) markReadyLocked(l *link) {
	if !l.ready {
		l.ready = true
		c.backoff.Reset()
	}
}

func (c *Client) handleMessage(frame *protocol.Frame, binary bool) {
	msg := Message{Tag: frame.Tag, Raw: frame.Payload}
	if !frame.IsJSON() {
		n, err := protocol.DecodeNodePayload(frame.Payload, binary)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", "tag", frame.Tag, "error", err)
			c.observer.FrameDropped("decode")
			return
		}
		msg.Node = n
		pt, ok := c.decryptInbound(n)
		if !ok {
			return
		}
		msg.Plaintext = pt
	}
	c.events.emit(msg)
}

// decryptInbound opens the enc child of a message node. ok is false when
// the message must be dropped.
func (c *Client) decryptInbound(n *protocol.Node) (plaintext []byte, ok bool) {
	if n.Tag != "message" {
		return nil, true
	}
	enc := n.ChildByTag("enc")
	if enc == nil {
		return nil, true
	}
	peer := n.AttrString("from")
	if c.cipher == nil || peer == "" {
		c.logger.Warn("dropping encrypted message without session", "from", peer)
		c.observer.FrameDropped("decrypt")
		return nil, false
	}
	pt, err := c.cipher.Decrypt(context.Background(), peer, enc.ContentBytes())
	if err != nil {
		c.logger.Warn("dropping message that failed to decrypt", "from", peer, "error", err)
		c.observer.FrameDropped("decrypt")
		return nil, false
	}
	return pt, true
}

func (c *Client) startKeepAlive(l *link) {
	if l.kaStarted.Swap(true) {
		return
	}
	go c.keepAlive(l)
}

// keepAlive pings every interval and closes the link once nothing has been
// read or written for twice the interval.
func (c *Client) keepAlive(l *link) {
	defer close(l.kaDone)
	interval := c.cfg.KeepAliveInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.kaStop:
			return
		case <-ticker.C:
			if silence := time.Since(c.lastTrafficTime()); silence > 2*interval {
				c.logger.Warn("keep-alive timeout, closing connection", "silence", silence)
				c.handleClose(l, ReasonConnectionLost, 0, ErrKeepAliveTimeout)
				return
			}
			if err := c.write(l, []byte(protocol.KeepAliveFrame), false, false); err != nil {
				c.logger.Warn("keep-alive write failed", "error", err)
				c.handleClose(l, ReasonConnectionLost, 0, err)
				return
			}
		}
	}
}

func (c *Client) resolve(tag string, r reply) bool {
	c.mu.Lock()
	ch, ok := c.pending[tag]
	if ok {
		delete(c.pending, tag)
	}
	n := len(c.pending)
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.observer.PendingRequests(n)
	ch <- r
	return true
}

func (c *Client) dropPending(tag string) {
	c.mu.Lock()
	delete(c.pending, tag)
	n := len(c.pending)
	c.mu.Unlock()
	c.observer.PendingRequests(n)
}

func (c *Client) takePendingLocked() map[string]chan reply {
	if len(c.pending) == 0 {
		return nil
	}
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.observer.PendingRequests(0)
	return pending
}

func failPending(pending map[string]chan reply) {
	for _, ch := range pending {
		ch <- reply{err: ErrConnectionClosed}
	}
}

// Request writes payload under tag and waits for the reply with the same
// tag. An empty tag is generated. The wait is bounded by
// Config.RequestTimeout and ctx.
func (c *Client) Request(ctx context.Context, tag string, payload []byte) ([]byte, error) {
	if tag == "" {
		tag = c.tags.Next()
	}
	r, err := c.request(ctx, "request", tag, payload, false)
	if err != nil {
		return nil, err
	}
	return r.payload, nil
}

func (c *Client) request(ctx context.Context, op, tag string, payload []byte, binary bool) (r reply, err error) {
	ctx, span := c.tracer.Start(ctx, "waweb."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("waweb.tag", tag)))
	start := time.Now()
	defer func() {
		c.observer.RequestCompleted(op, time.Since(start), err)
		endSpan(span, err)
	}()

	c.mu.Lock()
	l := c.link
	if l == nil || !c.state.IsOpen() {
		c.mu.Unlock()
		return reply{}, &ConnectionError{Op: op, Err: ErrNotConnected}
	}
	if _, dup := c.pending[tag]; dup {
		c.mu.Unlock()
		return reply{}, &ConnectionError{Op: op, Err: ErrDuplicateTag}
	}
	ch := make(chan reply, 1)
	c.pending[tag] = ch
	n := len(c.pending)
	c.mu.Unlock()
	c.observer.PendingRequests(n)

	if err := c.write(l, protocol.NewFrame(tag, payload).Encode(), binary, true); err != nil {
		c.dropPending(tag)
		return reply{}, &ConnectionError{Op: op, Err: err}
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			return reply{}, &ConnectionError{Op: op, Err: r.err}
		}
		return r, nil
	case <-timer.C:
		c.dropPending(tag)
		return reply{}, &ConnectionError{Op: op, Err: ErrRequestTimeout}
	case <-ctx.Done():
		c.dropPending(tag)
		return reply{}, &ConnectionError{Op: op, Err: ctx.Err()}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
