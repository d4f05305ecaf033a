package client

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/waweb-dev/waweb/pkg/protocol"
)

// Event is one of QRCode, Connected, Authenticated, Message, Disconnected,
// PairingCode or StateChanged.
type Event interface {
	EventName() string
}

// QRCode carries a login challenge reference to render as a scannable code.
type QRCode struct {
	Ref string
	TTL time.Duration
}

// Connected is emitted when the transport opens.
type Connected struct {
	ClientID string
	URL      string
}

// Authenticated is emitted when the server accepts the device.
type Authenticated struct {
	User UserInfo
}

// UserInfo describes the logged-in account.
type UserInfo struct {
	Wid         string
	PushName    string
	Platform    string
	Device      map[string]string
	ClientToken string
	ServerToken string
}

// Message is an inbound frame that was not a reply to a pending request.
// Node is nil for JSON payloads. Plaintext holds decrypted content when the
// node carried an enc child for a peer with a session.
type Message struct {
	Tag       string
	Node      *protocol.Node
	Raw       []byte
	Plaintext []byte
}

// Text returns the message body: the decrypted plaintext, or the content
// of a body child.
func (m Message) Text() string {
	if m.Plaintext != nil {
		return string(m.Plaintext)
	}
	if m.Node == nil {
		return ""
	}
	if body := m.Node.ChildByTag("body"); body != nil {
		return string(body.ContentBytes())
	}
	return ""
}

// Disconnected is emitted when a connection ends.
type Disconnected struct {
	Reason DisconnectReason
	Code   int
	Err    error
}

// PairingCode is emitted when the server issued a phone pairing code.
type PairingCode struct {
	Phone string
	Ref   string
}

// StateChanged is emitted on every state transition.
type StateChanged struct {
	From ConnectionState
	To   ConnectionState
}

func (QRCode) EventName() string        { return "qr" }
func (Connected) EventName() string     { return "connected" }
func (Authenticated) EventName() string { return "authenticated" }
func (Message) EventName() string       { return "message" }
func (Disconnected) EventName() string  { return "disconnected" }
func (PairingCode) EventName() string   { return "pairing_code" }
func (StateChanged) EventName() string  { return "state" }

// emitter queues events from the reader and delivers them on its own
// goroutine to handlers and channel subscribers.
type emitter struct {
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	exited chan struct{}

	mu       sync.RWMutex
	handlers []func(Event)
	subs     []chan Event
	closed   bool
}

func newEmitter(size int, logger *slog.Logger) *emitter {
	e := &emitter{
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) on(fn func(Event)) {
	e.mu.Lock()
	e.handlers = append(e.handlers, fn)
	e.mu.Unlock()
}

func (e *emitter) subscribe(size int) <-chan Event {
	ch := make(chan Event, size)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// lifecycleWait bounds how long a full queue or subscriber may hold up a
// lifecycle event before it is dropped.
const lifecycleWait = 2 * time.Second

// isLifecycle reports whether ev describes the connection itself rather
// than traffic on it. These events get reserved queue room and are never
// dropped without waiting.
func isLifecycle(ev Event) bool {
	switch ev.(type) {
	case QRCode, Connected, Authenticated, Disconnected, PairingCode:
		return true
	}
	return false
}

// emit queues ev. Messages and state changes never block and leave a
// quarter of the queue free; lifecycle events may use the whole queue and
// wait up to lifecycleWait for room. It reports false if ev was dropped.
func (e *emitter) emit(ev Event) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	if !isLifecycle(ev) {
		if len(e.queue) >= cap(e.queue)-cap(e.queue)/4 {
			e.logger.Warn("event queue full, dropping event", "event", ev.EventName())
			return false
		}
		select {
		case e.queue <- ev:
			return true
		default:
			e.logger.Warn("event queue full, dropping event", "event", ev.EventName())
			return false
		}
	}

	select {
	case e.queue <- ev:
		return true
	default:
	}
	t := time.NewTimer(lifecycleWait)
	defer t.Stop()
	select {
	case e.queue <- ev:
		return true
	case <-e.done:
		return false
	case <-t.C:
		e.logger.Error("event queue stalled, dropping event", "event", ev.EventName())
		return false
	}
}

func (e *emitter) run() {
	defer close(e.exited)
	for {
		select {
		case ev := <-e.queue:
			e.deliver(ev)
		case <-e.done:
			// Flush what is already queued.
			for {
				select {
				case ev := <-e.queue:
					e.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *emitter) deliver(ev Event) {
	e.mu.RLock()
	handlers := e.handlers
	subs := e.subs
	e.mu.RUnlock()

	for _, fn := range handlers {
		e.call(fn, ev)
	}
	var (
		deadline <-chan time.Time
		expired  bool
	)
	for _, ch := range subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !isLifecycle(ev) || expired {
			e.logger.Warn("event subscriber full, dropping event", "event", ev.EventName())
			continue
		}
		if deadline == nil {
			t := time.NewTimer(lifecycleWait)
			defer t.Stop()
			deadline = t.C
		}
		select {
		case ch <- ev:
		case <-deadline:
			expired = true
			e.logger.Error("event subscriber stalled, dropping event", "event", ev.EventName())
		}
	}
}

func (e *emitter) call(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panic",
				"event", ev.EventName(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn(ev)
}

// close stops delivery after flushing queued events and closes every
// subscriber channel.
func (e *emitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.done)
	<-e.exited

	e.mu.Lock()
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	e.mu.Unlock()
}
