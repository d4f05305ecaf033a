package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waweb-dev/waweb/pkg/media"
	"github.com/waweb-dev/waweb/pkg/protocol"
)

// Message node vocabulary.
const (
	messageTag  = "message"
	bodyTag     = "body"
	encTag      = "enc"
	encVersion  = "2"
	messageText = "text"
	messageFile = "media"
)

// NewMessageID returns a fresh upper-case hex message id.
func NewMessageID() string {
	id := uuid.New()
	return "3EB0" + strings.ToUpper(hex.EncodeToString(id[:8]))
}

// ParsePeer turns a JID string or a phone number into a JID.
func ParsePeer(peer string) (protocol.JID, error) {
	peer = strings.TrimSpace(peer)
	if strings.ContainsRune(peer, '@') {
		j, err := protocol.ParseJID(peer)
		if err != nil || j.User == "" || j.Server == "" {
			return protocol.JID{}, fmt.Errorf("%w: %q", ErrInvalidPeer, peer)
		}
		return j, nil
	}
	j := protocol.UserJID(peer)
	if len(j.User) < 2 || len(j.User) > 15 {
		return protocol.JID{}, fmt.Errorf("%w: %q", ErrInvalidPeer, peer)
	}
	return j, nil
}

// SendText sends a text message to peer and waits for the server ack. It
// returns the message id.
func (c *Client) SendText(ctx context.Context, peer, text string) (string, error) {
	return c.sendMessage(ctx, "send text", peer, messageText, func() (*protocol.Node, []byte, error) {
		return protocol.NewNode(bodyTag).Text(text), []byte(text), nil
	})
}

// SendMedia sends the descriptor of an attachment to peer. Uploading the
// file itself is left to the caller; d.URL should point at it.
func (c *Client) SendMedia(ctx context.Context, peer string, d *media.Descriptor) (string, error) {
	return c.sendMessage(ctx, "send media", peer, messageFile, func() (*protocol.Node, []byte, error) {
		if d == nil {
			return nil, nil, &media.MediaError{Op: "send", Err: media.ErrInvalidDescriptor}
		}
		if err := d.Validate(); err != nil {
			return nil, nil, err
		}
		n := d.Node()
		raw, err := protocol.Encode(n)
		if err != nil {
			return nil, nil, err
		}
		return n, raw, nil
	})
}

// SendNode sends n under a fresh tag and waits for the ack. It returns the
// tag.
func (c *Client) SendNode(ctx context.Context, n *protocol.Node) (string, error) {
	tag := c.tags.Next()
	if err := c.sendNode(ctx, "send node", tag, "", n); err != nil {
		return "", err
	}
	return tag, nil
}

// sendMessage builds a message node around the content returned by build,
// encrypting it when a session exists for the peer.
func (c *Client) sendMessage(ctx context.Context, op, peer, kind string, build func() (*protocol.Node, []byte, error)) (string, error) {
	if !c.authenticated() {
		return "", &MessageError{Op: op, Err: ErrNotAuthenticated}
	}
	to, err := ParsePeer(peer)
	if err != nil {
		return "", &MessageError{Op: op, Err: err}
	}
	id := NewMessageID()

	ctx, span := c.tracer.Start(ctx, "waweb.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("waweb.message.id", id),
			attribute.String("waweb.message.type", kind),
		))
	defer func() { endSpan(span, err) }()

	content, plaintext, err := build()
	if err != nil {
		return "", &MessageError{Op: op, MsgID: id, Err: err}
	}

	n := protocol.NewNode(messageTag).
		Attr("id", id).
		JIDAttr("to", to).
		Attr("type", kind).
		Attr("t", strconv.FormatInt(time.Now().Unix(), 10))

	peerID := to.String()
	encrypt := false
	if c.cipher != nil {
		if encrypt, err = c.cipher.HasSession(ctx, peerID); err != nil {
			err = &MessageError{Op: op, MsgID: id, Err: err}
			return "", err
		}
	}
	if encrypt {
		blob, encErr := c.cipher.Encrypt(ctx, peerID, plaintext)
		if encErr != nil {
			err = &MessageError{Op: op, MsgID: id, Err: encErr}
			return "", err
		}
		span.SetAttributes(attribute.Bool("waweb.message.encrypted", true))
		n.Children(protocol.NewNode(encTag).Attr("v", encVersion).Attr("type", kind).Bytes(blob))
	} else {
		n.Children(content)
	}

	if err = c.sendNode(ctx, op, c.tags.Next(), id, n); err != nil {
		return "", err
	}
	c.logger.Debug("message sent", "id", id, "to", peerID, "type", kind)
	return id, nil
}

func (c *Client) sendNode(ctx context.Context, op, tag, msgID string, n *protocol.Node) error {
	if !c.authenticated() {
		return &MessageError{Op: op, MsgID: msgID, Err: ErrNotAuthenticated}
	}
	binary := c.cfg.BinaryNodes
	payload, err := protocol.EncodeNodePayload(n, binary)
	if err != nil {
		return &MessageError{Op: op, MsgID: msgID, Err: err}
	}
	r, err := c.request(ctx, op, tag, payload, binary)
	if err != nil {
		return &MessageError{Op: op, MsgID: msgID, Err: err}
	}
	if err := checkAck(r); err != nil {
		return &MessageError{Op: op, MsgID: msgID, Err: err}
	}
	return nil
}

func (c *Client) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAuthenticated
}

// checkAck inspects a send reply. JSON acks carry a status; node acks
// carry an error attribute on failure. Anything else counts as accepted.
func checkAck(r reply) error {
	if len(r.payload) == 0 {
		return nil
	}
	if status, ok := protocol.PeekStatus(r.payload); ok {
		if status != protocol.StatusOK {
			return fmt.Errorf("%w: status %d", ErrMessageRejected, status)
		}
		return nil
	}
	n, err := protocol.DecodeNodePayload(r.payload, r.binary)
	if err != nil {
		return nil
	}
	if code := n.AttrString("error"); code != "" {
		return fmt.Errorf("%w: error %s", ErrMessageRejected, code)
	}
	return nil
}

// IsRejected reports whether err is a server refusal rather than a
// transport failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrMessageRejected)
}
