package protocol

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// Frame constants.
const (
	// FrameSeparator divides the tag from the payload.
	FrameSeparator = ','

	// KeepAliveFrame is the client ping.
	KeepAliveFrame = "?,,"

	// PongPrefix marks server replies to keep-alive pings.
	PongPrefix = "pong"

	// AdminTag carries the init message.
	AdminTag = "admin"
)

// Frame is one "<tag>,<payload>" message.
type Frame struct {
	Tag     string
	Payload []byte
}

// NewFrame creates a new frame.
func NewFrame(tag string, payload []byte) *Frame {
	return &Frame{Tag: tag, Payload: payload}
}

// Encode returns the wire form of the frame.
func (f *Frame) Encode() []byte {
	buf := make([]byte, 0, len(f.Tag)+1+len(f.Payload))
	buf = append(buf, f.Tag...)
	buf = append(buf, FrameSeparator)
	buf = append(buf, f.Payload...)
	return buf
}

// IsPong reports whether the frame answers a keep-alive ping.
func (f *Frame) IsPong() bool {
	return strings.HasPrefix(f.Tag, PongPrefix)
}

// IsJSON reports whether the payload looks like an administrative JSON document.
func (f *Frame) IsJSON() bool {
	p := bytes.TrimLeft(f.Payload, " \t\r\n")
	return len(p) > 0 && (p[0] == '{' || p[0] == '[')
}

// ParseFrame splits data on the first separator. The payload aliases data.
func ParseFrame(data []byte) (*Frame, error) {
	i := bytes.IndexByte(data, FrameSeparator)
	if i < 0 {
		return nil, newProtocolError("frame", len(data), ErrInvalidFrame)
	}
	return &Frame{Tag: string(data[:i]), Payload: data[i+1:]}, nil
}

// NodeFrame encodes n and returns a text frame with a hex payload.
func NodeFrame(tag string, n *Node) (*Frame, error) {
	payload, err := EncodeNodePayload(n, false)
	if err != nil {
		return nil, err
	}
	return NewFrame(tag, payload), nil
}

// EncodeNodePayload encodes n as a frame payload: raw bytes for binary
// frames, hex text otherwise.
func EncodeNodePayload(n *Node, binary bool) ([]byte, error) {
	raw, err := Encode(n)
	if err != nil {
		return nil, err
	}
	if binary {
		return raw, nil
	}
	payload := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(payload, raw)
	return payload, nil
}

// DecodeNodePayload decodes a frame payload as a node. Text frames carry
// hex; binary frames carry the raw encoding.
func DecodeNodePayload(payload []byte, binary bool) (*Node, error) {
	if binary {
		return Decode(payload)
	}
	raw := make([]byte, hex.DecodedLen(len(payload)))
	if _, err := hex.Decode(raw, payload); err != nil {
		return nil, newProtocolError("frame", 0, err)
	}
	return Decode(raw)
}
