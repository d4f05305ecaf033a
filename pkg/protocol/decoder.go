package protocol

import (
	"io"
	"strings"
)

// Decoder is a binary decoder that reads from a byte buffer.
type Decoder struct {
	buf    []byte
	pos    int
	limits DecodeLimits
	depth  *depthContext
}

// NewDecoder creates a decoder with default limits.
func NewDecoder(buf []byte) *Decoder {
	return NewDecoderWithLimits(buf, DefaultDecodeLimits())
}

// NewDecoderWithLimits creates a decoder with custom limits.
func NewDecoderWithLimits(buf []byte, limits DecodeLimits) *Decoder {
	limits = limits.normalized()
	return &Decoder{buf: buf, limits: limits, depth: newDepthContext(limits.MaxDepth)}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns them.
// The returned slice references the decoder's buffer; do not modify.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// ReadUint16 reads a uint16 in big-endian byte order.
func (d *Decoder) ReadUint16() (uint16, error) {
	if d.pos+2 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint16(d.buf[d.pos])<<8 | uint16(d.buf[d.pos+1])
	d.pos += 2
	return v, nil
}

// ReadInt20 reads a 20-bit length stored in three bytes.
func (d *Decoder) ReadInt20() (int, error) {
	if d.pos+3 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := int(d.buf[d.pos]&0x0F)<<16 | int(d.buf[d.pos+1])<<8 | int(d.buf[d.pos+2])
	d.pos += 3
	return v, nil
}

// ReadUint32 reads a uint32 in big-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := uint32(d.buf[d.pos])<<24 | uint32(d.buf[d.pos+1])<<16 |
		uint32(d.buf[d.pos+2])<<8 | uint32(d.buf[d.pos+3])
	d.pos += 4
	return v, nil
}

// readLength reads a length for the given marker class and checks it
// against the remaining buffer and the allocation limit.
func (d *Decoder) readLength(marker, m8, m20 byte) (int, error) {
	var n int
	switch marker {
	case m8:
		b, err := d.ReadByte()
		if err != nil {
			return 0, err
		}
		n = int(b)
	case m20:
		v, err := d.ReadInt20()
		if err != nil {
			return 0, err
		}
		n = v
	default:
		v, err := d.ReadUint32()
		if err != nil {
			return 0, err
		}
		if uint64(v) > uint64(d.Remaining()) {
			return 0, io.ErrUnexpectedEOF
		}
		n = int(v)
	}
	// SECURITY: never trust a length beyond what is actually buffered.
	if n > d.Remaining() {
		return 0, io.ErrUnexpectedEOF
	}
	if n > d.limits.MaxAllocation {
		return 0, ErrAllocationTooLarge
	}
	return n, nil
}

// ReadListSize reads a list count for the given marker.
func (d *Decoder) ReadListSize(marker byte) (int, error) {
	switch marker {
	case ListEmpty:
		return 0, nil
	case List8:
		b, err := d.ReadByte()
		return int(b), err
	case List16:
		v, err := d.ReadUint16()
		return int(v), err
	default:
		return 0, ErrUnknownMarker
	}
}

func isListMarker(b byte) bool {
	return b == ListEmpty || b == List8 || b == List16
}

// readStringWith decodes a string whose marker byte has already been read.
func (d *Decoder) readStringWith(marker byte) (string, error) {
	switch {
	case marker >= 1 && marker <= MaxSingleByteToken:
		tok, ok := SingleByteToken(marker)
		if !ok {
			return "", ErrInvalidToken
		}
		return tok, nil

	case marker >= Dictionary0 && marker <= Dictionary3:
		idx, err := d.ReadByte()
		if err != nil {
			return "", err
		}
		tok, ok := DoubleByteToken(marker-Dictionary0, idx)
		if !ok {
			return "", ErrInvalidToken
		}
		return tok, nil

	case marker == Text8 || marker == Text20 || marker == Text32:
		n, err := d.readLength(marker, Text8, Text20)
		if err != nil {
			return "", err
		}
		s := string(d.buf[d.pos : d.pos+n])
		d.pos += n
		return s, nil

	case marker == Nibble8 || marker == Hex8:
		return d.readPacked(marker)

	case marker == JIDPair:
		j, err := d.readJID()
		if err != nil {
			return "", err
		}
		return j.String(), nil
	}
	return "", ErrUnknownMarker
}

// ReadString reads a marker and the string it introduces.
func (d *Decoder) ReadString() (string, error) {
	marker, err := d.ReadByte()
	if err != nil {
		return "", err
	}
	return d.readStringWith(marker)
}

func (d *Decoder) readJID() (JID, error) {
	user, err := d.readJIDPart()
	if err != nil {
		return JID{}, err
	}
	server, err := d.readJIDPart()
	if err != nil {
		return JID{}, err
	}
	return JID{User: user, Server: server}, nil
}

// readJIDPart reads one half of a JID. Nested pairs are rejected so that a
// run of JIDPair bytes cannot recurse.
func (d *Decoder) readJIDPart() (string, error) {
	marker, err := d.ReadByte()
	if err != nil {
		return "", err
	}
	if marker == JIDPair {
		return "", ErrUnknownMarker
	}
	return d.readStringWith(marker)
}

func (d *Decoder) readPacked(kind byte) (string, error) {
	lenByte, err := d.ReadByte()
	if err != nil {
		return "", err
	}
	odd := lenByte&0x80 != 0
	n := int(lenByte & 0x7F)
	raw, err := d.ReadBytes(n)
	if err != nil {
		return "", err
	}
	chars := 2 * n
	if odd {
		if n == 0 || raw[n-1]&0x0F != 0x0F {
			return "", ErrInvalidPacked
		}
		chars--
	}
	var sb strings.Builder
	sb.Grow(chars)
	for i := 0; i < chars; i++ {
		b := raw[i/2]
		var nib byte
		if i%2 == 0 {
			nib = b >> 4
		} else {
			nib = b & 0x0F
		}
		c, ok := unpackNibble(nib, kind)
		if !ok {
			return "", ErrInvalidPacked
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

func unpackNibble(nib, kind byte) (byte, bool) {
	switch {
	case nib <= 9:
		return '0' + nib, true
	case kind == Hex8:
		return 'A' + nib - 10, true
	}
	return 0, false
}

func (d *Decoder) readBinaryWith(marker byte) ([]byte, error) {
	n, err := d.readLength(marker, Binary8, Binary20)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

func isBinaryMarker(b byte) bool {
	return b == Binary8 || b == Binary20 || b == Binary32
}

// ReadNode decodes one node and its subtree.
// SECURITY: nesting is bounded by DecodeLimits.MaxDepth.
func (d *Decoder) ReadNode() (*Node, error) {
	if err := d.depth.enter(); err != nil {
		return nil, err
	}
	defer d.depth.leave()

	marker, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadListSize(marker)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyNode
	}

	tagMarker, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	tag, err := d.readStringWith(tagMarker)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return nil, ErrEmptyNode
	}
	n := &Node{Tag: tag}

	nattrs := (count - 1) / 2
	// Every attribute needs at least a key byte and a value byte.
	if nattrs*2 > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	if nattrs > 0 {
		n.Attrs = make([]Attr, 0, nattrs)
	}
	for i := 0; i < nattrs; i++ {
		key, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		val, err := d.readAttrValue()
		if err != nil {
			return nil, err
		}
		n.Attrs = append(n.Attrs, Attr{Key: key, Value: val})
	}

	if count%2 == 0 {
		content, err := d.readContent()
		if err != nil {
			return nil, err
		}
		n.Content = content
	}
	return n, nil
}

func (d *Decoder) readAttrValue() (AttrValue, error) {
	marker, err := d.ReadByte()
	if err != nil {
		return AttrValue{}, err
	}
	switch {
	case marker == ListEmpty:
		return AbsentValue(), nil
	case marker == JIDPair:
		j, err := d.readJID()
		if err != nil {
			return AttrValue{}, err
		}
		return JIDValue(j), nil
	case isBinaryMarker(marker):
		b, err := d.readBinaryWith(marker)
		if err != nil {
			return AttrValue{}, err
		}
		return BytesValue(b), nil
	}
	s, err := d.readStringWith(marker)
	if err != nil {
		return AttrValue{}, err
	}
	return TextValue(s), nil
}

func (d *Decoder) readContent() (Content, error) {
	marker, err := d.ReadByte()
	if err != nil {
		return Content{}, err
	}
	switch {
	case isListMarker(marker):
		size, err := d.ReadListSize(marker)
		if err != nil {
			return Content{}, err
		}
		// Every child needs at least two bytes.
		if size*2 > d.Remaining() {
			return Content{}, io.ErrUnexpectedEOF
		}
		children := make([]*Node, 0, size)
		for i := 0; i < size; i++ {
			child, err := d.ReadNode()
			if err != nil {
				return Content{}, err
			}
			children = append(children, child)
		}
		return Content{Kind: ContentChildren, Children: children}, nil
	case isBinaryMarker(marker):
		b, err := d.readBinaryWith(marker)
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: ContentBytes, Bytes: b}, nil
	}
	s, err := d.readStringWith(marker)
	if err != nil {
		return Content{}, err
	}
	return Content{Kind: ContentText, Text: s}, nil
}

// Decode parses exactly one node from data using default limits.
func Decode(data []byte) (*Node, error) {
	return DecodeWithLimits(data, DefaultDecodeLimits())
}

// DecodeWithLimits parses exactly one node from data. It never returns a
// partially built node: any error yields a nil node and a *ProtocolError.
func DecodeWithLimits(data []byte, limits DecodeLimits) (*Node, error) {
	d := NewDecoderWithLimits(data, limits)
	n, err := d.ReadNode()
	if err != nil {
		return nil, newProtocolError("decode", d.Position(), err)
	}
	if !d.EOF() {
		return nil, newProtocolError("decode", d.Position(), ErrTrailingData)
	}
	return n, nil
}
