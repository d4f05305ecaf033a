package protocol

// Encoder appends wire primitives to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: make([]byte, 0, 256),
	}
}

// Reset resets the encoder to empty state, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The returned slice is valid until
// the next call to Reset or any Write method.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// WriteByte appends a single byte.
// Note: This intentionally doesn't return error (unlike io.ByteWriter)
// because our buffer is unbounded and can always append.
func (e *Encoder) WriteByte(b byte) {
	e.buf = append(e.buf, b)
}

// WriteBytes appends raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (e *Encoder) WriteUint16(v uint16) {
	e.buf = append(e.buf, byte(v>>8), byte(v))
}

// WriteInt20 appends the low 20 bits of v as three big-endian bytes.
func (e *Encoder) WriteInt20(v int) {
	e.buf = append(e.buf, byte((v>>16)&0x0F), byte(v>>8), byte(v))
}

// WriteUint32 appends a uint32 in big-endian byte order.
func (e *Encoder) WriteUint32(v uint32) {
	e.buf = append(e.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteListStart writes the count marker for a list of n elements.
func (e *Encoder) WriteListStart(n int) error {
	switch {
	case n == 0:
		e.WriteByte(ListEmpty)
	case n < 256:
		e.WriteByte(List8)
		e.WriteByte(byte(n))
	case n <= MaxListCount:
		e.WriteByte(List16)
		e.WriteUint16(uint16(n))
	default:
		return ErrNodeTooLarge
	}
	return nil
}

// WriteString writes s using the most specific form available:
// dictionary token, packed digits, packed hex, then raw text.
func (e *Encoder) WriteString(s string) {
	if ref, ok := IndexOfToken(s); ok {
		if ref.Double {
			e.WriteByte(Dictionary0 + ref.Page)
		}
		e.WriteByte(ref.Index)
		return
	}
	if isPackable(s, Nibble8) {
		e.writePacked(s, Nibble8)
		return
	}
	if isPackable(s, Hex8) {
		e.writePacked(s, Hex8)
		return
	}
	e.writeLength(len(s), Text8, Text20, Text32)
	e.buf = append(e.buf, s...)
}

// WriteBinary writes b with an 8, 20 or 32 bit length class.
func (e *Encoder) WriteBinary(b []byte) {
	e.writeLength(len(b), Binary8, Binary20, Binary32)
	e.buf = append(e.buf, b...)
}

// WriteJID writes the two-field JID form.
func (e *Encoder) WriteJID(j JID) {
	e.WriteByte(JIDPair)
	e.WriteString(j.User)
	e.WriteString(j.Server)
}

func (e *Encoder) writeLength(n int, m8, m20, m32 byte) {
	switch {
	case n < 1<<8:
		e.WriteByte(m8)
		e.WriteByte(byte(n))
	case n < 1<<20:
		e.WriteByte(m20)
		e.WriteInt20(n)
	default:
		e.WriteByte(m32)
		e.WriteUint32(uint32(n))
	}
}

// maxPackedLength is the longest string that fits a packed length byte.
const maxPackedLength = 2 * 0x7F

func isPackable(s string, kind byte) bool {
	if len(s) == 0 || len(s) > maxPackedLength {
		return false
	}
	digitsOnly := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case kind == Hex8 && c >= 'A' && c <= 'F':
			digitsOnly = false
		default:
			return false
		}
	}
	// Pure digit strings always take the nibble form.
	return kind == Nibble8 || !digitsOnly
}

func (e *Encoder) writePacked(s string, kind byte) {
	e.WriteByte(kind)
	n := (len(s) + 1) / 2
	lenByte := byte(n)
	if len(s)%2 != 0 {
		lenByte |= 0x80
	}
	e.WriteByte(lenByte)
	for i := 0; i < n; i++ {
		hi := packNibble(s[2*i])
		lo := byte(0x0F)
		if 2*i+1 < len(s) {
			lo = packNibble(s[2*i+1])
		}
		e.WriteByte(hi<<4 | lo)
	}
}

func packNibble(c byte) byte {
	if c >= 'A' {
		return c - 'A' + 10
	}
	return c - '0'
}

// WriteNode writes n and its subtree.
func (e *Encoder) WriteNode(n *Node) error {
	if n == nil || n.Tag == "" {
		return ErrEmptyNode
	}
	count := 1 + 2*len(n.Attrs)
	if n.Content.Kind != ContentNone {
		count++
	}
	if err := e.WriteListStart(count); err != nil {
		return err
	}

	if j, err := ParseJID(n.Tag); err == nil {
		e.WriteJID(j)
	} else {
		e.WriteString(n.Tag)
	}

	for _, a := range n.Attrs {
		e.WriteString(a.Key)
		switch a.Value.Kind {
		case AttrText:
			e.WriteString(a.Value.Text)
		case AttrJID:
			e.WriteJID(a.Value.JID)
		case AttrBytes:
			e.WriteBinary(a.Value.Bytes)
		case AttrAbsent:
			e.WriteByte(ListEmpty)
		}
	}

	switch n.Content.Kind {
	case ContentText:
		e.WriteString(n.Content.Text)
	case ContentBytes:
		e.WriteBinary(n.Content.Bytes)
	case ContentChildren:
		if err := e.WriteListStart(len(n.Content.Children)); err != nil {
			return err
		}
		for _, c := range n.Content.Children {
			if err := e.WriteNode(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode serializes a node tree. Output is deterministic: attributes are
// written in insertion order.
func Encode(n *Node) ([]byte, error) {
	e := NewEncoder()
	if err := e.WriteNode(n); err != nil {
		return nil, newProtocolError("encode", e.Len(), err)
	}
	return e.Bytes(), nil
}
