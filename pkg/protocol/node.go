package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// AttrKind identifies the variant held by an AttrValue.
type AttrKind uint8

const (
	AttrText AttrKind = iota
	AttrJID
	AttrBytes
	AttrAbsent
)

// String returns the kind name.
func (k AttrKind) String() string {
	switch k {
	case AttrText:
		return "text"
	case AttrJID:
		return "jid"
	case AttrBytes:
		return "bytes"
	case AttrAbsent:
		return "absent"
	default:
		return fmt.Sprintf("AttrKind(%d)", k)
	}
}

// AttrValue is a tagged attribute value.
type AttrValue struct {
	Kind  AttrKind
	Text  string
	JID   JID
	Bytes []byte
}

// TextValue returns a text attribute value.
func TextValue(s string) AttrValue { return AttrValue{Kind: AttrText, Text: s} }

// JIDValue returns a JID attribute value.
func JIDValue(j JID) AttrValue { return AttrValue{Kind: AttrJID, JID: j} }

// BytesValue returns a binary attribute value.
func BytesValue(b []byte) AttrValue { return AttrValue{Kind: AttrBytes, Bytes: b} }

// AbsentValue returns a present key with no value.
func AbsentValue() AttrValue { return AttrValue{Kind: AttrAbsent} }

// String renders the value as text. JIDs use user@server; bytes are hex.
func (v AttrValue) String() string {
	switch v.Kind {
	case AttrText:
		return v.Text
	case AttrJID:
		return v.JID.String()
	case AttrBytes:
		return hex.EncodeToString(v.Bytes)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
func (v AttrValue) Equal(o AttrValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case AttrText:
		return v.Text == o.Text
	case AttrJID:
		return v.JID == o.JID
	case AttrBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	default:
		return true
	}
}

// Attr is one attribute entry. Node attributes keep insertion order.
type Attr struct {
	Key   string
	Value AttrValue
}

// ContentKind identifies the variant held by a Content.
type ContentKind uint8

const (
	ContentNone ContentKind = iota
	ContentText
	ContentBytes
	ContentChildren
)

// Content is the optional payload of a node.
type Content struct {
	Kind     ContentKind
	Text     string
	Bytes    []byte
	Children []*Node
}

// Node is the unit of the binary wire format.
type Node struct {
	Tag     string
	Attrs   []Attr
	Content Content
}

// NewNode starts building a node with the given tag.
func NewNode(tag string) *Node {
	return &Node{Tag: tag}
}

// Set stores an attribute. An existing key is replaced in place.
func (n *Node) Set(key string, v AttrValue) *Node {
	for i := range n.Attrs {
		if n.Attrs[i].Key == key {
			n.Attrs[i].Value = v
			return n
		}
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: v})
	return n
}

// Attr sets a text attribute.
func (n *Node) Attr(key, value string) *Node { return n.Set(key, TextValue(value)) }

// JIDAttr sets a JID attribute.
func (n *Node) JIDAttr(key string, j JID) *Node { return n.Set(key, JIDValue(j)) }

// BytesAttr sets a binary attribute.
func (n *Node) BytesAttr(key string, b []byte) *Node { return n.Set(key, BytesValue(b)) }

// AbsentAttr sets a key with no value.
func (n *Node) AbsentAttr(key string) *Node { return n.Set(key, AbsentValue()) }

// Text sets text content.
func (n *Node) Text(s string) *Node {
	n.Content = Content{Kind: ContentText, Text: s}
	return n
}

// Bytes sets binary content.
func (n *Node) Bytes(b []byte) *Node {
	n.Content = Content{Kind: ContentBytes, Bytes: b}
	return n
}

// Children sets child content. Nil children are skipped.
func (n *Node) Children(children ...*Node) *Node {
	list := make([]*Node, 0, len(children))
	for _, c := range children {
		if c != nil {
			list = append(list, c)
		}
	}
	n.Content = Content{Kind: ContentChildren, Children: list}
	return n
}

// GetAttr returns the attribute value for key.
func (n *Node) GetAttr(key string) (AttrValue, bool) {
	for _, a := range n.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return AttrValue{}, false
}

// AttrString returns the text form of an attribute, or "" if missing.
func (n *Node) AttrString(key string) string {
	v, ok := n.GetAttr(key)
	if !ok {
		return ""
	}
	return v.String()
}

// ChildByTag returns the first direct child with the given tag.
func (n *Node) ChildByTag(tag string) *Node {
	if n.Content.Kind != ContentChildren {
		return nil
	}
	for _, c := range n.Content.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ContentBytes returns text or binary content as bytes.
func (n *Node) ContentBytes() []byte {
	switch n.Content.Kind {
	case ContentText:
		return []byte(n.Content.Text)
	case ContentBytes:
		return n.Content.Bytes
	default:
		return nil
	}
}

// Equal reports structural equality. Empty and nil child lists are equal.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Tag != o.Tag || len(n.Attrs) != len(o.Attrs) {
		return false
	}
	for i := range n.Attrs {
		if n.Attrs[i].Key != o.Attrs[i].Key || !n.Attrs[i].Value.Equal(o.Attrs[i].Value) {
			return false
		}
	}
	a, b := n.Content, o.Content
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ContentText:
		return a.Text == b.Text
	case ContentBytes:
		return bytes.Equal(a.Bytes, b.Bytes)
	case ContentChildren:
		if len(a.Children) != len(b.Children) {
			return false
		}
		for i := range a.Children {
			if !a.Children[i].Equal(b.Children[i]) {
				return false
			}
		}
	}
	return true
}

// String renders an XML-like form for logs.
func (n *Node) String() string {
	var sb strings.Builder
	n.writeXML(&sb, 0)
	return sb.String()
}

func (n *Node) writeXML(sb *strings.Builder, indent int) {
	pad := strings.Repeat("  ", indent)
	sb.WriteString(pad)
	sb.WriteByte('<')
	sb.WriteString(n.Tag)
	for _, a := range n.Attrs {
		if a.Value.Kind == AttrAbsent {
			fmt.Fprintf(sb, " %s", a.Key)
			continue
		}
		fmt.Fprintf(sb, " %s=%q", a.Key, a.Value.String())
	}
	switch n.Content.Kind {
	case ContentNone:
		sb.WriteString("/>")
	case ContentText:
		fmt.Fprintf(sb, ">%s</%s>", n.Content.Text, n.Tag)
	case ContentBytes:
		fmt.Fprintf(sb, "><!-- %d bytes --></%s>", len(n.Content.Bytes), n.Tag)
	case ContentChildren:
		sb.WriteString(">\n")
		for _, c := range n.Content.Children {
			c.writeXML(sb, indent+1)
			sb.WriteByte('\n')
		}
		fmt.Fprintf(sb, "%s</%s>", pad, n.Tag)
	}
}
