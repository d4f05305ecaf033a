package media

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/waweb-dev/waweb/pkg/protocol"
	"github.com/waweb-dev/waweb/pkg/signal"
)

// NodeTag is the tag of media descriptor nodes.
const NodeTag = "media"

// MediaKeySize is the size of the per-file media key.
const MediaKeySize = 32

// Descriptor is the metadata of one attachment.
type Descriptor struct {
	Category  Category
	MimeType  string
	FileName  string
	Size      int64
	SHA256    []byte
	EncSHA256 []byte
	MediaKey  []byte
	URL       string
	Caption   string
}

// Option adjusts a descriptor built by FromFile or FromBytes.
type Option func(*Descriptor)

// WithCategory forces the category, e.g. Sticker for a webp image.
func WithCategory(c Category) Option {
	return func(d *Descriptor) {
		d.Category = c
	}
}

// WithCaption sets the caption.
func WithCaption(caption string) Option {
	return func(d *Descriptor) {
		d.Caption = caption
	}
}

// WithMimeType overrides the detected MIME type.
func WithMimeType(mimeType string) Option {
	return func(d *Descriptor) {
		d.MimeType = normalizeMime(mimeType)
	}
}

// FromFile reads path and builds a validated descriptor.
func FromFile(path string, opts ...Option) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &MediaError{Op: "open", File: path, Err: err}
	}
	if info.IsDir() {
		return nil, &MediaError{Op: "open", File: path, Err: ErrUnsupportedType}
	}
	// Reject before reading anything larger than the biggest category allows.
	if info.Size() > Document.MaxSize() {
		return nil, &MediaError{Op: "validate", File: path, Err: ErrTooLarge}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MediaError{Op: "read", File: path, Err: err}
	}
	return FromBytes(filepath.Base(path), data, opts...)
}

// FromBytes builds a validated descriptor for data. The media key is
// random; SHA256 covers the plaintext.
func FromBytes(name string, data []byte, opts ...Option) (*Descriptor, error) {
	d := &Descriptor{
		MimeType: DetectMimeType(name, data),
		FileName: name,
		Size:     int64(len(data)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.Category == "" {
		d.Category = CategoryFor(d.MimeType)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	d.SHA256 = sum[:]
	d.MediaKey = make([]byte, MediaKeySize)
	if _, err := io.ReadFull(rand.Reader, d.MediaKey); err != nil {
		return nil, &MediaError{Op: "generate key", File: name, Err: err}
	}
	return d, nil
}

// Validate checks category, MIME type and size.
func (d *Descriptor) Validate() error {
	if !d.Category.Valid() {
		return &MediaError{Op: "validate", File: d.FileName, Err: fmt.Errorf("%w: category %q", ErrUnsupportedType, d.Category)}
	}
	if !d.Category.Accepts(d.MimeType) {
		return &MediaError{Op: "validate", File: d.FileName, Err: fmt.Errorf("%w: %s as %s", ErrUnsupportedType, d.MimeType, d.Category)}
	}
	if d.Size <= 0 {
		return &MediaError{Op: "validate", File: d.FileName, Err: ErrEmpty}
	}
	if d.Size > d.Category.MaxSize() {
		return &MediaError{Op: "validate", File: d.FileName, Err: fmt.Errorf("%w: %d bytes, %s limit is %d", ErrTooLarge, d.Size, d.Category, d.Category.MaxSize())}
	}
	return nil
}

// Encrypt seals data with the media key and records the hash of the
// encrypted blob.
func (d *Descriptor) Encrypt(data []byte) ([]byte, error) {
	if len(d.MediaKey) != MediaKeySize {
		return nil, &MediaError{Op: "encrypt", File: d.FileName, Err: ErrInvalidDescriptor}
	}
	blob, err := signal.Seal(d.MediaKey, data, nil)
	if err != nil {
		return nil, &MediaError{Op: "encrypt", File: d.FileName, Err: err}
	}
	sum := sha256.Sum256(blob)
	d.EncSHA256 = sum[:]
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt and checks both hashes.
func (d *Descriptor) Decrypt(blob []byte) ([]byte, error) {
	if len(d.EncSHA256) > 0 {
		sum := sha256.Sum256(blob)
		if string(sum[:]) != string(d.EncSHA256) {
			return nil, &MediaError{Op: "decrypt", File: d.FileName, Err: signal.ErrDecrypt}
		}
	}
	data, err := signal.Open(d.MediaKey, blob)
	if err != nil {
		return nil, &MediaError{Op: "decrypt", File: d.FileName, Err: err}
	}
	if len(d.SHA256) > 0 {
		sum := sha256.Sum256(data)
		if string(sum[:]) != string(d.SHA256) {
			return nil, &MediaError{Op: "decrypt", File: d.FileName, Err: signal.ErrDecrypt}
		}
	}
	return data, nil
}

// Node encodes the descriptor as a media node.
func (d *Descriptor) Node() *protocol.Node {
	n := protocol.NewNode(NodeTag).
		Attr("type", string(d.Category)).
		Attr("mimetype", d.MimeType).
		Attr("size", strconv.FormatInt(d.Size, 10))
	if d.FileName != "" {
		n.Attr("filename", d.FileName)
	}
	if len(d.SHA256) > 0 {
		n.BytesAttr("file_sha256", d.SHA256)
	}
	if len(d.EncSHA256) > 0 {
		n.BytesAttr("file_enc_sha256", d.EncSHA256)
	}
	if len(d.MediaKey) > 0 {
		n.BytesAttr("media_key", d.MediaKey)
	}
	if d.URL != "" {
		n.Attr("url", d.URL)
	}
	if d.Caption != "" {
		n.Children(protocol.NewNode("caption").Text(d.Caption))
	}
	return n
}

// DescriptorFromNode decodes a media node built by Node.
func DescriptorFromNode(n *protocol.Node) (*Descriptor, error) {
	if n == nil || n.Tag != NodeTag {
		return nil, &MediaError{Op: "decode", Err: ErrInvalidDescriptor}
	}
	size, err := strconv.ParseInt(n.AttrString("size"), 10, 64)
	if err != nil {
		return nil, &MediaError{Op: "decode", Err: fmt.Errorf("%w: size: %v", ErrInvalidDescriptor, err)}
	}
	d := &Descriptor{
		Category:  Category(n.AttrString("type")),
		MimeType:  n.AttrString("mimetype"),
		FileName:  n.AttrString("filename"),
		Size:      size,
		SHA256:    bytesAttr(n, "file_sha256"),
		EncSHA256: bytesAttr(n, "file_enc_sha256"),
		MediaKey:  bytesAttr(n, "media_key"),
		URL:       n.AttrString("url"),
	}
	if c := n.ChildByTag("caption"); c != nil {
		d.Caption = string(c.ContentBytes())
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func bytesAttr(n *protocol.Node, key string) []byte {
	v, ok := n.GetAttr(key)
	if !ok {
		return nil
	}
	switch v.Kind {
	case protocol.AttrBytes:
		return v.Bytes
	case protocol.AttrText:
		return []byte(v.Text)
	}
	return nil
}
