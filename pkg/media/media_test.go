package media

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/waweb-dev/waweb/pkg/protocol"
	"github.com/waweb-dev/waweb/pkg/signal"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		mime string
		want Category
	}{
		{"image/jpeg", Image},
		{"image/webp", Image},
		{"image/bmp", Image},
		{"video/mp4", Video},
		{"video/webm", Video},
		{"audio/ogg", Audio},
		{"audio/flac", Audio},
		{"application/pdf", Document},
		{"text/plain; charset=utf-8", Document},
		{"application/x-unknown", Document},
	}
	for _, tt := range tests {
		if got := CategoryFor(tt.mime); got != tt.want {
			t.Errorf("CategoryFor(%q) = %s, want %s", tt.mime, got, tt.want)
		}
	}
}

func TestCategoryLimits(t *testing.T) {
	want := map[Category]int64{
		Image:    16 << 20,
		Video:    16 << 20,
		Audio:    16 << 20,
		Document: 100 << 20,
		Sticker:  1 << 20,
	}
	for _, c := range Categories {
		if got := c.MaxSize(); got != want[c] {
			t.Errorf("%s.MaxSize() = %d, want %d", c, got, want[c])
		}
		if len(c.MimeTypes()) == 0 {
			t.Errorf("%s has no MIME types", c)
		}
	}
	if Category("hologram").Valid() {
		t.Error("unknown category reported valid")
	}
}

func TestDetectMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"photo.JPG", nil, "image/jpeg"},
		{"clip.mov", nil, "video/quicktime"},
		{"voice.opus", nil, "audio/ogg"},
		{"report.docx", nil, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"noext", png, "image/png"},
		{"notes", []byte("plain words"), "text/plain"},
	}
	for _, tt := range tests {
		if got := DetectMimeType(tt.name, tt.data); got != tt.want {
			t.Errorf("DetectMimeType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFromBytes(t *testing.T) {
	data := bytes.Repeat([]byte{1}, 1024)
	d, err := FromBytes("photo.png", data, WithCaption("look"))
	if err != nil {
		t.Fatalf("FromBytes() error: %v", err)
	}
	if d.Category != Image || d.MimeType != "image/png" || d.Size != 1024 || d.Caption != "look" {
		t.Fatalf("descriptor = %+v", d)
	}
	if len(d.SHA256) != 32 || len(d.MediaKey) != MediaKeySize {
		t.Fatalf("hash/key sizes = %d/%d", len(d.SHA256), len(d.MediaKey))
	}

	other, _ := FromBytes("photo.png", data)
	if bytes.Equal(d.MediaKey, other.MediaKey) {
		t.Fatal("media keys must be random per descriptor")
	}
	if !bytes.Equal(d.SHA256, other.SHA256) {
		t.Fatal("same content must hash the same")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		make func() (*Descriptor, error)
		want error
	}{
		{"oversized sticker", func() (*Descriptor, error) {
			return FromBytes("s.webp", make([]byte, 1<<20+1), WithCategory(Sticker))
		}, ErrTooLarge},
		{"sticker must be webp", func() (*Descriptor, error) {
			return FromBytes("s.png", []byte("x"), WithCategory(Sticker))
		}, ErrUnsupportedType},
		{"unlisted document", func() (*Descriptor, error) {
			return FromBytes("setup.exe", []byte("MZ"), WithMimeType("application/x-msdownload"))
		}, ErrUnsupportedType},
		{"empty", func() (*Descriptor, error) {
			return FromBytes("a.png", nil)
		}, ErrEmpty},
		{"unknown category", func() (*Descriptor, error) {
			return FromBytes("a.png", []byte("x"), WithCategory("hologram"))
		}, ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.make()
			if d != nil {
				t.Fatalf("got descriptor %+v, want error", d)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var me *MediaError
			if !errors.As(err, &me) {
				t.Fatalf("error %T is not *MediaError", err)
			}
		})
	}

	if d, err := FromBytes("s.webp", make([]byte, 1<<20), WithCategory(Sticker)); err != nil || d.Category != Sticker {
		t.Fatalf("sticker at the limit = %v, %v", d, err)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error: %v", err)
	}
	if d.Category != Document || d.FileName != "doc.pdf" || d.MimeType != "application/pdf" {
		t.Fatalf("descriptor = %+v", d)
	}

	if _, err := FromFile(filepath.Join(dir, "missing.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("FromFile(missing) error = %v", err)
	}
	if _, err := FromFile(dir); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("FromFile(dir) error = %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	data := []byte("voice note bytes")
	d, err := FromBytes("v.ogg", data)
	if err != nil {
		t.Fatal(err)
	}
	blob, err := d.Encrypt(data)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if len(d.EncSHA256) != 32 {
		t.Fatal("Encrypt() did not record the encrypted hash")
	}
	got, err := d.Decrypt(blob)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Decrypt() = %q, %v", got, err)
	}

	blob[len(blob)-1] ^= 1
	if _, err := d.Decrypt(blob); !errors.Is(err, signal.ErrDecrypt) {
		t.Fatalf("Decrypt(tampered) error = %v, want ErrDecrypt", err)
	}
}

func TestDescriptorNodeRoundTrip(t *testing.T) {
	d, err := FromBytes("photo.jpg", []byte("jpegdata"), WithCaption("sunset"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Encrypt([]byte("jpegdata")); err != nil {
		t.Fatal(err)
	}
	d.URL = "https://mmg.example/abc"

	data, err := protocol.Encode(d.Node())
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	n, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	got, err := DescriptorFromNode(n)
	if err != nil {
		t.Fatalf("DescriptorFromNode() error: %v", err)
	}
	if got.Category != d.Category || got.MimeType != d.MimeType || got.Size != d.Size ||
		got.FileName != d.FileName || got.URL != d.URL || got.Caption != d.Caption {
		t.Fatalf("round trip = %+v, want %+v", got, d)
	}
	if !bytes.Equal(got.SHA256, d.SHA256) || !bytes.Equal(got.EncSHA256, d.EncSHA256) || !bytes.Equal(got.MediaKey, d.MediaKey) {
		t.Fatal("hashes or media key changed in round trip")
	}

	if _, err := DescriptorFromNode(protocol.NewNode("message")); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("DescriptorFromNode(wrong tag) error = %v", err)
	}
	bad := d.Node().Attr("size", "lots")
	if _, err := DescriptorFromNode(bad); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("DescriptorFromNode(bad size) error = %v", err)
	}
}
