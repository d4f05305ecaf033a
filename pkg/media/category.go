package media

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Category is the media kind.
type Category string

// Media categories.
const (
	Image    Category = "image"
	Video    Category = "video"
	Audio    Category = "audio"
	Document Category = "document"
	Sticker  Category = "sticker"
)

// Categories lists every category.
var Categories = []Category{Image, Video, Audio, Document, Sticker}

const mb = 1 << 20

var maxSizes = map[Category]int64{
	Image:    16 * mb,
	Video:    16 * mb,
	Audio:    16 * mb,
	Document: 100 * mb,
	Sticker:  1 * mb,
}

var mimeTypes = map[Category][]string{
	Image: {"image/jpeg", "image/png", "image/gif", "image/webp"},
	Video: {"video/mp4", "video/3gpp", "video/quicktime", "video/x-msvideo"},
	Audio: {"audio/aac", "audio/mp4", "audio/amr", "audio/mpeg", "audio/ogg", "audio/wav"},
	Document: {
		"application/pdf",
		"application/msword",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"text/plain",
		"application/zip",
	},
	Sticker: {"image/webp"},
}

// Extensions whose system mapping varies between platforms.
var extTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".3gp":  "video/3gpp",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".amr":  "audio/amr",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".wav":  "audio/wav",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".xls":  "application/vnd.ms-excel",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := maxSizes[c]
	return ok
}

// MaxSize returns the size limit for c, or 0 for an unknown category.
func (c Category) MaxSize() int64 {
	return maxSizes[c]
}

// MimeTypes returns the MIME types accepted for c.
func (c Category) MimeTypes() []string {
	return append([]string(nil), mimeTypes[c]...)
}

// Accepts reports whether mimeType may be sent as c. Image, video and audio
// accept any subtype of their major type; documents and stickers need an
// exact match.
func (c Category) Accepts(mimeType string) bool {
	mimeType = normalizeMime(mimeType)
	for _, m := range mimeTypes[c] {
		if m == mimeType {
			return true
		}
	}
	switch c {
	case Image, Video, Audio:
		return strings.HasPrefix(mimeType, string(c)+"/")
	}
	return false
}

// CategoryFor infers the category for a MIME type: exact list match first,
// then major type, then document.
func CategoryFor(mimeType string) Category {
	mimeType = normalizeMime(mimeType)
	for _, c := range []Category{Image, Video, Audio, Document} {
		for _, m := range mimeTypes[c] {
			if m == mimeType {
				return c
			}
		}
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return Image
	case strings.HasPrefix(mimeType, "video/"):
		return Video
	case strings.HasPrefix(mimeType, "audio/"):
		return Audio
	}
	return Document
}

// DetectMimeType guesses the MIME type from the file name, falling back to
// content sniffing.
func DetectMimeType(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return normalizeMime(t)
	}
	return normalizeMime(http.DetectContentType(data))
}

func normalizeMime(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(t))
}
