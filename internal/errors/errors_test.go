package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/media"
	"github.com/waweb-dev/waweb/pkg/signal"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "W101",
			wantMsg: "Invalid configuration",
			wantCat: CategoryConfig,
		},
		{
			name:    "connection error",
			code:    "W201",
			wantMsg: "WebSocket connection failed",
			wantCat: CategoryConnection,
		},
		{
			name:    "auth error",
			code:    "W301",
			wantMsg: "Session expired",
			wantCat: CategoryAuth,
		},
		{
			name:    "unknown error code",
			code:    "W999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "unknown backend %q", "redis")
	if err.Message != `unknown backend "redis"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" || err.Error() != err.Message {
		t.Errorf("Error() = %q, want message only", err.Error())
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: %w", client.ErrNotConnected)
	err := New("W201").Wrap(cause)

	if !stderrors.Is(err, client.ErrNotConnected) {
		t.Fatal("errors.Is through WAError failed")
	}
	want := "W201: WebSocket connection failed: dial tcp: client: not connected"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if FromError(err, "W200") != err {
		t.Fatal("FromError rewrapped an existing WAError")
	}
	if FromError(nil, "W200") != nil {
		t.Fatal("FromError(nil) != nil")
	}
	if got := FromError(stderrors.New("x"), "W600"); got.Code != "W600" {
		t.Fatalf("FromError code = %q", got.Code)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"handshake timeout", &client.ConnectionError{Op: "handshake", Err: client.ErrHandshakeTimeout}, "W202"},
		{"dial failure", &client.ConnectionError{Op: "dial", Err: stderrors.New("refused")}, "W201"},
		{"expired", &client.AuthenticationError{Op: "handshake", Err: client.ErrSessionExpired}, "W301"},
		{"send unauthenticated", &client.MessageError{Op: "send text", Err: client.ErrNotAuthenticated}, "W302"},
		{"bad phone", &client.AuthenticationError{Op: "pair", Err: client.ErrInvalidPhone}, "W303"},
		{"rejected", &client.MessageError{Op: "send", MsgID: "X", Err: client.ErrMessageRejected}, "W402"},
		{"too large", &media.MediaError{Op: "validate", Err: media.ErrTooLarge}, "W451"},
		{"decrypt", fmt.Errorf("open: %w", signal.ErrDecrypt), "W502"},
		{"unknown", stderrors.New("boom"), "W400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "W400")
			if got.Code != tt.want {
				t.Fatalf("Classify() code = %q, want %q", got.Code, tt.want)
			}
			if !stderrors.Is(got, tt.err) {
				t.Fatal("classified error lost its cause")
			}
		})
	}
	if Classify(nil, "W400") != nil {
		t.Fatal("Classify(nil) != nil")
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Error("ExitCode(nil) != 0")
	}
	if ExitCode(New("W101")) != 2 {
		t.Error("config errors should exit 2")
	}
	if ExitCode(fmt.Errorf("run: %w", New("W750"))) != 2 {
		t.Error("wrapped CLI errors should exit 2")
	}
	if ExitCode(New("W201")) != 1 {
		t.Error("connection errors should exit 1")
	}
	if ExitCode(stderrors.New("plain")) != 1 {
		t.Error("plain errors should exit 1")
	}
}

func TestRegistryIsConsistent(t *testing.T) {
	codes := Codes()
	if len(codes) == 0 {
		t.Fatal("empty registry")
	}
	for i, code := range codes {
		if i > 0 && codes[i-1] >= code {
			t.Fatalf("Codes() not sorted at %q", code)
		}
		tmpl, ok := Lookup(code)
		if !ok {
			t.Fatalf("Lookup(%q) missing", code)
		}
		if tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("%s: incomplete template %+v", code, tmpl)
		}
		if !strings.HasSuffix(tmpl.DocURL, code) {
			t.Errorf("%s: DocURL %q does not point at the code", code, tmpl.DocURL)
		}
	}
	for _, c := range classification {
		if _, ok := Lookup(c.code); !ok {
			t.Errorf("classification uses unregistered code %s", c.code)
		}
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("W301").Wrap(client.ErrSessionExpired)
	out := err.Format()
	for _, want := range []string{
		"ERROR W301: Session expired",
		"client: session expired",
		"The server rejected the stored tokens.",
		"Hint: Run 'waweb connect' again",
		"Learn more: https://waweb.dev/docs/errors/W301",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() emitted colors while disabled")
	}
	if err.FormatCompact() != err.Error() {
		t.Error("FormatCompact() differs from Error()")
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("W402").Wrap(stderrors.New(`ack "error" 479`))
	var got map[string]string
	if e := jsoniter.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("FormatJSON() is not JSON: %v", e)
	}
	if got["code"] != "W402" || got["category"] != "message" || got["cause"] != `ack "error" 479` {
		t.Fatalf("FormatJSON() = %v", got)
	}
	if _, ok := got["suggestion"]; ok {
		t.Fatal("empty suggestion should be omitted")
	}
}

func TestWrapText(t *testing.T) {
	if wrapText("", 10) != nil {
		t.Error("wrapText(empty) != nil")
	}
	lines := wrapText("the quick brown fox jumps over the lazy dog", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q longer than 10", l)
		}
	}
	if strings.Join(lines, " ") != "the quick brown fox jumps over the lazy dog" {
		t.Errorf("wrapText lost words: %q", lines)
	}
}

func TestPrintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	PrintError(&buf, fmt.Errorf("connect: %w", New("W204")))
	if !strings.Contains(buf.String(), "ERROR W204: Reconnect attempts exhausted") {
		t.Fatalf("PrintError(WAError) = %q", buf.String())
	}

	buf.Reset()
	PrintError(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Fatalf("PrintError(plain) = %q", buf.String())
	}
}
