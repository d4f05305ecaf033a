package protocol

import (
	"errors"
	"testing"
)

func TestTokenTableIsUnique(t *testing.T) {
	seen := make(map[string]string)
	for i, tok := range singleByteTokens {
		if i == 0 {
			continue
		}
		if prev, dup := seen[tok]; dup {
			t.Fatalf("token %q duplicated (single %d, previously %s)", tok, i, prev)
		}
		seen[tok] = "single"
	}
	for page, entries := range doubleByteTokens {
		for i, tok := range entries {
			if prev, dup := seen[tok]; dup {
				t.Fatalf("token %q duplicated (page %d index %d, previously %s)", tok, page, i, prev)
			}
			seen[tok] = "double"
		}
	}
	if len(singleByteTokens) != MaxSingleByteToken+1 {
		t.Fatalf("single-byte plane has %d entries, want %d", len(singleByteTokens), MaxSingleByteToken+1)
	}
}

func TestIndexOfTokenRoundTrip(t *testing.T) {
	for _, tok := range []string{"xmlstreamstart", "s.whatsapp.net", "message", "view_once", "pair-device"} {
		ref, ok := IndexOfToken(tok)
		if !ok {
			t.Fatalf("IndexOfToken(%q) not found", tok)
		}
		var got string
		if ref.Double {
			got, ok = DoubleByteToken(ref.Page, ref.Index)
		} else {
			got, ok = SingleByteToken(ref.Index)
		}
		if !ok || got != tok {
			t.Fatalf("lookup(%+v) = %q, %v; want %q", ref, got, ok, tok)
		}
	}
	if _, ok := IndexOfToken("definitely-not-a-token"); ok {
		t.Fatal("IndexOfToken found an unknown string")
	}
	if _, ok := IndexOfToken(""); ok {
		t.Fatal("empty string must not be a token")
	}
}

func TestDictionaryBoundary(t *testing.T) {
	at255, ok := ExtendedToken(255)
	if !ok || at255 == "" {
		t.Fatalf("ExtendedToken(255) = %q, %v", at255, ok)
	}
	at256, ok := ExtendedToken(256)
	if !ok || at256 == "" {
		t.Fatalf("ExtendedToken(256) = %q, %v", at256, ok)
	}
	if at255 == at256 {
		t.Fatalf("index 255 and 256 resolved to the same token %q", at255)
	}

	ref, _ := IndexOfToken(at255)
	if !ref.Double || ref.Page != 0 || ref.Index != 255 {
		t.Fatalf("token at 255 located at %+v", ref)
	}
	ref, _ = IndexOfToken(at256)
	if !ref.Double || ref.Page != 1 || ref.Index != 0 || ref.ExtendedIndex() != 256 {
		t.Fatalf("token at 256 located at %+v", ref)
	}

	// Both decode through the codec to the right page.
	for _, tc := range []struct {
		data []byte
		want string
	}{
		{[]byte{List8, 1, Dictionary0, 255}, at255},
		{[]byte{List8, 1, Dictionary1, 0}, at256},
	} {
		n, err := Decode(tc.data)
		if err != nil {
			t.Fatalf("Decode(%x) error: %v", tc.data, err)
		}
		if n.Tag != tc.want {
			t.Fatalf("Decode(%x).Tag = %q, want %q", tc.data, n.Tag, tc.want)
		}
	}
}

func TestDictionaryOutOfRange(t *testing.T) {
	last := TokenCount() - MaxSingleByteToken
	if _, ok := ExtendedToken(last); ok {
		t.Fatalf("ExtendedToken(%d) should be out of range", last)
	}
	if _, ok := ExtendedToken(-1); ok {
		t.Fatal("ExtendedToken(-1) should be out of range")
	}

	cases := [][]byte{
		{List8, 1, Dictionary1, byte(len(doubleByteTokens[1]))},
		{List8, 1, Dictionary2, 0},
		{List8, 1, Dictionary3, 7},
	}
	for _, data := range cases {
		n, err := Decode(data)
		if err == nil {
			t.Fatalf("Decode(%x) = %v, want error", data, n)
		}
		if n != nil {
			t.Fatalf("Decode(%x) returned a partial node", data)
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Decode(%x) error = %v, want ErrInvalidToken", data, err)
		}
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("Decode(%x) error is %T, want *ProtocolError", data, err)
		}
	}
}
