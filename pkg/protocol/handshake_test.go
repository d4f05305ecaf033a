package protocol

import (
	"strings"
	"testing"
)

func TestInitRequestJSON(t *testing.T) {
	req := &InitRequest{
		ClientID:       "Y2xpZW50",
		ConnectType:    ConnectTypeWiFiUnknown,
		ConnectReason:  ConnectReasonUserActivate,
		UserAgent:      "ua",
		WebVersion:     "2.2402.7",
		BrowserName:    "Chrome",
		BrowserVersion: "110.0.5481.177",
	}
	data, err := MarshalAdmin(req)
	if err != nil {
		t.Fatalf("MarshalAdmin() error: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"clientId":"Y2xpZW50"`, `"connectType":"WIFI_UNKNOWN"`, `"connectReason":"USER_ACTIVATED"`} {
		if !strings.Contains(s, want) {
			t.Errorf("init payload %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "clientToken") || strings.Contains(s, "serverToken") {
		t.Errorf("init payload %s should omit empty tokens", s)
	}

	req.ClientToken, req.ServerToken = "c1", "s1"
	data, _ = MarshalAdmin(req)
	if !strings.Contains(string(data), `"clientToken":"c1"`) || !strings.Contains(string(data), `"serverToken":"s1"`) {
		t.Errorf("init payload %s missing tokens", data)
	}
}

func TestStatusResponse(t *testing.T) {
	var resp StatusResponse
	if err := UnmarshalAdmin([]byte(`{"status":200,"clientToken":"c1","serverToken":"s1","wid":"1@c.us"}`), &resp); err != nil {
		t.Fatalf("UnmarshalAdmin() error: %v", err)
	}
	if resp.Status != StatusOK || resp.ClientToken != "c1" || resp.ServerToken != "s1" || resp.Wid != "1@c.us" {
		t.Fatalf("resp = %+v", resp)
	}
	if err := UnmarshalAdmin([]byte(`{"status":`), &resp); err == nil {
		t.Fatal("UnmarshalAdmin(truncated) should fail")
	}
}

func TestPeekStatus(t *testing.T) {
	tests := []struct {
		in     string
		status int
		ok     bool
	}{
		{`{"status":401,"ref":"abc"}`, 401, true},
		{`{"status":200}`, 200, true},
		{`{"ref":"abc"}`, 0, false},
		{`not json`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		status, ok := PeekStatus([]byte(tt.in))
		if status != tt.status || ok != tt.ok {
			t.Errorf("PeekStatus(%q) = %d, %v; want %d, %v", tt.in, status, ok, tt.status, tt.ok)
		}
	}
}

func TestIsStatusTag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"admin", true},
		{"s1", true},
		{"s42", true},
		{"s", false},
		{"s1a", false},
		{"pong1", false},
		{"1700-1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsStatusTag(tt.tag); got != tt.want {
			t.Errorf("IsStatusTag(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}
