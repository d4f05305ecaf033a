package protocol

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fastjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handshake defaults.
const (
	ConnectTypeWiFiUnknown    = "WIFI_UNKNOWN"
	ConnectReasonUserActivate = "USER_ACTIVATED"
)

// Admin status codes.
const (
	StatusOK           = 200
	StatusUnauthorized = 401
	StatusForbidden    = 403 // stored tokens rejected
	StatusConflict     = 409 // another client took over the session
)

// StatusTagPrefix prefixes the tags of server status pushes ("s1", "s2", ...).
const StatusTagPrefix = "s"

// LogoutTag carries the logout admin command.
const LogoutTag = "goodbye"

// LogoutPayload asks the server to drop the device session.
var LogoutPayload = []byte(`["admin","Conn","disconnect"]`)

// IsStatusTag reports whether tag carries admin status: the init tag or
// "s" followed by digits.
func IsStatusTag(tag string) bool {
	if tag == AdminTag {
		return true
	}
	if len(tag) < 2 || tag[0] != StatusTagPrefix[0] {
		return false
	}
	for i := 1; i < len(tag); i++ {
		if tag[i] < '0' || tag[i] > '9' {
			return false
		}
	}
	return true
}

// InitRequest is the first admin message sent after the transport opens.
type InitRequest struct {
	ClientID       string `json:"clientId"`
	ConnectType    string `json:"connectType"`
	ConnectReason  string `json:"connectReason"`
	UserAgent      string `json:"userAgent"`
	WebVersion     string `json:"webVersion"`
	BrowserName    string `json:"browserName"`
	BrowserVersion string `json:"browserVersion"`
	ClientToken    string `json:"clientToken,omitempty"`
	ServerToken    string `json:"serverToken,omitempty"`
}

// StatusResponse is the server's reply to init and later status updates.
type StatusResponse struct {
	Status      int               `json:"status"`
	Ref         string            `json:"ref,omitempty"`
	TTL         int               `json:"ttl,omitempty"`
	ClientToken string            `json:"clientToken,omitempty"`
	ServerToken string            `json:"serverToken,omitempty"`
	Wid         string            `json:"wid,omitempty"`
	PushName    string            `json:"pushname,omitempty"`
	Platform    string            `json:"platform,omitempty"`
	Device      map[string]string `json:"device,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// PairingRequest asks the server to issue a code for phone-number pairing.
type PairingRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Method      string `json:"method"`
}

// PairingVerify submits the code shown on the phone.
type PairingVerify struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
	Ref         string `json:"ref,omitempty"`
	Method      string `json:"method"`
}

// PairingResponse answers PairingRequest and PairingVerify.
type PairingResponse struct {
	Status  int    `json:"status"`
	Ref     string `json:"ref,omitempty"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Pairing methods.
const (
	PairingMethodRequest = "request_code"
	PairingMethodVerify  = "verify_code"
)

// MarshalAdmin encodes an admin payload.
func MarshalAdmin(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, newProtocolError("encode", 0, err)
	}
	return b, nil
}

// UnmarshalAdmin decodes an admin payload.
func UnmarshalAdmin(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return newProtocolError("decode", 0, err)
	}
	return nil
}

// PeekStatus reads the top-level "status" field without a full decode.
// ok is false when the payload is not a JSON object with a numeric status.
func PeekStatus(payload []byte) (status int, ok bool) {
	if fastjson.ValidateBytes(payload) != nil {
		return 0, false
	}
	if !fastjson.Exists(payload, "status") {
		return 0, false
	}
	return fastjson.GetInt(payload, "status"), true
}
