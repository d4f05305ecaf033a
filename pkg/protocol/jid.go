package protocol

import (
	"fmt"
	"strings"
)

// Well-known JID servers.
const (
	DefaultUserServer = "s.whatsapp.net"
	GroupServer       = "g.us"
	BroadcastServer   = "broadcast"
)

// JID is a user@server peer identifier.
type JID struct {
	User   string
	Server string
}

// NewJID returns a JID for user on server.
func NewJID(user, server string) JID {
	return JID{User: user, Server: server}
}

// ParseJID splits s at its last '@'.
func ParseJID(s string) (JID, error) {
	i := strings.LastIndexByte(s, '@')
	if i < 0 {
		return JID{}, fmt.Errorf("protocol: invalid jid %q", s)
	}
	return JID{User: s[:i], Server: s[i+1:]}, nil
}

// UserJID normalises a phone number or JID string into a user JID.
// Anything that is not a digit is dropped from phone numbers.
func UserJID(phoneOrJID string) JID {
	if strings.ContainsRune(phoneOrJID, '@') {
		j, _ := ParseJID(phoneOrJID)
		return j
	}
	var b strings.Builder
	for _, r := range phoneOrJID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return JID{User: b.String(), Server: DefaultUserServer}
}

// String returns the textual user@server form.
func (j JID) String() string {
	return j.User + "@" + j.Server
}

// IsEmpty reports whether both parts are empty.
func (j JID) IsEmpty() bool {
	return j.User == "" && j.Server == ""
}

// IsGroup reports whether j addresses a group.
func (j JID) IsGroup() bool {
	return j.Server == GroupServer
}
