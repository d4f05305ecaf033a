package client

import "time"

// ConnectionState is the state of the connection state machine.
type ConnectionState int

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateDisconnecting
	StateReconnecting
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateAuthenticating: "authenticating",
	StateAuthenticated:  "authenticated",
	StateDisconnecting:  "disconnecting",
	StateReconnecting:   "reconnecting",
}

// String returns the state name.
func (s ConnectionState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// IsOpen reports whether a transport is up in state s.
func (s ConnectionState) IsOpen() bool {
	return s == StateConnected || s == StateAuthenticating || s == StateAuthenticated
}

// DisconnectReason says why a connection ended.
type DisconnectReason string

// Disconnect reasons.
const (
	ReasonNormal             DisconnectReason = "normal"
	ReasonLogout             DisconnectReason = "logout"
	ReasonConnectionClosed   DisconnectReason = "connection closed"
	ReasonConnectionLost     DisconnectReason = "connection lost"
	ReasonConnectionReplaced DisconnectReason = "connection replaced"
	ReasonSessionExpired     DisconnectReason = "session expired"
)

// Reconnects reports whether an unexpected close for this reason should be
// retried.
func (r DisconnectReason) Reconnects() bool {
	return r == ReasonConnectionClosed || r == ReasonConnectionLost
}

// Connection is a point-in-time view of the connection.
type Connection struct {
	State            ConnectionState
	ClientID         string
	ClientToken      string
	ServerToken      string
	Wid              string
	LastTraffic      time.Time
	ReconnectAttempt int
	Pending          int
}

// Authenticated reports whether the snapshot was taken while authenticated.
func (c Connection) Authenticated() bool {
	return c.State == StateAuthenticated
}
