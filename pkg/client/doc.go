// Package client maintains a session with the chat web transport: it dials
// the websocket, runs the login handshake, correlates tagged requests with
// their replies and keeps the link alive.
//
// # Lifecycle
//
//	c, err := client.New(cfg, client.WithLogger(logger))
//	c.OnEvent(func(ev client.Event) { ... })
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close()
//
// Connect returns after the server answered the init message. A fresh
// device receives a QRCode event whose Ref is rendered for the phone to
// scan; a restored device (Config.Credentials) moves straight to
// Authenticated. Phone-number pairing via RequestPairingCode and
// VerifyPairingCode is an alternative to the QR code.
//
// # States
//
//	Disconnected -> Connecting -> Connected -> Authenticating -> Authenticated
//	                    ^                                              |
//	                    +------------ Reconnecting <-------------------+
//
// Unexpected closes of an established link schedule a reconnect with
// exponential backoff (see Backoff). Disconnect, Logout, a replaced
// connection and an expired session never reconnect.
//
// # Goroutines
//
// Each link runs a reader and, once authenticated, a keep-alive loop. Event
// handlers run on a separate dispatcher goroutine so a slow handler never
// stalls the reader; when the event queue is full new events are dropped
// and logged.
//
// # Encryption
//
// With WithCipher, messages to peers that have an established session are
// sealed into an "enc" child and inbound "enc" children are opened before
// the Message event is emitted. *signal.Manager is the usual Cipher.
package client
