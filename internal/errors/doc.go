// Package errors provides structured, actionable error messages for the
// waweb command.
//
// Library packages return plain sentinels and typed errors. At the command
// boundary Classify maps them onto registered codes so the user sees a
// stable identifier, an explanation and a hint:
//
//	ERROR W301: Session expired
//
//	  client: session expired
//
//	  The server rejected the stored tokens.
//
//	  Hint: Run 'waweb connect' again and scan the new QR code
//
//	  Learn more: https://waweb.dev/docs/errors/W301
//
// # Error Codes
//
//   - W1xx: configuration
//   - W2xx: connection
//   - W3xx: authentication and pairing
//   - W4xx: messages and media
//   - W5xx: encryption
//   - W6xx: key and session storage
//   - W7xx: protocol and command usage
package errors
