package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
	DocURL     string
}

const docBase = "https://waweb.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (W100-W199)
	// ============================================

	"W101": {
		Category:   CategoryConfig,
		Message:    "Invalid configuration",
		Detail:     "A configuration value is out of range or malformed.",
		Suggestion: "Check waweb.yaml, WAWEB_* environment variables and command flags",
		DocURL:     docBase + "W101",
	},
	"W102": {
		Category:   CategoryConfig,
		Message:    "Configuration file unreadable",
		Detail:     "The configuration file exists but could not be parsed.",
		Suggestion: "Validate the YAML syntax of the file passed with --config",
		DocURL:     docBase + "W102",
	},
	"W103": {
		Category: CategoryConfig,
		Message:  "Unknown store backend",
		Detail:   "store.backend must be one of memory, file, sqlite or s3.",
		DocURL:   docBase + "W103",
	},

	// ============================================
	// Connection Errors (W200-W299)
	// ============================================

	"W200": {
		Category: CategoryConnection,
		Message:  "Connection failed",
		Detail:   "The client could not complete the connection.",
		DocURL:   docBase + "W200",
	},
	"W201": {
		Category:   CategoryConnection,
		Message:    "WebSocket connection failed",
		Detail:     "Unable to open the websocket to the server.",
		Suggestion: "Check network access, the endpoint URL and any proxy settings",
		DocURL:     docBase + "W201",
	},
	"W202": {
		Category: CategoryConnection,
		Message:  "Handshake timed out",
		Detail:   "The server accepted the websocket but never answered the init message.",
		DocURL:   docBase + "W202",
	},
	"W203": {
		Category: CategoryConnection,
		Message:  "Keep-alive timeout",
		Detail:   "No traffic was seen for twice the keep-alive interval.",
		DocURL:   docBase + "W203",
	},
	"W204": {
		Category:   CategoryConnection,
		Message:    "Reconnect attempts exhausted",
		Detail:     "Every reconnect attempt allowed by the backoff policy failed.",
		Suggestion: "Raise backoff.max_attempts or check connectivity",
		DocURL:     docBase + "W204",
	},
	"W205": {
		Category:   CategoryConnection,
		Message:    "Connection replaced",
		Detail:     "Another client opened a session with the same credentials.",
		Suggestion: "Close the other session before connecting again",
		DocURL:     docBase + "W205",
	},
	"W206": {
		Category: CategoryConnection,
		Message:  "Request timed out",
		Detail:   "The server did not answer a tagged request in time.",
		DocURL:   docBase + "W206",
	},
	"W207": {
		Category: CategoryConnection,
		Message:  "Not connected",
		Detail:   "The operation needs an open connection.",
		DocURL:   docBase + "W207",
	},

	// ============================================
	// Authentication Errors (W300-W399)
	// ============================================

	"W301": {
		Category:   CategoryAuth,
		Message:    "Session expired",
		Detail:     "The server rejected the stored tokens.",
		Suggestion: "Run 'waweb connect' again and scan the new QR code",
		DocURL:     docBase + "W301",
	},
	"W302": {
		Category:   CategoryAuth,
		Message:    "Not authenticated",
		Detail:     "The device has not been linked yet.",
		Suggestion: "Run 'waweb connect' or 'waweb pair' first",
		DocURL:     docBase + "W302",
	},
	"W303": {
		Category:   CategoryAuth,
		Message:    "Invalid phone number",
		Detail:     "Phone numbers must be in E.164 form: a plus sign followed by 2 to 15 digits.",
		Suggestion: "Use the international form, e.g. +40712345678",
		DocURL:     docBase + "W303",
	},
	"W304": {
		Category: CategoryAuth,
		Message:  "Invalid pairing code",
		Detail:   "Pairing codes are exactly six digits.",
		DocURL:   docBase + "W304",
	},
	"W305": {
		Category: CategoryAuth,
		Message:  "No pairing request",
		Detail:   "A code can only be verified after a pairing code was requested on this connection.",
		DocURL:   docBase + "W305",
	},
	"W306": {
		Category: CategoryAuth,
		Message:  "Pairing rejected",
		Detail:   "The server refused the pairing request.",
		DocURL:   docBase + "W306",
	},

	// ============================================
	// Message Errors (W400-W499)
	// ============================================

	"W400": {
		Category: CategoryMessage,
		Message:  "Message not sent",
		DocURL:   docBase + "W400",
	},
	"W401": {
		Category:   CategoryMessage,
		Message:    "Invalid recipient",
		Detail:     "The recipient is neither a JID nor a phone number.",
		Suggestion: "Pass user@server or a phone number with country code",
		DocURL:     docBase + "W401",
	},
	"W402": {
		Category: CategoryMessage,
		Message:  "Message rejected",
		Detail:   "The server acknowledged the message with an error.",
		DocURL:   docBase + "W402",
	},
	"W451": {
		Category: CategoryMedia,
		Message:  "Media file too large",
		Detail:   "The file exceeds the size limit of its media category.",
		DocURL:   docBase + "W451",
	},
	"W452": {
		Category: CategoryMedia,
		Message:  "Unsupported media type",
		DocURL:   docBase + "W452",
	},
	"W453": {
		Category: CategoryMedia,
		Message:  "Empty media file",
		DocURL:   docBase + "W453",
	},
	"W454": {
		Category: CategoryMedia,
		Message:  "Invalid media descriptor",
		DocURL:   docBase + "W454",
	},

	// ============================================
	// Crypto Errors (W500-W599)
	// ============================================

	"W501": {
		Category:   CategoryCrypto,
		Message:    "No session with peer",
		Detail:     "Encryption needs an established session.",
		Suggestion: "Establish a session from the peer's prekey bundle first",
		DocURL:     docBase + "W501",
	},
	"W502": {
		Category: CategoryCrypto,
		Message:  "Decryption failed",
		Detail:   "The ciphertext did not authenticate with the session keys.",
		DocURL:   docBase + "W502",
	},
	"W503": {
		Category: CategoryCrypto,
		Message:  "Bad prekey signature",
		Detail:   "The signed prekey in the bundle was not signed by the bundle's identity.",
		DocURL:   docBase + "W503",
	},
	"W504": {
		Category: CategoryCrypto,
		Message:  "Invalid key material",
		DocURL:   docBase + "W504",
	},

	// ============================================
	// Store Errors (W600-W699)
	// ============================================

	"W600": {
		Category: CategoryStore,
		Message:  "Store operation failed",
		DocURL:   docBase + "W600",
	},
	"W601": {
		Category: CategoryStore,
		Message:  "Store closed",
		DocURL:   docBase + "W601",
	},
	"W602": {
		Category: CategoryStore,
		Message:  "Invalid peer id",
		Detail:   "Peer ids become file names and object keys and must not contain path separators.",
		DocURL:   docBase + "W602",
	},

	// ============================================
	// Protocol and CLI Errors (W700-W799)
	// ============================================

	"W701": {
		Category: CategoryProtocol,
		Message:  "Malformed protocol data",
		DocURL:   docBase + "W701",
	},
	"W750": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		DocURL:   docBase + "W750",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
