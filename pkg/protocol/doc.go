// Package protocol implements the binary node format and the text framing
// used on the chat transport.
//
// # Nodes
//
// A Node is a tag, an ordered attribute list and optional content (text,
// bytes or child nodes). On the wire a node is a single list:
//
//	[count-marker][tag][key value]*[content]
//
// where count is 1 + 2*len(attrs), plus one when content is present.
//
// # Count markers
//
//   - ListEmpty (0x00): zero elements
//   - List8 (0xF8) + 1 byte count
//   - List16 (0xF9) + 2 byte big-endian count
//
// # Strings
//
// Strings are written in decreasing order of specificity:
//
//   - Dictionary token: one byte (1..231), or a page selector
//     Dictionary0..3 (0xEC..0xEF) followed by an index byte
//   - Digits only: Nibble8 (0xFF), packed two per byte, high bit of the
//     length byte set for odd lengths, padded with 0xF
//   - Upper-case hex: Hex8 (0xFB), same packing
//   - Anything else: Text8/Text20/Text32 (0xE8..0xEA) with an 8, 20 or
//     32 bit length
//
// Binary values use Binary8/Binary20/Binary32 (0xFC..0xFE). JIDs always use
// JIDPair (0xFA) followed by the user and server strings.
//
// # Frames
//
// Every transport message is "<tag>,<payload>". Admin payloads are JSON;
// node payloads are hex text in text frames or raw bytes in binary frames.
//
// # Security
//
// Decoding never reads a length beyond the buffered data, caps single
// allocations and bounds nesting depth (see DecodeLimits). All decode
// failures are *ProtocolError values and never return a partial node.
package protocol
