package protocol

// Wire markers. Bytes 1..231 are single-byte dictionary tokens.
const (
	ListEmpty byte = 0

	Text8  byte = 232
	Text20 byte = 233
	Text32 byte = 234
	// 235 is reserved.

	Dictionary0 byte = 236
	Dictionary1 byte = 237
	Dictionary2 byte = 238
	Dictionary3 byte = 239
	// 240..247 are reserved.

	List8    byte = 248
	List16   byte = 249
	JIDPair  byte = 250
	Hex8     byte = 251
	Binary8  byte = 252
	Binary20 byte = 253
	Binary32 byte = 254
	Nibble8  byte = 255
)

const (
	// MaxSingleByteToken is the highest byte value that is a token.
	MaxSingleByteToken = 231

	// DictionaryPageSize is the number of entries addressable in one extended page.
	DictionaryPageSize = 256

	// DictionaryPages is the number of page-selector markers.
	DictionaryPages = 4
)

// TokenRef locates a string in the dictionary.
type TokenRef struct {
	// Double is true for extended-page tokens.
	Double bool
	Page   byte
	Index  byte
}

// ExtendedIndex returns the flat index of an extended-page token
// (page*256 + index). It is meaningless for single-byte tokens.
func (r TokenRef) ExtendedIndex() int {
	return int(r.Page)*DictionaryPageSize + int(r.Index)
}

var tokenIndex = buildTokenIndex()

func buildTokenIndex() map[string]TokenRef {
	idx := make(map[string]TokenRef, len(singleByteTokens)+DictionaryPageSize*len(doubleByteTokens))
	for i, tok := range singleByteTokens {
		if i == 0 {
			continue
		}
		idx[tok] = TokenRef{Index: byte(i)}
	}
	for page, entries := range doubleByteTokens {
		for i, tok := range entries {
			if _, dup := idx[tok]; dup {
				continue
			}
			idx[tok] = TokenRef{Double: true, Page: byte(page), Index: byte(i)}
		}
	}
	return idx
}

// SingleByteToken returns the token for a single-byte value.
func SingleByteToken(b byte) (string, bool) {
	if b == 0 || int(b) >= len(singleByteTokens) {
		return "", false
	}
	return singleByteTokens[b], true
}

// DoubleByteToken returns the token at index within an extended page.
func DoubleByteToken(page, index byte) (string, bool) {
	if int(page) >= len(doubleByteTokens) {
		return "", false
	}
	entries := doubleByteTokens[page]
	if int(index) >= len(entries) {
		return "", false
	}
	return entries[index], true
}

// ExtendedToken returns the extended-page token at a flat index.
func ExtendedToken(i int) (string, bool) {
	if i < 0 || i >= DictionaryPageSize*DictionaryPages {
		return "", false
	}
	return DoubleByteToken(byte(i/DictionaryPageSize), byte(i%DictionaryPageSize))
}

// IndexOfToken looks up s in the dictionary.
func IndexOfToken(s string) (TokenRef, bool) {
	ref, ok := tokenIndex[s]
	return ref, ok
}

// TokenCount returns the total number of dictionary entries.
func TokenCount() int {
	n := len(singleByteTokens) - 1
	for _, entries := range doubleByteTokens {
		n += len(entries)
	}
	return n
}
