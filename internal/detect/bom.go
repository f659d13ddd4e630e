// Package detect implements the byte-order-mark and delimiter
// sniffing described in spec.md §4.2. It never transcodes; it only
// reports how many leading bytes to skip, and which delimiter byte
// best explains the sample.
package detect

// Encoding kinds returned by Encoding. Unknown means no recognized BOM
// was present; the data is assumed to already be in an 8-bit-clean
// encoding the tokenizer can scan directly.
const (
	Unknown byte = iota
	UTF8
	UTF16BE
	UTF16LE
	UTF32BE
	UTF32LE
)

// Encoding reports which byte-order mark, if any, data starts with and
// how many leading bytes it occupies. It never transcodes.
func Encoding(data []byte) (kind byte, bomLen int) {
	switch {
	case len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0xFE && data[3] == 0xFF:
		return UTF32BE, 4
	case len(data) >= 4 && data[0] == 0xFF && data[1] == 0xFE && data[2] == 0x00 && data[3] == 0x00:
		return UTF32LE, 4
	case len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF:
		return UTF8, 3
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return UTF16BE, 2
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE:
		return UTF16LE, 2
	default:
		return Unknown, 0
	}
}

// StripBOM returns the number of leading bytes that form a recognized
// byte-order mark (UTF-8, UTF-16LE/BE, UTF-32LE/BE), or 0 if none is
// present. The caller is responsible for actually slicing past that
// many bytes; no transcoding is performed.
func StripBOM(data []byte) int {
	_, n := Encoding(data)
	return n
}
