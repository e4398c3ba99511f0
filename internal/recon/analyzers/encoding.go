package analyzers

import (
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
)

var utf16le = xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)

// binaryViews returns the printable renderings of a binary blob: the bytes
// read as single-byte text and the bytes read as UTF-16LE, which is how OLE
// streams and DEVMODE records store strings.
func binaryViews(data []byte) []string {
	views := []string{printable(string(data))}
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	if decoded, err := utf16le.NewDecoder().Bytes(data); err == nil {
		views = append(views, printable(string(decoded)))
	}
	// Shifted by one byte for strings that start at odd offsets.
	if len(data) > 2 {
		if decoded, err := utf16le.NewDecoder().Bytes(data[1 : len(data)-1]); err == nil {
			views = append(views, printable(string(decoded)))
		}
	}
	return views
}

// printable replaces non-printable runes with newlines so regexps do not
// match across binary noise.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || (!unicode.IsPrint(r) && r != ' ') {
			return '\n'
		}
		if r > unicode.MaxLatin1 && !unicode.IsLetter(r) {
			return '\n'
		}
		return r
	}, s)
}

// utf16String decodes a NUL-terminated UTF-16LE string.
func utf16String(data []byte) string {
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	decoded, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	s := string(decoded)
	if i := strings.IndexRune(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
