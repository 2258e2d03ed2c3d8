// Package marshal converts between host strings and the engine's low-level
// NUL-terminated strings. Text is UTF-8 in both directions.
package marshal

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/vk/madxbind/internal/native"
)

// Encode returns s as a NUL-terminated engine string. The empty string
// encodes to a lone NUL, never to a NULL pointer.
func Encode(s string) native.CString {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// EncodeOpt encodes an optional host string. An absent value encodes to the
// engine's empty string.
func EncodeOpt(s *string) native.CString {
	if s == nil {
		return Encode("")
	}
	return Encode(*s)
}

// Identifier encodes a name the way the engine stores names: trimmed and
// lower-cased.
func Identifier(name string) native.CString {
	return Encode(strings.ToLower(strings.TrimSpace(name)))
}

// Decode returns the text of c up to its first NUL. A NULL string decodes to
// ("", false) so callers can tell it apart from an empty one.
func Decode(c native.CString) (string, bool) {
	if c == nil {
		return "", false
	}
	if i := bytes.IndexByte(c, 0); i >= 0 {
		c = c[:i]
	}
	return string(c), true
}

// DecodePtr is Decode returning nil for a NULL string.
func DecodePtr(c native.CString) *string {
	s, ok := Decode(c)
	if !ok {
		return nil
	}
	return &s
}

// String decodes c, mapping NULL to the empty string. Use it only where the
// engine guarantees a non-NULL value, such as record names.
func String(c native.CString) string {
	s, _ := Decode(c)
	return s
}

// Fold lower-cases command text outside of quoted strings. Quoted strings
// keep their case so file names and titles survive.
func Fold(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	var quote rune
	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		default:
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
