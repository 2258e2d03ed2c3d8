package table

import (
	"strconv"
	"strings"

	"github.com/vk/madxbind/internal/marshal"
	"github.com/vk/madxbind/internal/native"
)

// HeaderValue is one header entry: a number for %le entries, text
// otherwise.
type HeaderValue struct {
	Number   float64
	Text     string
	IsNumber bool
}

// Float returns a numeric header value.
func Float(v float64) HeaderValue { return HeaderValue{Number: v, IsNumber: true} }

// Text returns a textual header value.
func Text(s string) HeaderValue { return HeaderValue{Text: s} }

// Any returns the value as float64 or string.
func (h HeaderValue) Any() any {
	if h.IsNumber {
		return h.Number
	}
	return h.Text
}

func (h HeaderValue) String() string {
	if h.IsNumber {
		return strconv.FormatFloat(h.Number, 'g', -1, 64)
	}
	return h.Text
}

// ParseHeaderLine parses a raw header line of the form
//
//	"* KEY FORMAT VALUE"
//
// The first field is ignored. ok is false for lines with fewer than four
// fields.
func ParseHeaderLine(line string) (key string, value HeaderValue, ok bool) {
	fields, raw, ok := splitHeader(line)
	if !ok {
		return "", HeaderValue{}, false
	}
	key, format := fields[1], fields[2]

	switch {
	case format == "%le":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return key, Float(f), true
		}
		// Some writers pad the value with a unit or a second token.
		tokens := strings.Fields(raw)
		if f, err := strconv.ParseFloat(tokens[len(tokens)-1], 64); err == nil {
			return key, Float(f), true
		}
		return key, Text(raw), true
	case strings.HasSuffix(format, "s"):
		return key, Text(unquote(raw)), true
	default:
		return key, Text(raw), true
	}
}

// splitHeader returns the first three whitespace-separated fields and the
// remainder of the line as the raw value.
func splitHeader(line string) ([3]string, string, bool) {
	var fields [3]string
	rest := strings.TrimSpace(line)
	for i := range fields {
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			return fields, "", false
		}
		fields[i] = rest[:end]
		rest = strings.TrimSpace(rest[end:])
	}
	if rest == "" {
		return fields, "", false
	}
	return fields, rest, true
}

func unquote(s string) string {
	if len(s) >= 2 && isQuote(s[0]) && isQuote(s[len(s)-1]) {
		return s[1 : len(s)-1]
	}
	return s
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }

// Summary parses every header line of t into a key to value mapping.
// Malformed lines are skipped; for a repeated key the last line wins.
func Summary(t *native.Table) map[string]HeaderValue {
	out := make(map[string]HeaderValue)
	if t.Header == nil {
		return out
	}
	for _, c := range t.Header.P {
		line, ok := marshal.Decode(c)
		if !ok {
			continue
		}
		if key, v, ok := ParseHeaderLine(line); ok {
			out[key] = v
		}
	}
	return out
}
