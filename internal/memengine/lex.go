package memengine

import (
	"regexp"
	"strings"
)

// arg is one comma-separated argument of a statement.
type arg struct {
	key   string
	op    string // "=", ":=", "<", ">" or "" for a bare flag
	value string
	neg   bool // `-flag`
	raw   string
}

// statement is one `;`-terminated unit of input.
type statement struct {
	text string

	// Assignments: `target = expr` or `target := expr`.
	assign   bool
	deferred bool
	target   string
	expr     string

	// Commands and definitions: `[label:] keyword, args...`.
	label   string
	keyword string
	args    []arg
}

var assignRegex = regexp.MustCompile(`^(?:(?:real|const|int|shared)\s+)*([a-z_][a-z0-9_.]*(?:->[a-z_][a-z0-9_.]*)?)\s*(:=|=)\s*(.*)$`)

// stripComments removes `!`, `//` and `/* */` comments outside of quotes.
func stripComments(src string) string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
		case c == '!' || (c == '/' && i+1 < len(src) && src[i+1] == '/'):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			sb.WriteByte('\n')
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return sb.String()
			}
			i += end + 3
			sb.WriteByte(' ')
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// splitTop splits s on sep outside of quotes, braces and parentheses.
func splitTop(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '(':
			depth++
		case c == '}' || c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// splitStatements splits input into trimmed, non-empty statements.
func splitStatements(src string) []string {
	var out []string
	for _, s := range splitTop(stripComments(src), ';') {
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseStatement(text string) statement {
	st := statement{text: text}
	if m := assignRegex.FindStringSubmatch(text); m != nil {
		st.assign = true
		st.target = m[1]
		st.deferred = m[2] == ":="
		st.expr = strings.TrimSpace(m[3])
		return st
	}

	parts := splitTop(text, ',')
	head := strings.TrimSpace(parts[0])
	if label, kw, ok := cutLabel(head); ok {
		st.label, st.keyword = label, kw
	} else {
		st.keyword = head
	}
	for _, p := range parts[1:] {
		if a, ok := parseArg(p); ok {
			st.args = append(st.args, a)
		}
	}
	return st
}

// cutLabel splits `label: keyword`.
func cutLabel(head string) (string, string, bool) {
	i := strings.IndexByte(head, ':')
	if i < 0 || strings.HasPrefix(head[i:], ":=") {
		return "", "", false
	}
	return strings.TrimSpace(head[:i]), strings.TrimSpace(head[i+1:]), true
}

func parseArg(p string) (arg, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return arg{}, false
	}
	a := arg{raw: p}

	var quote byte
	depth := 0
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '"' || c == '\'':
			quote = c
			continue
		case c == '{' || c == '(':
			depth++
			continue
		case c == '}' || c == ')':
			depth--
			continue
		}
		if depth > 0 {
			continue
		}
		switch {
		case c == ':' && i+1 < len(p) && p[i+1] == '=':
			a.key, a.op, a.value = strings.TrimSpace(p[:i]), ":=", strings.TrimSpace(p[i+2:])
			return a, true
		case c == '>' && i > 0 && p[i-1] == '-':
			continue
		case c == '=' || c == '<' || c == '>':
			a.key, a.op, a.value = strings.TrimSpace(p[:i]), string(c), strings.TrimSpace(p[i+1:])
			return a, true
		}
	}

	if strings.HasPrefix(p, "-") && isIdent(p[1:]) {
		a.key, a.neg = p[1:], true
		return a, true
	}
	a.key = p
	return a, true
}

var identRegex = regexp.MustCompile(`^[a-z_][a-z0-9_.$]*$`)

func isIdent(s string) bool { return identRegex.MatchString(s) }

// unquote strips one pair of matching quotes.
func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return s, false
}

// braced returns the comma-separated items of `{a, b}`. A value without
// braces is a one-element list.
func braced(s string) []string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return nil
		}
		items := splitTop(inner, ',')
		for i := range items {
			items[i] = strings.TrimSpace(items[i])
		}
		return items
	}
	return []string{s}
}
