package madexpr

import (
	"fmt"
	"strings"
)

// mangle rewrites src into HCL syntax. Variable names are replaced by
// placeholders; the returned slice maps placeholder index to name.
func mangle(src string) (string, []string, error) {
	var (
		out   strings.Builder
		names []string
		index = make(map[string]int)
	)

	s := strings.ToLower(src)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			n := scanNumber(s, i)
			lit := strings.ReplaceAll(s[i:n], "d", "e")
			if lit[0] == '.' {
				lit = "0" + lit
			}
			if strings.HasSuffix(lit, ".") {
				lit += "0"
			}
			lit = strings.Replace(lit, ".e", ".0e", 1)
			out.WriteString(lit)
			i = n
		case isLetter(c):
			n := scanName(s, i)
			name := s[i:n]
			i = n
			if peek(s, i) == '(' {
				out.WriteString(name)
				continue
			}
			idx, ok := index[name]
			if !ok {
				idx = len(names)
				index[name] = idx
				names = append(names, name)
			}
			fmt.Fprintf(&out, "v%d", idx)
		case c == '"' || c == '{' || c == '[' || c == '$':
			return "", nil, fmt.Errorf("unexpected %q in expression %q", c, src)
		default:
			out.WriteByte(c)
			i++
		}
	}
	mangled, err := rewritePow(out.String())
	if err != nil {
		return "", nil, fmt.Errorf("expression %q: %w", src, err)
	}
	return mangled, names, nil
}

// rewritePow turns every `a^b` into `pow(a, b)`. The rightmost operator is
// rewritten first, so `a^b^c` becomes `pow(a, pow(b, c))`. Operands are a
// name, a number, a call or a parenthesised group; the right operand may
// carry a sign.
func rewritePow(s string) (string, error) {
	for {
		op := strings.LastIndexByte(s, '^')
		if op < 0 {
			return s, nil
		}
		start, ok := leftOperand(s, op)
		if !ok {
			return "", fmt.Errorf("missing left operand of ^")
		}
		end, ok := rightOperand(s, op+1)
		if !ok {
			return "", fmt.Errorf("missing right operand of ^")
		}
		left := strings.TrimSpace(s[start:op])
		right := strings.TrimSpace(s[op+1 : end])
		s = s[:start] + "pow(" + left + ", " + right + ")" + s[end:]
	}
}

// leftOperand returns where the operand ending before s[op] starts.
func leftOperand(s string, op int) (int, bool) {
	i := op
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	end := i
	if i > 0 && s[i-1] == ')' {
		depth := 0
		for i > 0 {
			i--
			switch s[i] {
			case ')':
				depth++
			case '(':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if depth != 0 {
			return 0, false
		}
	}
	for i > 0 && isNameChar(s[i-1]) {
		i--
	}
	// exponent of a number literal such as 1e-3
	if i >= 3 && (s[i-1] == '-' || s[i-1] == '+') && s[i-2] == 'e' && isDigit(s[i-3]) {
		i -= 2
		for i > 0 && isNameChar(s[i-1]) {
			i--
		}
	}
	return i, i < end
}

// rightOperand returns where the operand starting at s[from] ends.
func rightOperand(s string, from int) (int, bool) {
	i := from
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	begin := i
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	if i > begin && isDigit(s[begin]) && s[i-1] == 'e' && i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
		}
	}
	j := i
	for j < len(s) && s[j] == ' ' {
		j++
	}
	if j < len(s) && s[j] == '(' {
		depth := 0
		for ; j < len(s); j++ {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				return j + 1, true
			}
		}
		return 0, false
	}
	return i, i > begin
}

func scanNumber(s string, i int) int {
	for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
		i++
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'd') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			return j
		}
	}
	return i
}

// scanName reads a name, including dots and one `->attr` suffix.
func scanName(s string, i int) int {
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	if strings.HasPrefix(s[i:], "->") && i+2 < len(s) && isLetter(s[i+2]) {
		i += 2
		for i < len(s) && isNameChar(s[i]) {
			i++
		}
	}
	return i
}

func peek(s string, i int) byte {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i < len(s) {
		return s[i]
	}
	return 0
}

func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isLetter(c byte) bool   { return (c >= 'a' && c <= 'z') || c == '_' }
func isNameChar(c byte) bool { return isLetter(c) || isDigit(c) || c == '.' }
