package template

import "strings"

const upperHex = "0123456789ABCDEF"

// EscapeXML replaces the markup-significant characters &, <, > and ".
func EscapeXML(s string) string {
	if !strings.ContainsAny(s, `&<>"`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeJS backslash-escapes quotes, backslashes and control characters
// for use inside a JavaScript string literal.
func EscapeJS(s string) string {
	if !strings.ContainsAny(s, "\b\t\n\v\f\r\"'\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\v':
			b.WriteString(`\v`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		case '"', '\'', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// EscapeURL percent-encodes every byte outside the RFC 3986 unreserved set.
func EscapeURL(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !isUnreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	buf := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperHex[c>>4], upperHex[c&15])
	}
	return string(buf)
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

// unescapeEntities decodes the four entities accepted in attribute values
// and substitution expressions: &quot; &lt; &gt; &amp;. Anything else,
// including numeric references, is left as is.
func unescapeEntities(s string) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' {
			rest := s[i:]
			switch {
			case strings.HasPrefix(rest, "&quot;"):
				b.WriteByte('"')
				i += 6
				continue
			case strings.HasPrefix(rest, "&lt;"):
				b.WriteByte('<')
				i += 4
				continue
			case strings.HasPrefix(rest, "&gt;"):
				b.WriteByte('>')
				i += 4
				continue
			case strings.HasPrefix(rest, "&amp;"):
				b.WriteByte('&')
				i += 5
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
