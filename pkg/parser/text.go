package parser

import "strings"

// Text-level helpers shared by the statement and reference scanners.

// stripComments removes -- line comments and /* */ block comments while
// leaving string literal contents intact.
func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	inLineComment := false
	blockDepth := 0

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
				b.WriteByte(c)
			}
			continue
		}
		if blockDepth > 0 {
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				blockDepth--
				i++
			} else if c == '/' && i+1 < len(text) && text[i+1] == '*' {
				blockDepth++
				i++
			}
			continue
		}
		if inString {
			b.WriteByte(c)
			if c == '\'' {
				// Doubled quote is an escaped quote, not a terminator.
				if i+1 < len(text) && text[i+1] == '\'' {
					b.WriteByte(text[i+1])
					i++
				} else {
					inString = false
				}
			}
			continue
		}

		switch {
		case c == '\'':
			inString = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			inLineComment = true
			i++
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			blockDepth = 1
			i++
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// balancedQuotes reports whether every single-quoted literal terminates.
func balancedQuotes(text string) bool {
	inString := false
	for i := 0; i < len(text); i++ {
		if text[i] != '\'' {
			continue
		}
		if inString && i+1 < len(text) && text[i+1] == '\'' {
			i++
			continue
		}
		inString = !inString
	}
	return !inString
}

// balancedParens reports whether parentheses outside string literals pair up.
func balancedParens(text string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if c == '\'' {
				if i+1 < len(text) && text[i+1] == '\'' {
					i++
				} else {
					inString = false
				}
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// balancedGroup returns the contents of the leading balanced parenthesis
// group of s (which must start with '(').
func balancedGroup(s string) (string, bool) {
	if len(s) == 0 || s[0] != '(' {
		return "", false
	}
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], true
			}
		}
	}
	return "", false
}

// splitTopLevel splits s on sep, ignoring separators nested in parentheses
// or string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	inString := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			current.WriteByte(c)
			if c == '\'' {
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
			current.WriteByte(c)
		case '(':
			depth++
			current.WriteByte(c)
		case ')':
			depth--
			current.WriteByte(c)
		case sep:
			if depth == 0 {
				parts = append(parts, current.String())
				current.Reset()
			} else {
				current.WriteByte(c)
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// splitQualified splits a possibly schema-qualified identifier into
// (schema, name). Quoting and brackets are stripped. A three-part name
// (database.schema.object) keeps only the last two parts.
func splitQualified(raw string) (string, string) {
	name := cleanAssetName(raw)
	if name == "" {
		return "", strings.Trim(strings.TrimSpace(raw), `"[]`)
	}
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		return "", parts[0]
	case 2:
		return parts[0], parts[1]
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

// qualifier returns the schema part of a possibly qualified identifier.
func qualifier(raw string) string {
	schema, _ := splitQualified(raw)
	return schema
}

// findKeyword locates a stand-alone keyword (case-insensitive, word
// boundaries) outside string literals. Returns -1 if absent.
func findKeyword(s, kw string) int {
	upper := strings.ToUpper(s)
	kw = strings.ToUpper(kw)
	inString := false
	for i := 0; i+len(kw) <= len(upper); i++ {
		c := upper[i]
		if inString {
			if c == '\'' {
				inString = false
			}
			continue
		}
		if c == '\'' {
			inString = true
			continue
		}
		if upper[i:i+len(kw)] == kw &&
			(i == 0 || !isWordByte(upper[i-1])) &&
			(i+len(kw) == len(upper) || !isWordByte(upper[i+len(kw)])) {
			return i
		}
	}
	return -1
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
