package assessment

import "strings"

// extractObjectSpan returns the first balanced {...} span in text.
// Braces inside JSON string literals do not count toward balance.
func extractObjectSpan(text string) (string, bool) {
	offset := 0
	for {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			return "", false
		}
		start := offset + idx
		if end, ok := matchObject(text, start); ok {
			return text[start : end+1], true
		}
		offset = start + 1
	}
}

// matchObject scans from the opening brace at start and returns the index
// of its matching closing brace.
func matchObject(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
