package llm

// extractJSONValue scans s and returns the first complete top-level JSON
// value (object or array). Models sometimes wrap structured output in
// prose or fences; the scanner tracks quoted strings and escapes so
// structural characters inside string values are ignored.
func extractJSONValue(s string) (string, bool) {
	inString := false
	escaped := false
	start := -1
	var stack []byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			if len(stack) == 0 {
				start = i
			}
			if ch == '{' {
				stack = append(stack, '}')
			} else {
				stack = append(stack, ']')
			}
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			expected := stack[len(stack)-1]
			if ch != expected {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 && start >= 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
