package predictor

// ExtractJSON scans free text for the first brace-balanced JSON object and
// returns it. Models occasionally wrap their JSON in prose or markdown
// fences; this recovers the object without a full parse. String literals and
// escapes are honored so braces inside strings do not unbalance the scan.
func ExtractJSON(s string) ([]byte, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), true
			}
		}
	}
	return nil, false
}
