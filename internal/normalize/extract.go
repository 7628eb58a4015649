package normalize

import (
	"encoding/json"
	"strings"
)

// extractObject returns the only top-level JSON object embedded in raw.
// Brace spans that are not valid JSON (prose like "{calm}", a stray "{") are skipped.
func extractObject(raw string) (string, error) {
	var (
		found        string
		count        int
		unterminated bool
		invalid      string
	)

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}

		end := matchBrace(raw, i)
		if end < 0 {
			unterminated = true
			continue
		}

		candidate := raw[i : end+1]
		if !json.Valid([]byte(candidate)) {
			if invalid == "" {
				invalid = candidate
			}
			continue // 여는 괄호 다음부터 다시 탐색
		}

		count++
		if count > 1 {
			return "", parseErrorf("output contains more than one JSON object")
		}
		found = candidate
		i = end
	}

	if count == 0 {
		switch {
		case strings.TrimSpace(raw) == "":
			return "", parseErrorf("empty output")
		case invalid != "":
			var v interface{}
			return "", parseErrorf("malformed JSON: %v", json.Unmarshal([]byte(invalid), &v))
		case unterminated:
			return "", parseErrorf("unterminated JSON object")
		}
		return "", parseErrorf("no JSON object in output")
	}
	return found, nil
}

// matchBrace returns the index of the brace closing raw[start], or -1.
// Braces inside JSON strings do not count.
func matchBrace(raw string, start int) int {
	var (
		depth    int
		inString bool
		escaped  bool
	)

	for i := start; i < len(raw); i++ {
		c := raw[i]

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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
