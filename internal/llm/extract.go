package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONValue returns the first balanced JSON object or array embedded
// in free text. Model output routinely wraps JSON in markdown fences or
// surrounds it with prose; a balanced scan sidesteps any particular fencing
// convention. Trailing commas, another common model artifact, are stripped
// before the value is returned. The result is not guaranteed to unmarshal;
// callers still treat parse failure as a per-call error.
func ExtractJSONValue(text string) (json.RawMessage, error) {
	start := -1
	var open, closing byte
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			start, open, closing = i, '{', '}'
		case '[':
			start, open, closing = i, '[', ']'
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("no JSON value found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return json.RawMessage(stripTrailingCommas(text[start : i+1])), nil
			}
		}
	}

	return nil, fmt.Errorf("unbalanced JSON value in response (truncated output?)")
}

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket, respecting string values.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString := false
	escaped := false
	pendingComma := false
	pendingWS := ""

	flush := func(withComma bool) {
		if pendingComma && withComma {
			b.WriteByte(',')
		}
		b.WriteString(pendingWS)
		pendingComma = false
		pendingWS = ""
	}

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case ',':
			flush(true)
			pendingComma = true
		case ' ', '\t', '\n', '\r':
			if pendingComma {
				pendingWS += string(ch)
			} else {
				b.WriteByte(ch)
			}
		case '}', ']':
			flush(false) // drop the comma, keep the whitespace
			b.WriteByte(ch)
		case '"':
			flush(true)
			inString = true
			b.WriteByte(ch)
		default:
			flush(true)
			b.WriteByte(ch)
		}
	}
	flush(true)

	return b.String()
}
