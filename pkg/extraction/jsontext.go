package extraction

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

var errNoJSONObject = errors.New("no JSON object found in response")

// ExtractJSON recovers a JSON object from model output: the whole text, then
// the first fenced code block, then the first balanced {...} span.
func ExtractJSON(text string) (map[string]interface{}, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errNoJSONObject
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out, nil
	}

	if m := fencedJSON.FindStringSubmatch(text); len(m) == 2 {
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil && out != nil {
			return out, nil
		}
	}

	if span := balancedObject(text); span != "" {
		if err := json.Unmarshal([]byte(span), &out); err == nil && out != nil {
			return out, nil
		}
	}

	return nil, errNoJSONObject
}

// balancedObject returns the first brace-balanced object, skipping braces
// inside string literals.
func balancedObject(text string) string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
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
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
