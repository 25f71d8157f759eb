package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// String renders scalar JSON values as trimmed text. Maps, lists and nil
// yield "".
func String(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}

func Map(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func List(v interface{}) []interface{} {
	if l, ok := v.([]interface{}); ok {
		return l
	}
	return nil
}

// FirstOf returns the first value under keys that renders non-empty, or the
// first non-nil structured value.
func FirstOf(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			if len(val) > 0 {
				return val
			}
		case []interface{}:
			if len(val) > 0 {
				return val
			}
		default:
			if String(val) != "" {
				return val
			}
		}
	}
	return nil
}

// ParseAge accepts numbers, strings such as "45 yrs", and objects with a
// Years field. It returns nil when no age can be read.
func ParseAge(v interface{}) *int {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		age := int(val)
		return &age
	case int:
		return &val
	case map[string]interface{}:
		return ParseAge(FirstOf(val, "Years", "years"))
	default:
		match := digitRun.FindString(String(val))
		if match == "" {
			return nil
		}
		age, err := strconv.Atoi(match)
		if err != nil {
			return nil
		}
		return &age
	}
}

// TextOf decodes content as UTF-8, dropping invalid sequences.
func TextOf(content []byte) string {
	return strings.ToValidUTF8(string(content), "")
}
