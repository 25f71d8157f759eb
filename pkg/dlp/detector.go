package dlp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Detection summarises the PHI found in a payload.
type Detection struct {
	Detected bool     `json:"detected"`
	Types    []string `json:"types"`
	Count    int      `json:"count"`
}

type Detector struct {
	rules []compiledRule
	keys  map[string]compiledRule
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	d := &Detector{keys: make(map[string]compiledRule)}
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		cr := compiledRule{rule: rule}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			cr.re = re
			d.rules = append(d.rules, cr)
		}
		for _, k := range rule.Keys {
			d.keys[strings.ToLower(k)] = cr
		}
	}
	return d, nil
}

func (d *Detector) Detect(data map[string]interface{}) Detection {
	if d == nil {
		return Detection{}
	}

	types := make(map[string]struct{})
	count := 0
	var recurse func(key string, value interface{})
	recurse = func(key string, value interface{}) {
		if cr, ok := d.keys[strings.ToLower(key)]; ok && !isEmpty(value) {
			types[cr.rule.Type] = struct{}{}
			count++
			return
		}
		switch v := value.(type) {
		case string:
			for _, cr := range d.rules {
				if n := len(cr.re.FindAllStringIndex(v, -1)); n > 0 {
					types[cr.rule.Type] = struct{}{}
					count += n
				}
			}
		case map[string]interface{}:
			for k, nested := range v {
				recurse(k, nested)
			}
		case []interface{}:
			for _, nested := range v {
				recurse(key, nested)
			}
		}
	}
	for k, v := range data {
		recurse(k, v)
	}

	list := make([]string, 0, len(types))
	for t := range types {
		list = append(list, t)
	}
	sort.Strings(list)
	return Detection{Detected: count > 0, Types: list, Count: count}
}

// Sanitize returns a masked deep copy of data.
func (d *Detector) Sanitize(data map[string]interface{}) map[string]interface{} {
	if d == nil {
		return data
	}

	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		out[key] = d.sanitizeValue(key, value)
	}
	return out
}

func (d *Detector) sanitizeValue(key string, value interface{}) interface{} {
	if cr, ok := d.keys[strings.ToLower(key)]; ok {
		return maskWhole(cr.rule, value)
	}
	switch v := value.(type) {
	case string:
		masked := v
		for _, cr := range d.rules {
			masked = cr.re.ReplaceAllString(masked, cr.rule.Mask)
		}
		return masked
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, nested := range v {
			out[k] = d.sanitizeValue(k, nested)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = d.sanitizeValue(key, nested)
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, nested := range v {
			out[i] = d.sanitizeValue(key, nested)
		}
		return out
	default:
		return value
	}
}

func maskWhole(rule Rule, value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if v == "" {
			return v
		}
		if rule.Strategy == StrategyInitials {
			return initials(v)
		}
		return rule.Mask
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = maskWhole(rule, s)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = maskWhole(rule, s)
		}
		return out
	case nil:
		return nil
	default:
		return rule.Mask
	}
}

// initials turns "Asha Rao" into "A. R.".
func initials(name string) string {
	parts := strings.Fields(name)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, r := range p {
			if unicode.IsLetter(r) {
				out = append(out, string(unicode.ToUpper(r))+".")
				break
			}
		}
	}
	return strings.Join(out, " ")
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	}
	return false
}
