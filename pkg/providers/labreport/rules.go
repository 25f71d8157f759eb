package labreport

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/healthbridge/platform/pkg/extraction"
)

var (
	numericValue = regexp.MustCompile(`[\d.]+`)
	rangeBounds  = regexp.MustCompile(`([\d.]+)\s*-\s*([\d.]+)`)
)

// Rule maps an abnormal test, matched by substring on its normalized name,
// to the diseases it suggests.
type Rule struct {
	Test string   `yaml:"test"`
	High []string `yaml:"high,omitempty"`
	Low  []string `yaml:"low,omitempty"`
}

type Rules struct {
	Rules []Rule `yaml:"rules"`
}

func DefaultRules() *Rules {
	return &Rules{Rules: []Rule{
		{Test: "hba1c", High: []string{"Diabetes Mellitus"}},
		{Test: "fasting_glucose", High: []string{"Diabetes Mellitus"}},
		{Test: "blood_sugar", High: []string{"Diabetes Mellitus"}},
		{Test: "creatinine", High: []string{"Chronic Kidney Disease"}},
		{Test: "hemoglobin", Low: []string{"Anemia"}},
		{Test: "tsh", High: []string{"Hypothyroidism"}, Low: []string{"Hyperthyroidism"}},
		{Test: "cholesterol", High: []string{"Hyperlipidemia"}},
		{Test: "ldl", High: []string{"Hyperlipidemia"}},
		{Test: "triglycerides", High: []string{"Hypertriglyceridemia"}},
		{Test: "uric_acid", High: []string{"Hyperuricemia"}},
		{Test: "bilirubin", High: []string{"Liver Disease"}},
		{Test: "sgpt", High: []string{"Liver Disease"}},
		{Test: "sgot", High: []string{"Liver Disease"}},
	}}
}

// LoadRules reads an inference table from YAML. An empty path yields the
// built-in table.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lab rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse lab rules: %w", err)
	}
	for i := range rules.Rules {
		rules.Rules[i].Test = normalizeTestName(rules.Rules[i].Test)
	}
	return &rules, nil
}

type abnormalValue struct {
	test   string
	isHigh bool
}

// Infer returns one disease per distinct inferred name, in table order per
// abnormal test.
func (r *Rules) Infer(abnormal []abnormalValue) []extraction.Disease {
	var out []extraction.Disease
	seen := make(map[string]bool)
	for _, a := range abnormal {
		name := normalizeTestName(a.test)
		for _, rule := range r.Rules {
			if rule.Test == "" || !strings.Contains(name, rule.Test) {
				continue
			}
			diseases := rule.Low
			if a.isHigh {
				diseases = rule.High
			}
			for _, d := range diseases {
				if seen[d] {
					continue
				}
				seen[d] = true
				out = append(out, extraction.Disease{
					Name:   d,
					Source: "Inferred from abnormal " + a.test,
				})
			}
		}
	}
	return out
}

func normalizeTestName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// checkRange reports whether value falls outside a "low-high" range and, if
// so, whether it is above it. Unparseable values or ranges are normal.
func checkRange(value, normalRange string) (abnormal, high bool) {
	if value == "" || normalRange == "" {
		return false, false
	}
	v, err := strconv.ParseFloat(numericValue.FindString(value), 64)
	if err != nil {
		return false, false
	}
	m := rangeBounds.FindStringSubmatch(normalRange)
	if m == nil {
		return false, false
	}
	low, errLow := strconv.ParseFloat(m[1], 64)
	upper, errHigh := strconv.ParseFloat(m[2], 64)
	if errLow != nil || errHigh != nil {
		return false, false
	}
	return v < low || v > upper, v > upper
}
