package dlp

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	StrategyReplace  = "replace"
	StrategyInitials = "initials"
)

// Rule masks text matching Pattern, or the whole value of any field named in
// Keys. Either may be empty.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
	Keys     []string `yaml:"keys" json:"keys"`
	Mask     string   `yaml:"mask" json:"mask"`
	Strategy string   `yaml:"strategy" json:"strategy"`
	Enabled  bool     `yaml:"enabled" json:"enabled"`
}

type RulesConfig struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}

	if len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no DLP rules configured")
	}

	return cfg, nil
}

func DefaultRules() RulesConfig {
	return RulesConfig{Rules: []Rule{
		{Name: "Aadhaar", Type: "national_id", Pattern: `\b\d{4}\s?\d{4}\s?\d{4}\b`, Mask: "XXXX XXXX XXXX", Enabled: true},
		{Name: "Mobile", Type: "phone", Pattern: `(\+91[\s-]?)?\b[6-9]\d{4}[\s-]?\d{5}\b`, Keys: []string{"phone", "phone_number", "mobile"}, Mask: "**********", Enabled: true},
		{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Keys: []string{"email"}, Mask: "***@***", Enabled: true},
		{Name: "DOB", Type: "dob", Pattern: `\b\d{1,2}/\d{1,2}/\d{4}\b`, Mask: "##/##/####", Enabled: true},
		{Name: "Address", Type: "address", Keys: []string{"address", "pincode"}, Mask: "[redacted]", Enabled: true},
		{Name: "Patient name", Type: "name", Keys: []string{"patients", "patient_name", "name"}, Strategy: StrategyInitials, Enabled: true},
	}}
}
