package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type Disease struct {
	ICD10    string `yaml:"icd10" json:"icd10"`
	Category string `yaml:"category" json:"category"`
}

// Catalog holds the abbreviation table used to canonicalise disease names and
// reference data for the canonical names themselves. Keys are lowercase.
type Catalog struct {
	Abbreviations map[string]string  `yaml:"abbreviations" json:"abbreviations"`
	Diseases      map[string]Disease `yaml:"diseases" json:"diseases"`

	canonical map[string]string
}

// Load reads a YAML catalog and layers it over DefaultCatalog, so a file only
// needs to list additions or overrides.
func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var overlay Catalog
	if err := yaml.Unmarshal(content, &overlay); err != nil {
		return Catalog{}, err
	}
	if len(overlay.Abbreviations) == 0 && len(overlay.Diseases) == 0 {
		return Catalog{}, fmt.Errorf("terminology catalog empty")
	}

	cat := DefaultCatalog()
	for k, v := range overlay.Abbreviations {
		cat.Abbreviations[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	for k, v := range overlay.Diseases {
		cat.Diseases[strings.ToLower(strings.TrimSpace(k))] = v
	}
	cat.index()
	return cat, nil
}

func (c *Catalog) index() {
	c.canonical = make(map[string]string, len(c.Abbreviations))
	for _, full := range c.Abbreviations {
		c.canonical[strings.ToLower(full)] = full
	}
}

// Expand returns the full term for a known abbreviation.
func (c Catalog) Expand(name string) (string, bool) {
	full, ok := c.Abbreviations[strings.ToLower(strings.TrimSpace(name))]
	return full, ok
}

// Normalize canonicalises a disease name: known abbreviations expand, names
// already equal to an expansion keep its spelling, uniformly upper or lower
// case input is title-cased, anything else is returned trimmed.
// Normalize(Normalize(x)) == Normalize(x).
func (c Catalog) Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if full, ok := c.Expand(name); ok {
		return full
	}
	if c.canonical != nil {
		if full, ok := c.canonical[strings.ToLower(name)]; ok {
			return full
		}
	}
	if isUniformCase(name) {
		return cases.Title(language.English).String(name)
	}
	return name
}

// Lookup finds reference data for a canonical disease name.
func (c Catalog) Lookup(name string) (Disease, bool) {
	if c.Diseases == nil {
		return Disease{}, false
	}
	d, ok := c.Diseases[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// AbbreviationsFor lists the known abbreviations of a canonical name,
// uppercased and sorted.
func (c Catalog) AbbreviationsFor(name string) []string {
	var out []string
	for abbr, full := range c.Abbreviations {
		if strings.EqualFold(full, name) {
			out = append(out, strings.ToUpper(abbr))
		}
	}
	sort.Strings(out)
	return out
}

// isUniformCase mirrors "all cased letters upper" or "all cased letters lower",
// requiring at least one letter.
func isUniformCase(s string) bool {
	hasUpper, hasLower := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}
	return hasUpper != hasLower
}

func DefaultCatalog() Catalog {
	cat := Catalog{
		Abbreviations: map[string]string{
			"dm":           "Diabetes Mellitus",
			"dm2":          "Type 2 Diabetes Mellitus",
			"t2dm":         "Type 2 Diabetes Mellitus",
			"dm1":          "Type 1 Diabetes Mellitus",
			"t1dm":         "Type 1 Diabetes Mellitus",
			"htn":          "Hypertension",
			"cad":          "Coronary Artery Disease",
			"ckd":          "Chronic Kidney Disease",
			"copd":         "Chronic Obstructive Pulmonary Disease",
			"mi":           "Myocardial Infarction",
			"chf":          "Congestive Heart Failure",
			"af":           "Atrial Fibrillation",
			"tb":           "Tuberculosis",
			"hiv":          "HIV/AIDS",
			"acs":          "Acute Coronary Syndrome",
			"cva":          "Cerebrovascular Accident",
			"dvt":          "Deep Vein Thrombosis",
			"pe":           "Pulmonary Embolism",
			"uti":          "Urinary Tract Infection",
			"gerd":         "Gastroesophageal Reflux Disease",
			"ibs":          "Irritable Bowel Syndrome",
			"ra":           "Rheumatoid Arthritis",
			"oa":           "Osteoarthritis",
			"hypothyroid":  "Hypothyroidism",
			"hyperthyroid": "Hyperthyroidism",
		},
		Diseases: map[string]Disease{
			"diabetes mellitus":                     {ICD10: "E14", Category: "Chronic"},
			"type 2 diabetes mellitus":              {ICD10: "E11", Category: "Chronic"},
			"type 1 diabetes mellitus":              {ICD10: "E10", Category: "Chronic"},
			"hypertension":                          {ICD10: "I10", Category: "Chronic"},
			"coronary artery disease":               {ICD10: "I25.1", Category: "Chronic"},
			"chronic kidney disease":                {ICD10: "N18.9", Category: "Chronic"},
			"chronic obstructive pulmonary disease": {ICD10: "J44.9", Category: "Chronic"},
			"myocardial infarction":                 {ICD10: "I21.9", Category: "Acute"},
			"congestive heart failure":              {ICD10: "I50.0", Category: "Chronic"},
			"atrial fibrillation":                   {ICD10: "I48", Category: "Chronic"},
			"tuberculosis":                          {ICD10: "A16.9", Category: "Infectious"},
			"hiv/aids":                              {ICD10: "B24", Category: "Infectious"},
			"acute coronary syndrome":               {ICD10: "I24.9", Category: "Acute"},
			"cerebrovascular accident":              {ICD10: "I64", Category: "Acute"},
			"deep vein thrombosis":                  {ICD10: "I80.2", Category: "Acute"},
			"pulmonary embolism":                    {ICD10: "I26.9", Category: "Acute"},
			"urinary tract infection":               {ICD10: "N39.0", Category: "Infectious"},
			"gastroesophageal reflux disease":       {ICD10: "K21.9", Category: "Chronic"},
			"irritable bowel syndrome":              {ICD10: "K58.9", Category: "Chronic"},
			"rheumatoid arthritis":                  {ICD10: "M06.9", Category: "Chronic"},
			"osteoarthritis":                        {ICD10: "M19.9", Category: "Chronic"},
			"hypothyroidism":                        {ICD10: "E03.9", Category: "Chronic"},
			"hyperthyroidism":                       {ICD10: "E05.9", Category: "Chronic"},
			"anemia":                                {ICD10: "D64.9", Category: "Chronic"},
			"hyperlipidemia":                        {ICD10: "E78.5", Category: "Chronic"},
			"hypertriglyceridemia":                  {ICD10: "E78.1", Category: "Chronic"},
			"hyperuricemia":                         {ICD10: "E79.0", Category: "Chronic"},
			"liver disease":                         {ICD10: "K76.9", Category: "Chronic"},
		},
	}
	cat.index()
	return cat
}
