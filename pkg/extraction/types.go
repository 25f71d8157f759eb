package extraction

import (
	"encoding/json"
	"strings"
)

const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// StandardizedExtraction is the single schema every provider produces.
type StandardizedExtraction struct {
	Patient     Patient           `json:"patient"`
	Diseases    []Disease         `json:"diseases"`
	Symptoms    []string          `json:"symptoms"`
	Medications []Medication      `json:"medications"`
	LabResults  []LabResult       `json:"lab_results"`
	Vitals      map[string]string `json:"vitals"`
	Facility    Facility          `json:"facility"`
}

type Patient struct {
	Name    string `json:"name"`
	Age     *int   `json:"age"`
	Gender  string `json:"gender"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Pincode string `json:"pincode,omitempty"`
}

type Disease struct {
	Name     string `json:"name"`
	ICDCode  string `json:"icd_code,omitempty"`
	Severity string `json:"severity,omitempty"`
	Source   string `json:"source,omitempty"`
}

type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type LabResult struct {
	Test        string `json:"test"`
	Value       string `json:"value"`
	Unit        string `json:"unit,omitempty"`
	NormalRange string `json:"normal_range,omitempty"`
	IsAbnormal  *bool  `json:"is_abnormal,omitempty"`
}

type Facility struct {
	HospitalName string `json:"hospital_name,omitempty"`
	DoctorName   string `json:"doctor_name,omitempty"`
	VisitDate    string `json:"visit_date,omitempty"`
}

// Empty returns a record with every collection initialised.
func Empty() StandardizedExtraction {
	return StandardizedExtraction{
		Patient:     Patient{Gender: GenderUnknown},
		Diseases:    []Disease{},
		Symptoms:    []string{},
		Medications: []Medication{},
		LabResults:  []LabResult{},
		Vitals:      map[string]string{},
	}
}

// DiseaseNames lists disease names in order.
func (s StandardizedExtraction) DiseaseNames() []string {
	names := make([]string, 0, len(s.Diseases))
	for _, d := range s.Diseases {
		names = append(names, d.Name)
	}
	return names
}

// Extraction is either a single record or a batch of records. Batches
// serialise as {"is_batch": true, "records": [...]}.
type Extraction struct {
	IsBatch bool
	Records []StandardizedExtraction
}

func Single(rec StandardizedExtraction) Extraction {
	return Extraction{Records: []StandardizedExtraction{rec}}
}

func NewBatch(records []StandardizedExtraction) Extraction {
	if records == nil {
		records = []StandardizedExtraction{}
	}
	return Extraction{IsBatch: true, Records: records}
}

func (e Extraction) IsZero() bool {
	return len(e.Records) == 0
}

func (e Extraction) MarshalJSON() ([]byte, error) {
	if e.IsBatch {
		return json.Marshal(struct {
			IsBatch bool                     `json:"is_batch"`
			Records []StandardizedExtraction `json:"records"`
		}{true, e.Records})
	}
	if len(e.Records) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(e.Records[0])
}

func (e *Extraction) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Parse decodes arbitrary JSON into an Extraction. A top-level "records"
// list marks a batch whether or not is_batch is set.
func Parse(data []byte) (Extraction, error) {
	if strings.TrimSpace(string(data)) == "null" {
		return Extraction{}, nil
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Extraction{}, err
	}
	return FromValue(raw), nil
}

// FromValue converts an untyped JSON value into an Extraction.
func FromValue(v interface{}) Extraction {
	m := Map(v)
	if len(m) == 0 {
		return Extraction{}
	}
	if records, ok := m["records"].([]interface{}); ok {
		out := make([]StandardizedExtraction, 0, len(records))
		for _, r := range records {
			out = append(out, FromMap(Map(r)))
		}
		return NewBatch(out)
	}
	return Single(FromMap(m))
}

// FromMap reads the canonical schema out of an untyped map, defaulting every
// missing field.
func FromMap(m map[string]interface{}) StandardizedExtraction {
	out := Empty()

	p := Map(m["patient"])
	out.Patient = Patient{
		Name:    String(p["name"]),
		Age:     ParseAge(p["age"]),
		Gender:  NormalizeGender(p["gender"]),
		Phone:   String(FirstOf(p, "phone", "phone_number", "mobile")),
		Email:   String(p["email"]),
		Address: String(p["address"]),
		City:    String(p["city"]),
		State:   String(p["state"]),
		Pincode: String(FirstOf(p, "pincode", "pin", "zip")),
	}

	for _, d := range List(m["diseases"]) {
		switch val := d.(type) {
		case string:
			if name := strings.TrimSpace(val); name != "" {
				out.Diseases = append(out.Diseases, Disease{Name: name})
			}
		case map[string]interface{}:
			if name := String(val["name"]); name != "" {
				out.Diseases = append(out.Diseases, Disease{
					Name:     name,
					ICDCode:  String(val["icd_code"]),
					Severity: String(val["severity"]),
					Source:   String(val["source"]),
				})
			}
		}
	}
	out.Diseases = DedupeDiseases(out.Diseases)

	for _, s := range List(m["symptoms"]) {
		if name := String(s); name != "" {
			out.Symptoms = append(out.Symptoms, name)
		} else if name := String(Map(s)["name"]); name != "" {
			out.Symptoms = append(out.Symptoms, name)
		}
	}

	for _, med := range List(m["medications"]) {
		mm := Map(med)
		if name := String(mm["name"]); name != "" {
			out.Medications = append(out.Medications, Medication{
				Name:      name,
				Dosage:    String(mm["dosage"]),
				Frequency: String(mm["frequency"]),
				Duration:  String(mm["duration"]),
			})
		}
	}

	for _, lr := range List(m["lab_results"]) {
		lm := Map(lr)
		test := String(FirstOf(lm, "test", "test_name", "name"))
		if test == "" {
			continue
		}
		res := LabResult{
			Test:        test,
			Value:       String(lm["value"]),
			Unit:        String(lm["unit"]),
			NormalRange: String(lm["normal_range"]),
		}
		if b, ok := lm["is_abnormal"].(bool); ok {
			res.IsAbnormal = &b
		}
		out.LabResults = append(out.LabResults, res)
	}

	for k, v := range Map(m["vitals"]) {
		if s := String(v); s != "" {
			out.Vitals[k] = s
		}
	}

	f := Map(m["facility"])
	out.Facility = Facility{
		HospitalName: String(f["hospital_name"]),
		DoctorName:   String(f["doctor_name"]),
		VisitDate:    String(f["visit_date"]),
	}

	return out
}

// DedupeDiseases drops repeated names (case-insensitive), keeping the first
// occurrence and filling its empty ICD code or severity from later ones.
func DedupeDiseases(in []Disease) []Disease {
	out := make([]Disease, 0, len(in))
	index := make(map[string]int, len(in))
	for _, d := range in {
		key := strings.ToLower(strings.TrimSpace(d.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if out[i].ICDCode == "" {
				out[i].ICDCode = d.ICDCode
			}
			if out[i].Severity == "" {
				out[i].Severity = d.Severity
			}
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	return out
}

// NormalizeGender folds gender synonyms into male, female, other or unknown.
func NormalizeGender(v interface{}) string {
	switch strings.ToLower(String(v)) {
	case "m", "male", "man":
		return GenderMale
	case "f", "female", "woman":
		return GenderFemale
	case "o", "other":
		return GenderOther
	default:
		return GenderUnknown
	}
}
