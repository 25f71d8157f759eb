package scribe

import (
	"strings"

	"github.com/healthbridge/platform/pkg/extraction"
)

// parseTemplate maps an EMR template response into the standardized record.
func parseTemplate(resp map[string]interface{}) extraction.StandardizedExtraction {
	out := extraction.Empty()

	if info := extraction.Map(resp["patient_info"]); len(info) > 0 {
		out.Patient.Name = extraction.String(info["name"])
		out.Patient.Age = extraction.ParseAge(info["age"])
		out.Patient.Gender = extraction.NormalizeGender(info["gender"])
		out.Patient.Phone = extraction.String(extraction.FirstOf(info, "phone", "mobile"))
	}

	for _, d := range extraction.List(extraction.FirstOf(resp, "diagnosis", "diagnoses")) {
		switch val := d.(type) {
		case string:
			out.Diseases = append(out.Diseases, extraction.Disease{Name: strings.TrimSpace(val)})
		case map[string]interface{}:
			out.Diseases = append(out.Diseases, extraction.Disease{
				Name:     extraction.String(extraction.FirstOf(val, "name", "diagnosis")),
				ICDCode:  extraction.String(extraction.FirstOf(val, "icd_code", "code")),
				Severity: extraction.String(val["severity"]),
			})
		}
	}
	// conditions only add names the diagnoses did not already cover
	for _, c := range extraction.List(extraction.FirstOf(resp, "conditions", "medical_history")) {
		if name, ok := c.(string); ok && strings.TrimSpace(name) != "" {
			out.Diseases = append(out.Diseases, extraction.Disease{Name: strings.TrimSpace(name)})
		}
	}
	out.Diseases = extraction.DedupeDiseases(out.Diseases)

	for _, c := range extraction.List(extraction.FirstOf(resp, "chief_complaints", "complaints")) {
		switch val := c.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out.Symptoms = append(out.Symptoms, s)
			}
		case map[string]interface{}:
			if s := extraction.String(val["complaint"]); s != "" {
				out.Symptoms = append(out.Symptoms, s)
			}
		}
	}

	vitals := extraction.Map(resp["vitals"])
	for name, keys := range map[string][]string{
		"blood_pressure": {"bp", "blood_pressure"},
		"pulse":          {"pulse", "heart_rate"},
		"temperature":    {"temperature"},
		"spo2":           {"spo2", "oxygen_saturation"},
		"weight":         {"weight"},
		"height":         {"height"},
	} {
		if v := extraction.String(extraction.FirstOf(vitals, keys...)); v != "" {
			out.Vitals[name] = v
		}
	}

	for _, m := range extraction.List(extraction.FirstOf(resp, "medications", "prescriptions")) {
		switch val := m.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out.Medications = append(out.Medications, extraction.Medication{Name: s})
			}
		case map[string]interface{}:
			name := extraction.String(extraction.FirstOf(val, "name", "drug_name"))
			if name == "" {
				continue
			}
			out.Medications = append(out.Medications, extraction.Medication{
				Name:      name,
				Dosage:    extraction.String(extraction.FirstOf(val, "dosage", "dose")),
				Frequency: extraction.String(val["frequency"]),
				Duration:  extraction.String(val["duration"]),
			})
		}
	}

	for _, inv := range extraction.List(extraction.FirstOf(resp, "investigations", "lab_results")) {
		switch val := inv.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out.LabResults = append(out.LabResults, extraction.LabResult{Test: s})
			}
		case map[string]interface{}:
			test := extraction.String(extraction.FirstOf(val, "name", "test_name"))
			if test == "" {
				continue
			}
			out.LabResults = append(out.LabResults, extraction.LabResult{
				Test:  test,
				Value: extraction.String(extraction.FirstOf(val, "value", "result")),
				Unit:  extraction.String(val["unit"]),
			})
		}
	}

	return out
}
