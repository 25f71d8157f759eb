package structured

import "strings"

type fieldSynonyms struct {
	field string
	names []string
}

// columnSynonyms is checked in order; the first matching header wins.
var columnSynonyms = []fieldSynonyms{
	{"name", []string{"name", "patient_name", "patient name", "full_name", "fullname"}},
	{"age", []string{"age", "patient_age", "years"}},
	{"gender", []string{"gender", "sex", "patient_gender"}},
	{"phone", []string{"phone", "mobile", "contact", "phone_number", "mobile_number", "contact_number"}},
	{"address", []string{"address", "patient_address", "location", "addr"}},
	{"city", []string{"city", "town"}},
	{"state", []string{"state", "province"}},
	{"pincode", []string{"pincode", "pin", "zip", "zipcode", "postal_code"}},
	{"disease", []string{"disease", "diagnosis", "condition", "diseases", "diagnoses"}},
	{"hospital", []string{"hospital", "clinic", "facility", "hospital_name", "clinic_name"}},
	{"doctor", []string{"doctor", "physician", "doctor_name", "treating_doctor"}},
	{"date", []string{"date", "visit_date", "admission_date", "report_date"}},
}

// detectMapping returns semantic field -> actual header. Caller overrides are
// applied first and only when the named header exists.
func detectMapping(headers []string, overrides map[string]string) map[string]string {
	byLower := make(map[string]string, len(headers))
	for _, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := byLower[key]; !exists {
			byLower[key] = h
		}
	}

	mapping := make(map[string]string)
	for field, column := range overrides {
		if actual, ok := byLower[strings.ToLower(strings.TrimSpace(column))]; ok {
			mapping[field] = actual
		}
	}

	for _, syn := range columnSynonyms {
		if _, done := mapping[syn.field]; done {
			continue
		}
		for _, candidate := range syn.names {
			if actual, ok := byLower[candidate]; ok {
				mapping[syn.field] = actual
				break
			}
		}
	}
	return mapping
}
