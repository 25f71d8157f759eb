package labreport

import (
	"sort"
	"strings"
	"time"

	"github.com/healthbridge/platform/pkg/extraction"
)

// parseResult maps a completed lab/prescription result into the
// standardized record. Abnormal tests feed disease inference when rules is
// non-nil.
func parseResult(resp map[string]interface{}, rules *Rules) extraction.StandardizedExtraction {
	out := extraction.Empty()

	data := extraction.Map(resp["data"])
	output := extraction.Map(data["output"])

	parsePII(extraction.Map(output["pii"]), &out)

	meta := extraction.Map(output["meta"])
	if source := extraction.String(meta["source_display_name"]); source != "" && out.Facility.HospitalName == "" {
		if doctor, facility, ok := strings.Cut(source, "|"); ok {
			out.Facility.DoctorName = strings.TrimSpace(doctor)
			out.Facility.HospitalName = strings.TrimSpace(facility)
		}
	}

	for _, m := range extraction.List(output["medications"]) {
		med := extraction.Map(m)
		name := extraction.String(med["name"])
		if name == "" {
			continue
		}
		freq := extraction.Map(med["frequency"])
		dur := extraction.Map(med["duration"])
		schedule := extraction.String(extraction.FirstOf(freq, "custom", "type"))
		out.Medications = append(out.Medications, extraction.Medication{
			Name:      name,
			Dosage:    schedule,
			Frequency: schedule,
			Duration:  extraction.String(extraction.FirstOf(dur, "custom", "days")),
		})
	}

	for _, d := range extraction.List(output["diagnosis"]) {
		if name := extraction.String(extraction.Map(d)["name"]); name != "" {
			out.Diseases = append(out.Diseases, extraction.Disease{Name: name, Source: "Extracted from document"})
		}
	}

	for _, s := range extraction.List(output["symptoms"]) {
		if name := extraction.String(extraction.Map(s)["name"]); name != "" {
			out.Symptoms = append(out.Symptoms, name)
		}
	}

	for _, v := range extraction.List(output["labVitals"]) {
		vital := extraction.Map(v)
		name := strings.ToLower(extraction.String(vital["name"]))
		value := extraction.String(vital["value"])
		if name == "" || value == "" {
			continue
		}
		withUnit := value
		if unit := extraction.String(vital["unit"]); unit != "" {
			withUnit = value + " " + unit
		}
		switch {
		case strings.Contains(name, "bp"), strings.Contains(name, "blood pressure"):
			out.Vitals["blood_pressure"] = value
		case strings.Contains(name, "weight"):
			out.Vitals["weight"] = withUnit
		case strings.Contains(name, "height"):
			out.Vitals["height"] = withUnit
		case strings.Contains(name, "temp"):
			out.Vitals["temperature"] = withUnit
		case strings.Contains(name, "pulse"), strings.Contains(name, "heart rate"):
			out.Vitals["pulse"] = value
		case strings.Contains(name, "spo2"), strings.Contains(name, "oxygen"):
			out.Vitals["spo2"] = value
		default:
			out.Vitals[name] = withUnit
		}
	}

	var abnormal []abnormalValue
	for _, t := range extraction.List(output["data"]) {
		test := extraction.Map(t)
		name := extraction.String(test["test_name"])
		if name == "" {
			continue
		}
		raw := extraction.Map(test["data"])
		norm := extraction.Map(test["normalised_data"])

		value := extraction.String(firstNonEmpty(norm["value"], raw["value"]))
		unit := extraction.String(firstNonEmpty(norm["unit"], raw["unit"], raw["unit_processed"]))
		normalRange := extraction.String(firstNonEmpty(
			norm["normal_range_eka"],
			norm["normal_range_report"],
			raw["normal_range_eka"],
			raw["normal_range_report"],
			raw["display_range"],
		))

		isAbnormal, isHigh := checkRange(value, normalRange)
		out.LabResults = append(out.LabResults, extraction.LabResult{
			Test:        name,
			Value:       value,
			Unit:        unit,
			NormalRange: normalRange,
			IsAbnormal:  &isAbnormal,
		})
		if isAbnormal {
			abnormal = append(abnormal, abnormalValue{test: name, isHigh: isHigh})
		}
	}

	if rules != nil && len(abnormal) > 0 {
		out.Diseases = append(out.Diseases, rules.Infer(abnormal)...)
	}
	out.Diseases = extraction.DedupeDiseases(out.Diseases)

	return out
}

// parsePII reads the first page of the first file. Prescriptions carry a
// list of pages, lab reports a map keyed by page number.
func parsePII(pii map[string]interface{}, out *extraction.StandardizedExtraction) {
	for _, file := range sortedKeys(pii) {
		switch pages := pii[file].(type) {
		case []interface{}:
			for _, page := range pages {
				if p, ok := page.(map[string]interface{}); ok {
					parsePage(p, out)
					break
				}
			}
		case map[string]interface{}:
			for _, key := range sortedKeys(pages) {
				if p, ok := pages[key].(map[string]interface{}); ok {
					parsePage(p, out)
					break
				}
			}
		}
		return
	}
}

func parsePage(page map[string]interface{}, out *extraction.StandardizedExtraction) {
	person := page
	if nested := extraction.Map(page["Patient"]); len(nested) > 0 {
		person = nested
	}
	name := extraction.String(person["Name"])
	age := extraction.ParseAge(person["Age"])
	gender := extraction.NormalizeGender(person["Gender"])
	if name != "" || age != nil || gender != extraction.GenderUnknown {
		out.Patient.Name = name
		out.Patient.Age = age
		out.Patient.Gender = gender
	}

	report := page
	if nested := extraction.Map(page["Report"]); len(nested) > 0 {
		report = nested
	}
	facility := extraction.String(report["Facility"])
	doctor := extraction.String(report["Doctor"])
	if facility != "" || doctor != "" {
		out.Facility = extraction.Facility{
			HospitalName: facility,
			DoctorName:   doctor,
			VisitDate:    documentDate(page["DocumentDate"]),
		}
	}
}

// documentDate renders epoch seconds as a calendar date; strings pass through.
func documentDate(v interface{}) string {
	if secs, ok := v.(float64); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC().Format("2006-01-02")
	}
	return extraction.String(v)
}

func firstNonEmpty(values ...interface{}) interface{} {
	for _, v := range values {
		if extraction.String(v) != "" {
			return v
		}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		// numeric page keys sort by value
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
