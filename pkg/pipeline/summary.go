package pipeline

import (
	"strings"
)

// Summarize flattens a result into the fields carried by processed-document
// events. Patient names are included; callers mask them before publishing.
func Summarize(result *Result) map[string]interface{} {
	summary := map[string]interface{}{
		"success":          result.Success,
		"document_type":    string(result.DocumentType),
		"content_category": string(result.ContentCategory),
		"service_used":     result.ServiceUsed,
		"services_tried":   result.ServicesTried,
		"confidence":       result.Confidence,
		"records":          len(result.Data.Records),
	}
	if !result.Success {
		summary["error"] = result.ErrorMessage
		return summary
	}

	seen := map[string]bool{}
	diseases := []string{}
	patients := []string{}
	for _, rec := range result.Data.Records {
		if rec.Patient.Name != "" {
			patients = append(patients, rec.Patient.Name)
		}
		for _, d := range rec.Diseases {
			key := strings.ToLower(d.Name)
			if !seen[key] {
				seen[key] = true
				diseases = append(diseases, d.Name)
			}
		}
	}
	summary["diseases"] = diseases
	summary["patients"] = patients
	return summary
}
