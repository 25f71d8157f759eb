package normalizer

import (
	"strings"
	"time"

	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/terminology"
)

const minPhoneDigits = 10

var visitDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
	"2 Jan 2006",
}

// Transformer maps one standardized record onto entity inputs.
type Transformer struct {
	catalog terminology.Catalog
}

func NewTransformer(cat terminology.Catalog) *Transformer {
	return &Transformer{catalog: cat}
}

func (t *Transformer) Patient(rec extraction.StandardizedExtraction, opts Options) PatientFields {
	p := rec.Patient
	return PatientFields{
		Name:             strings.TrimSpace(p.Name),
		Age:              p.Age,
		Gender:           extraction.NormalizeGender(p.Gender),
		Phone:            cleanPhone(p.Phone),
		Email:            p.Email,
		Address:          p.Address,
		City:             p.City,
		State:            p.State,
		Pincode:          p.Pincode,
		HospitalClinic:   rec.Facility.HospitalName,
		DoctorName:       rec.Facility.DoctorName,
		SourceDocumentID: opts.SourceDocumentID,
		DefaultLocation:  opts.DefaultLocation,
		DefaultHospital:  opts.DefaultHospital,
	}
}

// Diseases canonicalises names and drops duplicates produced by expansion,
// e.g. "DM" and "Diabetes Mellitus" in the same record.
func (t *Transformer) Diseases(rec extraction.StandardizedExtraction) []DiseaseInput {
	diagnosed := visitDate(rec.Facility.VisitDate)
	seen := make(map[string]struct{}, len(rec.Diseases))
	out := make([]DiseaseInput, 0, len(rec.Diseases))
	for _, d := range rec.Diseases {
		name := t.catalog.Normalize(d.Name)
		if name == "" {
			continue
		}
		key := nameKey(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		in := DiseaseInput{
			Name:          name,
			ICDCode:       strings.TrimSpace(d.ICDCode),
			Severity:      strings.TrimSpace(d.Severity),
			Abbreviations: t.catalog.AbbreviationsFor(name),
			DiagnosisDate: diagnosed,
		}
		if ref, ok := t.catalog.Lookup(name); ok {
			if in.ICDCode == "" {
				in.ICDCode = ref.ICD10
			}
			in.Category = ref.Category
		}
		out = append(out, in)
	}
	return out
}

// cleanPhone keeps digits and '+'. Fewer than ten digits means no phone.
func cleanPhone(raw string) string {
	var b strings.Builder
	digits := 0
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '+':
			b.WriteRune(r)
		}
	}
	if digits < minPhoneDigits {
		return ""
	}
	return b.String()
}

func visitDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range visitDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
