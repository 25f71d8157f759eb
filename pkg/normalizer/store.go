package normalizer

import (
	"context"
	"strings"
	"time"

	"github.com/healthbridge/platform/pkg/extraction"
)

// Store persists patients, diseases and their links. Each method is a
// check-and-set; Atomic groups the writes for one record.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Store) error) error
	UpsertPatient(ctx context.Context, fields PatientFields) (*Patient, bool, error)
	GetOrCreateDisease(ctx context.Context, in DiseaseInput) (*Disease, bool, error)
	GetOrCreatePatientDisease(ctx context.Context, patient *Patient, disease *Disease, defaults PatientDisease) (*PatientDisease, bool, error)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newPatient(id string, f PatientFields, now time.Time) *Patient {
	p := &Patient{
		ID:        id,
		Name:      strings.TrimSpace(f.Name),
		NameKey:   nameKey(f.Name),
		Gender:    extraction.GenderUnknown,
		CreatedAt: now,
	}
	mergePatient(p, f, now)
	return p
}

// mergePatient copies every non-empty field onto p. An unknown gender counts
// as empty. Defaults only fill fields that are still blank.
func mergePatient(p *Patient, f PatientFields, now time.Time) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	if f.Age != nil {
		age := *f.Age
		p.Age = &age
	}
	if f.Gender != "" && f.Gender != extraction.GenderUnknown {
		p.Gender = f.Gender
	}
	if f.Phone != "" {
		phone := f.Phone
		p.PhoneNumber = &phone
	}
	set(&p.Email, f.Email)
	set(&p.Address, f.Address)
	set(&p.City, f.City)
	set(&p.State, f.State)
	set(&p.Pincode, f.Pincode)
	set(&p.Location, f.Location)
	set(&p.HospitalClinic, f.HospitalClinic)
	set(&p.DoctorName, f.DoctorName)
	if p.Location == "" {
		set(&p.Location, f.DefaultLocation)
	}
	if p.HospitalClinic == "" {
		set(&p.HospitalClinic, f.DefaultHospital)
	}
	if f.SourceDocumentID != "" {
		id := f.SourceDocumentID
		p.SourceDocumentID = &id
	}
	p.UpdatedAt = now
}
