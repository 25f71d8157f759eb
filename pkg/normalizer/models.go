package normalizer

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusActive = "active"
)

type Patient struct {
	ID               string    `gorm:"primaryKey;column:id" json:"id"`
	Name             string    `gorm:"column:name;not null" json:"name"`
	NameKey          string    `gorm:"column:name_key;index:idx_patients_identity" json:"-"`
	Age              *int      `gorm:"column:age" json:"age,omitempty"`
	Gender           string    `gorm:"column:gender;default:unknown" json:"gender"`
	PhoneNumber      *string   `gorm:"column:phone_number;index:idx_patients_identity" json:"phone_number,omitempty"`
	Email            string    `gorm:"column:email" json:"email,omitempty"`
	Address          string    `gorm:"column:address" json:"address,omitempty"`
	City             string    `gorm:"column:city" json:"city,omitempty"`
	State            string    `gorm:"column:state" json:"state,omitempty"`
	Pincode          string    `gorm:"column:pincode" json:"pincode,omitempty"`
	Location         string    `gorm:"column:location" json:"location,omitempty"`
	HospitalClinic   string    `gorm:"column:hospital_clinic" json:"hospital_clinic,omitempty"`
	DoctorName       string    `gorm:"column:doctor_name" json:"doctor_name,omitempty"`
	SourceDocumentID *string   `gorm:"column:source_document_id;index" json:"source_document_id,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}

type Disease struct {
	ID            string         `gorm:"primaryKey;column:id" json:"id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	NameKey       string         `gorm:"column:name_key;uniqueIndex" json:"-"`
	ICDCode       string         `gorm:"column:icd_code" json:"icd_code,omitempty"`
	Category      string         `gorm:"column:category" json:"category,omitempty"`
	Abbreviations datatypes.JSON `gorm:"column:abbreviations" json:"abbreviations,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Disease) TableName() string {
	return "diseases"
}

type PatientDisease struct {
	ID               string     `gorm:"primaryKey;column:id" json:"id"`
	PatientID        string     `gorm:"column:patient_id;uniqueIndex:idx_patient_disease" json:"patient_id"`
	DiseaseID        string     `gorm:"column:disease_id;uniqueIndex:idx_patient_disease" json:"disease_id"`
	DiagnosisDate    *time.Time `gorm:"column:diagnosis_date" json:"diagnosis_date,omitempty"`
	Severity         string     `gorm:"column:severity" json:"severity,omitempty"`
	Status           string     `gorm:"column:status;default:active" json:"status"`
	SourceDocumentID *string    `gorm:"column:source_document_id" json:"source_document_id,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (PatientDisease) TableName() string {
	return "patient_diseases"
}

// PatientFields are the demographics read from one extraction record. Empty
// values never overwrite stored ones.
type PatientFields struct {
	Name             string
	Age              *int
	Gender           string
	Phone            string
	Email            string
	Address          string
	City             string
	State            string
	Pincode          string
	Location         string
	HospitalClinic   string
	DoctorName       string
	SourceDocumentID string

	// Fallbacks applied only when neither the record nor the stored
	// patient has a value.
	DefaultLocation string
	DefaultHospital string
}

// DiseaseInput is a canonicalised disease reference ready to be linked.
type DiseaseInput struct {
	Name          string
	ICDCode       string
	Category      string
	Severity      string
	Abbreviations []string
	DiagnosisDate *time.Time
}
