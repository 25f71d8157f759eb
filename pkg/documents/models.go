package documents

import (
	"time"

	"gorm.io/datatypes"

	"github.com/healthbridge/platform/pkg/classifier"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusPartial    = "partial"
)

// Record-level document kinds, coarser than the classifier's types.
const (
	TypeHandwritten = "handwritten"
	TypePrintedLab  = "printed_lab"
	TypeClinicalDB  = "clinical_db"
	TypeOther       = "other"
)

type Document struct {
	ID                 string          `json:"id" gorm:"primaryKey;column:id"`
	OriginalFilename   string          `json:"original_filename" gorm:"column:original_filename"`
	DocumentType       string          `json:"document_type" gorm:"column:document_type;default:other"`
	FileType           string          `json:"file_type" gorm:"column:file_type"`
	FileSize           int64           `json:"file_size" gorm:"column:file_size"`
	ProcessingStatus   string          `json:"processing_status" gorm:"column:processing_status;index"`
	ProcessingError    string          `json:"processing_error,omitempty" gorm:"column:processing_error"`
	RawExtractedText   string          `json:"raw_extracted_text,omitempty" gorm:"column:raw_extracted_text"`
	StructuredData     datatypes.JSON  `json:"structured_data,omitempty" gorm:"column:structured_data"`
	HospitalClinicName string          `json:"hospital_clinic_name,omitempty" gorm:"column:hospital_clinic_name"`
	SourceLocation     string          `json:"source_location,omitempty" gorm:"column:source_location"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty" gorm:"column:processed_at"`
	CreatedAt          time.Time       `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"column:updated_at"`
	Logs               []ProcessingLog `json:"processing_logs,omitempty" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

func (Document) TableName() string {
	return "documents"
}

type ProcessingLog struct {
	ID           string            `json:"id" gorm:"primaryKey;column:id"`
	DocumentID   string            `json:"document_id" gorm:"column:document_id;index"`
	Step         string            `json:"step" gorm:"column:step"`
	Status       string            `json:"status" gorm:"column:status"`
	Message      string            `json:"message,omitempty" gorm:"column:message"`
	APIUsed      string            `json:"api_used,omitempty" gorm:"column:api_used"`
	ResponseData datatypes.JSONMap `json:"response_data,omitempty" gorm:"column:response_data"`
	CreatedAt    time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (ProcessingLog) TableName() string {
	return "processing_logs"
}

func recordType(t classifier.DocumentType) string {
	switch t {
	case classifier.Prescription:
		return TypeHandwritten
	case classifier.LabReport:
		return TypePrintedLab
	case classifier.StructuredData:
		return TypeClinicalDB
	default:
		return TypeOther
	}
}
