package models

import (
	"time"
)

// Event types carried on the processing topics.
const (
	EventDocumentQueued    = "document.queued"
	EventDocumentProcessed = "document.processed"
	EventDocumentFailed    = "document.failed"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// ProcessingJob is the payload of a document.queued event. Content travels
// base64-encoded through encoding/json.
type ProcessingJob struct {
	DocumentID   string            `json:"document_id"`
	Filename     string            `json:"filename"`
	ContentType  string            `json:"content_type"`
	DocumentType string            `json:"document_type,omitempty"`
	Content      []byte            `json:"content"`
	HospitalName string            `json:"hospital_name,omitempty"`
	Location     string            `json:"location,omitempty"`
	Mode         string            `json:"mode"` // document, text, batch
	ColumnMap    map[string]string `json:"column_mapping,omitempty"`
	Attempt      int               `json:"attempt,omitempty"`
}

// Processing API
type ProcessResponse struct {
	Success          bool                   `json:"success"`
	DocumentID       string                 `json:"document_id"`
	DocumentType     string                 `json:"document_type"`
	ContentCategory  string                 `json:"content_category,omitempty"`
	ProcessingMethod string                 `json:"processing_method,omitempty"`
	PatientsCreated  int                    `json:"patients_created"`
	DiseasesFound    []string               `json:"diseases_found"`
	ServicesTried    []string               `json:"services_tried,omitempty"`
	Status           string                 `json:"status,omitempty"`
	Error            string                 `json:"error,omitempty"`
	RawData          map[string]interface{} `json:"raw_data,omitempty"`
}

type BatchResponse struct {
	Success        bool             `json:"success"`
	DocumentID     string           `json:"document_id"`
	Status         string           `json:"status,omitempty"`
	TotalRecords   int              `json:"total_records"`
	ProcessedCount int              `json:"processed_count"`
	FailedCount    int              `json:"failed_count"`
	Patients       []PatientSummary `json:"patients"`
	Error          string           `json:"error,omitempty"`
}

type PatientSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Diseases []string `json:"diseases"`
}

type ServiceStatus struct {
	Name         string `json:"name"`
	Configured   bool   `json:"configured"`
	BreakerState string `json:"breaker_state,omitempty"`
}

type StatusResponse struct {
	Services []ServiceStatus     `json:"services"`
	Chains   map[string][]string `json:"chains"`
}
