package extraction

import (
	"context"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPartial Status = "partial"
)

// ProcessingResult is what every provider returns. Business failures are
// FAILED results, never Go errors.
type ProcessingResult struct {
	Status       Status                 `json:"status"`
	Data         Extraction             `json:"extracted_data"`
	RawResponse  map[string]interface{} `json:"raw_response,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ServiceUsed  string                 `json:"service_used"`
	Confidence   float64                `json:"confidence_score"`

	// Retryable marks a failure that may succeed on a later attempt.
	Retryable bool `json:"-"`
}

func (r ProcessingResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

func Succeeded(provider string, data Extraction, raw map[string]interface{}, confidence float64) ProcessingResult {
	return ProcessingResult{
		Status:      StatusSuccess,
		Data:        data,
		RawResponse: raw,
		ServiceUsed: provider,
		Confidence:  confidence,
	}
}

// Failed converts err into a FAILED result. Any raw response gathered before
// the failure is kept for diagnosis.
func Failed(provider string, err error, raw map[string]interface{}) ProcessingResult {
	return ProcessingResult{
		Status:       StatusFailed,
		RawResponse:  raw,
		ErrorMessage: err.Error(),
		ServiceUsed:  provider,
		Retryable:    IsRetryable(err),
	}
}

// Input is the content handed to a provider. The pipeline sets Text for
// text-oriented providers and Data otherwise.
type Input struct {
	Data        []byte
	Text        string
	ContentType string
	Filename    string
	Options     Options
}

func (in Input) IsText() bool {
	return in.Data == nil && in.Text != ""
}

// Bytes returns the payload as bytes regardless of representation.
func (in Input) Bytes() []byte {
	if in.Data != nil {
		return in.Data
	}
	return []byte(in.Text)
}

// AsText returns the payload as text regardless of representation.
func (in Input) AsText() string {
	if in.Text != "" || in.Data == nil {
		return in.Text
	}
	return TextOf(in.Data)
}

type Options struct {
	// DocumentType is the classified type, used to tailor AI prompts.
	DocumentType string
	// ColumnMapping overrides structured-data column detection: semantic field -> source column.
	ColumnMapping map[string]string
	// InferDiseases toggles lab abnormal-value inference; nil means enabled.
	InferDiseases *bool
}

func (o Options) InferDiseasesEnabled() bool {
	return o.InferDiseases == nil || *o.InferDiseases
}

// Provider is one extraction service. IsAvailable only inspects configuration.
type Provider interface {
	Name() string
	IsAvailable() bool
	Process(ctx context.Context, in Input) ProcessingResult
}
