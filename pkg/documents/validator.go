package documents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var errEmptyContent = errors.New("empty file")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// DocumentUpload is a single file submitted for extraction. DocumentType is
// a hint; unrecognised values are ignored by classification.
type DocumentUpload struct {
	Filename     string `validate:"required"`
	ContentType  string
	Content      []byte `validate:"required,min=1"`
	DocumentType string `validate:"max=64"`
	HospitalName string `validate:"max=255"`
	Location     string `validate:"max=255"`
	IncludeRaw   bool
	Async        bool
}

type TextRequest struct {
	Text         string `json:"text" validate:"required"`
	HospitalName string `json:"hospital_name,omitempty" validate:"max=255"`
	Location     string `json:"location,omitempty" validate:"max=255"`
	IncludeRaw   bool   `json:"include_raw,omitempty"`
}

type BatchUpload struct {
	Filename      string `validate:"required"`
	ContentType   string
	Content       []byte            `validate:"required,min=1"`
	ColumnMapping map[string]string `validate:"omitempty,dive,keys,required,endkeys,required"`
	HospitalName  string            `validate:"max=255"`
	Location      string            `validate:"max=255"`
}

type Validator struct {
	validate *validator.Validate
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{validate: validator.New(), maxBytes: maxBytes}
}

func (v *Validator) Validate(req interface{}) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	if err := v.validate.Struct(req); err != nil {
		return ValidationError{reason: describe(err)}
	}

	var size int
	switch r := req.(type) {
	case DocumentUpload:
		size = len(r.Content)
	case BatchUpload:
		size = len(r.Content)
	case TextRequest:
		if strings.TrimSpace(r.Text) == "" {
			return ValidationError{reason: fmt.Errorf("text required: %w", errEmptyContent)}
		}
		size = len(r.Text)
	}
	if v.maxBytes > 0 && int64(size) > v.maxBytes {
		return ValidationError{reason: fmt.Errorf("content exceeds %d bytes", v.maxBytes)}
	}
	return nil
}

func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "min":
		if field == "content" {
			return errEmptyContent
		}
		return fmt.Errorf("%s required", field)
	case "max":
		return fmt.Errorf("%s too long", field)
	default:
		return fmt.Errorf("%s invalid", field)
	}
}
