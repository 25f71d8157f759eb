package normalizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/observability/metrics"
	"github.com/healthbridge/platform/pkg/terminology"
)

type Options struct {
	SourceDocumentID string
	DefaultHospital  string
	DefaultLocation  string
}

// SavedPatient is one persisted record and the canonical diseases linked to it.
type SavedPatient struct {
	Patient  Patient  `json:"patient"`
	Created  bool     `json:"created"`
	Diseases []string `json:"diseases"`
}

type Service struct {
	store       Store
	transformer *Transformer
}

func NewService(store Store, cat terminology.Catalog) *Service {
	return &Service{
		store:       store,
		transformer: NewTransformer(cat),
	}
}

// NormalizeAndSave upserts every record in data. Records without a patient
// name are skipped; a failing record does not stop the rest of the batch.
func (s *Service) NormalizeAndSave(ctx context.Context, data extraction.Extraction, opts Options) ([]SavedPatient, error) {
	saved := make([]SavedPatient, 0, len(data.Records))
	var errs []error

	for i, rec := range data.Records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		fields := s.transformer.Patient(rec, opts)
		if fields.Name == "" {
			logger.Log.WithFields(map[string]interface{}{
				"record":      i,
				"document_id": opts.SourceDocumentID,
			}).Warn("skipping record without patient name")
			metrics.ObserveRecordSkipped()
			continue
		}

		result, err := s.saveRecord(ctx, fields, s.transformer.Diseases(rec), opts)
		if err != nil {
			logger.Log.WithError(err).WithField("record", i).Error("failed to save record")
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		saved = append(saved, *result)
	}

	return saved, errors.Join(errs...)
}

func (s *Service) saveRecord(ctx context.Context, fields PatientFields, diseases []DiseaseInput, opts Options) (*SavedPatient, error) {
	var result SavedPatient
	err := s.store.Atomic(ctx, func(tx Store) error {
		patient, created, err := tx.UpsertPatient(ctx, fields)
		if err != nil {
			return err
		}
		result = SavedPatient{Patient: *patient, Created: created, Diseases: []string{}}

		for _, in := range diseases {
			disease, _, err := tx.GetOrCreateDisease(ctx, in)
			if err != nil {
				return err
			}
			defaults := PatientDisease{
				Severity:      in.Severity,
				Status:        StatusActive,
				DiagnosisDate: in.DiagnosisDate,
			}
			if opts.SourceDocumentID != "" {
				id := opts.SourceDocumentID
				defaults.SourceDocumentID = &id
			}
			_, linked, err := tx.GetOrCreatePatientDisease(ctx, patient, disease, defaults)
			if err != nil {
				return err
			}
			if linked {
				metrics.ObserveDiseaseLink()
			}
			result.Diseases = append(result.Diseases, disease.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObservePatientUpsert(result.Created)
	logger.Log.WithFields(map[string]interface{}{
		"patient_id": result.Patient.ID,
		"created":    result.Created,
		"diseases":   len(result.Diseases),
	}).Info("patient saved")
	return &result, nil
}
