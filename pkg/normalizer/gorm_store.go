package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists entities in Postgres. Atomic runs fn inside a single
// transaction and serialises writers on the patient's identity key.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Patient{}, &Disease{}, &PatientDisease{})
}

func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) UpsertPatient(ctx context.Context, fields PatientFields) (*Patient, bool, error) {
	db := s.db.WithContext(ctx)
	key := nameKey(fields.Name)
	if key == "" {
		return nil, false, fmt.Errorf("patient name required")
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return nil, false, fmt.Errorf("lock patient identity: %w", err)
		}
	}

	query := db.Where("name_key = ?", key)
	if fields.Phone != "" {
		query = query.Where("phone_number = ?", fields.Phone)
	}
	var existing Patient
	err := query.Order("created_at").First(&existing).Error
	now := time.Now().UTC()
	switch {
	case err == nil:
		mergePatient(&existing, fields, now)
		if err := db.Save(&existing).Error; err != nil {
			return nil, false, fmt.Errorf("update patient: %w", err)
		}
		return &existing, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		p := newPatient(uuid.New().String(), fields, now)
		if err := db.Create(p).Error; err != nil {
			return nil, false, fmt.Errorf("create patient: %w", err)
		}
		return p, true, nil
	default:
		return nil, false, fmt.Errorf("find patient: %w", err)
	}
}

func (s *GormStore) GetOrCreateDisease(ctx context.Context, in DiseaseInput) (*Disease, bool, error) {
	db := s.db.WithContext(ctx)
	now := time.Now().UTC()
	candidate := Disease{
		ID:        uuid.New().String(),
		Name:      in.Name,
		NameKey:   nameKey(in.Name),
		ICDCode:   in.ICDCode,
		Category:  in.Category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(in.Abbreviations) > 0 {
		candidate.Abbreviations, _ = json.Marshal(in.Abbreviations)
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create disease: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &candidate, true, nil
	}

	var existing Disease
	if err := db.Where("name_key = ?", candidate.NameKey).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("find disease: %w", err)
	}
	if existing.ICDCode == "" && in.ICDCode != "" {
		existing.ICDCode = in.ICDCode
		existing.UpdatedAt = now
		if err := db.Model(&existing).Updates(map[string]interface{}{
			"icd_code":   existing.ICDCode,
			"updated_at": existing.UpdatedAt,
		}).Error; err != nil {
			return nil, false, fmt.Errorf("backfill icd code: %w", err)
		}
	}
	return &existing, false, nil
}

func (s *GormStore) GetOrCreatePatientDisease(ctx context.Context, patient *Patient, disease *Disease, defaults PatientDisease) (*PatientDisease, bool, error) {
	db := s.db.WithContext(ctx)
	link := defaults
	link.ID = uuid.New().String()
	link.PatientID = patient.ID
	link.DiseaseID = disease.ID
	if link.Status == "" {
		link.Status = StatusActive
	}
	link.CreatedAt = time.Now().UTC()

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "patient_id"}, {Name: "disease_id"}},
		DoNothing: true,
	}).Create(&link)
	if res.Error != nil {
		return nil, false, fmt.Errorf("link disease: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &link, true, nil
	}

	var existing PatientDisease
	if err := db.Where("patient_id = ? AND disease_id = ?", patient.ID, disease.ID).First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("find patient disease: %w", err)
	}
	return &existing, false, nil
}
