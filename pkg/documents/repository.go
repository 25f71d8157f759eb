package documents

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("document not found")

type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Update(ctx context.Context, doc *Document) error
	AddLogs(ctx context.Context, logs []ProcessingLog) error
	Get(ctx context.Context, id string) (*Document, error)
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Document{}, &ProcessingLog{})
}

func (r *GormRepository) Create(ctx context.Context, doc *Document) error {
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	return r.db.WithContext(ctx).Omit("Logs").Create(doc).Error
}

func (r *GormRepository) Update(ctx context.Context, doc *Document) error {
	doc.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"document_type":        doc.DocumentType,
			"processing_status":    doc.ProcessingStatus,
			"processing_error":     doc.ProcessingError,
			"raw_extracted_text":   doc.RawExtractedText,
			"structured_data":      doc.StructuredData,
			"hospital_clinic_name": doc.HospitalClinicName,
			"source_location":      doc.SourceLocation,
			"processed_at":         doc.ProcessedAt,
			"updated_at":           doc.UpdatedAt,
		}).Error
}

func (r *GormRepository) AddLogs(ctx context.Context, logs []ProcessingLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&logs).Error
}

func (r *GormRepository) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	result := r.db.WithContext(ctx).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		First(&doc, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &doc, result.Error
}

// CleanupExpired deletes documents older than ttl with their logs. A zero ttl
// keeps everything.
func (r *GormRepository) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-ttl)
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&Document{}).Select("id").Where("created_at < ?", cutoff)
		if err := tx.Where("document_id IN (?)", stale).Delete(&ProcessingLog{}).Error; err != nil {
			return err
		}
		res := tx.Where("created_at < ?", cutoff).Delete(&Document{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
