package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/healthbridge/platform/pkg/classifier"
	"github.com/healthbridge/platform/pkg/common/httpclient"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/common/models"
	"github.com/healthbridge/platform/pkg/dlp"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/normalizer"
	"github.com/healthbridge/platform/pkg/observability/metrics"
	"github.com/healthbridge/platform/pkg/pipeline"
)

const eventSource = "processing-service"

const (
	modeDocument = "document"
	modeText     = "text"
	modeBatch    = "batch"
)

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) *pipeline.Result
	AvailableServices() []models.ServiceStatus
	Chains() map[string][]string
}

type Saver interface {
	NormalizeAndSave(ctx context.Context, data extraction.Extraction, opts normalizer.Options) ([]normalizer.SavedPatient, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishKeyed(ctx context.Context, key, eventType, source string, data map[string]interface{}) error
}

type Defaults struct {
	Hospital string
	Location string
}

type Service struct {
	validator  *Validator
	repo       Repository
	pipeline   Processor
	normalizer Saver
	masker     *dlp.Detector
	defaults   Defaults
	retention  time.Duration

	jobs   Publisher
	events Publisher
	dlq    Publisher

	jobAttempts     int
	publishAttempts int
	publishBackoff  time.Duration
}

func NewService(validator *Validator, repo Repository, proc Processor, saver Saver, masker *dlp.Detector, defaults Defaults, retention time.Duration) *Service {
	return &Service{
		validator:  validator,
		repo:       repo,
		pipeline:   proc,
		normalizer: saver,
		masker:     masker,
		defaults:   defaults,
		retention:  retention,

		jobAttempts:     3,
		publishAttempts: 3,
		publishBackoff:  200 * time.Millisecond,
	}
}

// WithRetries bounds how often a queued job is re-run after a transient
// provider failure and how often a Kafka publish is attempted. Non-positive
// values keep the defaults.
func (s *Service) WithRetries(jobAttempts, publishAttempts int, backoff time.Duration) *Service {
	if jobAttempts > 0 {
		s.jobAttempts = jobAttempts
	}
	if publishAttempts > 0 {
		s.publishAttempts = publishAttempts
	}
	if backoff > 0 {
		s.publishBackoff = backoff
	}
	return s
}

// WithPublishers enables async jobs and processed events. Any may be nil.
func (s *Service) WithPublishers(jobs, events, dlq Publisher) *Service {
	s.jobs = jobs
	s.events = events
	s.dlq = dlq
	return s
}

func (s *Service) ProcessDocument(ctx context.Context, up DocumentUpload) (*models.ProcessResponse, error) {
	if err := s.validator.Validate(up); err != nil {
		return nil, err
	}

	doc := s.newDocument(up.Filename, up.ContentType, int64(len(up.Content)), up.HospitalName, up.Location)
	if hinted, ok := classifier.ResolveHint(up.DocumentType); ok {
		doc.DocumentType = recordType(hinted)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	job := models.ProcessingJob{
		DocumentID:   doc.ID,
		Filename:     up.Filename,
		ContentType:  up.ContentType,
		DocumentType: up.DocumentType,
		Content:      up.Content,
		HospitalName: up.HospitalName,
		Location:     up.Location,
		Mode:         modeDocument,
	}
	if up.Async {
		return s.enqueue(ctx, doc, job)
	}

	result, saved, err := s.run(ctx, doc, job, false)
	resp := processResponse(doc, result, saved, up.IncludeRaw)
	return resp, err
}

func (s *Service) ProcessText(ctx context.Context, req TextRequest) (*models.ProcessResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	doc := s.newDocument("clinical_text.txt", "text/plain", int64(len(req.Text)), req.HospitalName, req.Location)
	doc.RawExtractedText = req.Text
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	result, saved, err := s.run(ctx, doc, models.ProcessingJob{
		DocumentID:   doc.ID,
		Filename:     doc.OriginalFilename,
		ContentType:  "text/plain",
		DocumentType: string(classifier.ClinicalText),
		Content:      []byte(req.Text),
		HospitalName: req.HospitalName,
		Location:     req.Location,
		Mode:         modeText,
	}, false)
	return processResponse(doc, result, saved, req.IncludeRaw), err
}

func (s *Service) ProcessBatch(ctx context.Context, up BatchUpload) (*models.BatchResponse, error) {
	if err := s.validator.Validate(up); err != nil {
		return nil, err
	}

	doc := s.newDocument(up.Filename, up.ContentType, int64(len(up.Content)), up.HospitalName, up.Location)
	doc.DocumentType = TypeClinicalDB
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	result, saved, err := s.run(ctx, doc, models.ProcessingJob{
		DocumentID:   doc.ID,
		Filename:     up.Filename,
		ContentType:  up.ContentType,
		DocumentType: string(classifier.StructuredData),
		Content:      up.Content,
		HospitalName: up.HospitalName,
		Location:     up.Location,
		Mode:         modeBatch,
		ColumnMap:    up.ColumnMapping,
	}, false)

	resp := &models.BatchResponse{
		Success:    result != nil && result.Success && err == nil,
		DocumentID: doc.ID,
		Status:     doc.ProcessingStatus,
		Patients:   []models.PatientSummary{},
		Error:      doc.ProcessingError,
	}
	if result != nil {
		resp.TotalRecords = len(result.Data.Records)
	}
	for _, p := range saved {
		resp.Patients = append(resp.Patients, models.PatientSummary{ID: p.Patient.ID, Name: p.Patient.Name, Diseases: p.Diseases})
	}
	resp.ProcessedCount = len(saved)
	resp.FailedCount = resp.TotalRecords - resp.ProcessedCount
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, err
}

// HandleJob processes a queued document.queued event.
func (s *Service) HandleJob(ctx context.Context, event models.Event) error {
	if event.Type != models.EventDocumentQueued {
		logger.Log.WithField("event_type", event.Type).Debug("ignoring event")
		return nil
	}

	var job models.ProcessingJob
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("decoding job: %w", err)
	}

	doc, err := s.repo.Get(ctx, job.DocumentID)
	if err != nil {
		metrics.ObserveJob("missing")
		return fmt.Errorf("loading document %s: %w", job.DocumentID, err)
	}
	if doc.ProcessingStatus == StatusCompleted || doc.ProcessingStatus == StatusPartial {
		metrics.ObserveJob("duplicate")
		return nil
	}

	_, _, err = s.run(ctx, doc, job, true)
	switch {
	case err == nil:
		metrics.ObserveJob(doc.ProcessingStatus)
	case extraction.CodeOf(err) == extraction.ErrExhausted:
		if s.willRetry(job, err) {
			return s.requeue(ctx, doc, job)
		}
		// Permanent provider failures are recorded on the document.
		metrics.ObserveJob("failed")
		return nil
	default:
		metrics.ObserveJob("error")
	}
	return err
}

// willRetry reports whether a queued job that failed with err gets another
// attempt.
func (s *Service) willRetry(job models.ProcessingJob, err error) bool {
	return s.jobs != nil && extraction.IsRetryable(err) && job.Attempt+1 < s.jobAttempts
}

// requeue publishes the job again with its attempt counter bumped. A publish
// failure is returned so the consumer leaves the message uncommitted.
func (s *Service) requeue(ctx context.Context, doc *Document, job models.ProcessingJob) error {
	job.Attempt++
	payload, err := jobPayload(job)
	if err != nil {
		return err
	}

	doc.ProcessingStatus = StatusPending
	if err := s.repo.Update(ctx, doc); err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if err := s.send(ctx, s.jobs, doc.ID, models.EventDocumentQueued, payload); err != nil {
		return fmt.Errorf("requeueing document: %w", err)
	}

	metrics.ObserveJob("requeued")
	logger.WithDocument(doc.ID, job.DocumentType).WithField("attempt", job.Attempt).Warn("document requeued after transient failure")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Status() models.StatusResponse {
	return models.StatusResponse{
		Services: s.pipeline.AvailableServices(),
		Chains:   s.pipeline.Chains(),
	}
}

func (s *Service) Cleanup(ctx context.Context) error {
	removed, err := s.repo.CleanupExpired(ctx, s.retention)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Log.WithField("removed", removed).Info("expired documents cleaned up")
	}
	return nil
}

func (s *Service) newDocument(filename, contentType string, size int64, hospital, location string) *Document {
	return &Document{
		ID:                 uuid.New().String(),
		OriginalFilename:   filename,
		DocumentType:       TypeOther,
		FileType:           contentType,
		FileSize:           size,
		ProcessingStatus:   StatusPending,
		HospitalClinicName: hospital,
		SourceLocation:     location,
	}
}

func (s *Service) enqueue(ctx context.Context, doc *Document, job models.ProcessingJob) (*models.ProcessResponse, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("async processing not configured")
	}

	payload, err := jobPayload(job)
	if err != nil {
		return nil, err
	}
	if err := s.send(ctx, s.jobs, doc.ID, models.EventDocumentQueued, payload); err != nil {
		logger.Log.WithError(err).WithField("document_id", doc.ID).Error("failed to enqueue document")
		doc.ProcessingStatus = StatusFailed
		doc.ProcessingError = err.Error()
		_ = s.repo.Update(ctx, doc)
		if s.dlq != nil {
			if dlqErr := s.send(ctx, s.dlq, doc.ID, models.EventDocumentQueued, payload); dlqErr != nil {
				logger.Log.WithError(dlqErr).Error("failed to push job to DLQ")
			}
		}
		return nil, fmt.Errorf("enqueueing document: %w", err)
	}

	return &models.ProcessResponse{
		Success:    true,
		DocumentID: doc.ID,
		Status:     StatusPending,
	}, nil
}

// run drives a document from processing to completed, partial or failed. The
// returned error is EXHAUSTED when every provider failed. A batch where only
// some records were saved ends partial without an error.
func (s *Service) run(ctx context.Context, doc *Document, job models.ProcessingJob, queued bool) (*pipeline.Result, []normalizer.SavedPatient, error) {
	log := logger.WithDocument(doc.ID, job.DocumentType).WithField("mode", job.Mode)

	doc.ProcessingStatus = StatusProcessing
	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("updating document: %w", err)
	}

	req := pipeline.Request{
		Content:     job.Content,
		ContentType: job.ContentType,
		Filename:    job.Filename,
		Hint:        job.DocumentType,
	}
	if job.Mode == modeBatch {
		req.Options.ColumnMapping = job.ColumnMap
	}
	result := s.pipeline.Process(ctx, req)
	doc.DocumentType = recordType(result.DocumentType)

	if err := s.repo.AddLogs(ctx, processingLogs(doc.ID, result)); err != nil {
		log.WithError(err).Warn("failed to write processing logs")
	}

	if !result.Success {
		err := result.Err()
		s.finish(ctx, doc, StatusFailed, result.ErrorMessage, log)
		if !queued || !s.willRetry(job, err) {
			s.publish(ctx, doc, models.EventDocumentFailed, result, nil)
		}
		return result, nil, err
	}

	if data, err := json.Marshal(result.Data); err == nil {
		doc.StructuredData = datatypes.JSON(data)
	}

	hospital := firstNonEmpty(job.HospitalName, s.defaults.Hospital)
	location := firstNonEmpty(job.Location, s.defaults.Location)
	saved, err := s.normalizer.NormalizeAndSave(ctx, result.Data, normalizer.Options{
		SourceDocumentID: doc.ID,
		DefaultHospital:  hospital,
		DefaultLocation:  location,
	})
	if err != nil && len(saved) == 0 {
		s.finish(ctx, doc, StatusFailed, err.Error(), log)
		return result, saved, fmt.Errorf("saving extraction: %w", err)
	}
	if err != nil {
		log.WithError(err).WithField("saved", len(saved)).Warn("extraction partially saved")
		s.finish(ctx, doc, StatusPartial, err.Error(), log.WithField("patients", len(saved)))
		s.publish(ctx, doc, models.EventDocumentProcessed, result, saved)
		return result, saved, nil
	}

	s.finish(ctx, doc, StatusCompleted, "", log.WithField("patients", len(saved)))
	s.publish(ctx, doc, models.EventDocumentProcessed, result, saved)
	return result, saved, nil
}

func (s *Service) finish(ctx context.Context, doc *Document, status, message string, log *logrus.Entry) {
	now := time.Now().UTC()
	doc.ProcessingStatus = status
	doc.ProcessingError = message
	doc.ProcessedAt = &now
	if err := s.repo.Update(ctx, doc); err != nil {
		log.WithError(err).Error("failed to update document status")
	}
	log.WithField("status", status).Info("document processing finished")
}

// publish emits a masked summary of the run. Failures are logged only.
func (s *Service) publish(ctx context.Context, doc *Document, eventType string, result *pipeline.Result, saved []normalizer.SavedPatient) {
	if s.events == nil {
		return
	}
	payload := pipeline.Summarize(result)
	payload["document_id"] = doc.ID
	payload["record_type"] = doc.DocumentType
	payload["patients_saved"] = len(saved)
	payload["patients_created"] = countCreated(saved)
	payload["status"] = doc.ProcessingStatus

	if detection := s.masker.Detect(payload); detection.Detected {
		logger.Log.WithFields(map[string]interface{}{
			"document_id": doc.ID,
			"phi_types":   detection.Types,
		}).Debug("masking PHI in outbound event")
	}
	payload = s.masker.Sanitize(payload)

	if err := s.send(ctx, s.events, doc.ID, eventType, payload); err != nil {
		logger.Log.WithError(err).WithField("document_id", doc.ID).Error("failed to publish processing event")
		if s.dlq != nil {
			_ = s.send(ctx, s.dlq, doc.ID, eventType, payload)
		}
	}
}

// send publishes with exponential backoff between attempts.
func (s *Service) send(ctx context.Context, p Publisher, key, eventType string, payload map[string]interface{}) error {
	return httpclient.Retry(ctx, s.publishAttempts, s.publishBackoff, func() error {
		return p.PublishKeyed(ctx, key, eventType, eventSource, payload)
	})
}

func processingLogs(documentID string, result *pipeline.Result) []ProcessingLog {
	now := time.Now().UTC()
	logs := []ProcessingLog{{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Step:       "classification",
		Status:     StatusCompleted,
		Message:    fmt.Sprintf("%s (%s)", result.DocumentType, result.ContentCategory),
		CreatedAt:  now,
	}}
	for i, name := range result.ServicesTried {
		entry := ProcessingLog{
			ID:           uuid.New().String(),
			DocumentID:   documentID,
			Step:         "extraction",
			Status:       StatusFailed,
			APIUsed:      name,
			ResponseData: datatypes.JSONMap(result.RawResponses[name]),
			CreatedAt:    now.Add(time.Duration(i+1) * time.Millisecond),
		}
		if result.Success && name == result.ServiceUsed {
			entry.Status = StatusCompleted
		}
		if result.Cached {
			entry.Message = "served from result cache"
		}
		logs = append(logs, entry)
	}
	return logs
}

func processResponse(doc *Document, result *pipeline.Result, saved []normalizer.SavedPatient, includeRaw bool) *models.ProcessResponse {
	resp := &models.ProcessResponse{
		DocumentID:    doc.ID,
		DiseasesFound: []string{},
		Status:        doc.ProcessingStatus,
	}
	if result == nil {
		return resp
	}
	resp.Success = result.Success && (doc.ProcessingStatus == StatusCompleted || doc.ProcessingStatus == StatusPartial)
	resp.DocumentType = string(result.DocumentType)
	resp.ContentCategory = string(result.ContentCategory)
	resp.ProcessingMethod = result.ServiceUsed
	resp.ServicesTried = result.ServicesTried
	resp.PatientsCreated = len(saved)
	resp.Error = doc.ProcessingError

	seen := map[string]bool{}
	for _, p := range saved {
		for _, d := range p.Diseases {
			if !seen[d] {
				seen[d] = true
				resp.DiseasesFound = append(resp.DiseasesFound, d)
			}
		}
	}
	if includeRaw {
		raw := make(map[string]interface{}, len(result.RawResponses))
		for k, v := range result.RawResponses {
			raw[k] = v
		}
		resp.RawData = raw
	}
	return resp
}

func jobPayload(job models.ProcessingJob) (map[string]interface{}, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("encoding job: %w", err)
	}
	return payload, nil
}

func countCreated(saved []normalizer.SavedPatient) int {
	n := 0
	for _, p := range saved {
		if p.Created {
			n++
		}
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
