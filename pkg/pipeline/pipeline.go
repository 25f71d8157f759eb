package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/healthbridge/platform/pkg/classifier"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/common/models"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/observability/metrics"
)

const noServicesMessage = "No available services"

// Result is the outcome of one document run. Data comes from a single
// provider; results are never merged across providers.
type Result struct {
	Success         bool                              `json:"success"`
	DocumentType    classifier.DocumentType           `json:"document_type"`
	ContentCategory classifier.ContentCategory        `json:"content_category"`
	Data            extraction.Extraction             `json:"extracted_data"`
	ServicesTried   []string                          `json:"services_tried"`
	ServiceUsed     string                            `json:"service_used"`
	Confidence      float64                           `json:"confidence_score"`
	ErrorMessage    string                            `json:"error_message,omitempty"`
	RawResponses    map[string]map[string]interface{} `json:"raw_responses"`
	Cached          bool                              `json:"cached,omitempty"`

	// Retryable is set when at least one provider failed transiently.
	Retryable bool `json:"-"`
}

// Err returns an EXHAUSTED error for failed runs. It is retryable when a
// provider in the chain failed transiently.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	err := extraction.NewError(extraction.ErrExhausted, "", r.ErrorMessage, nil)
	err.Retryable = r.Retryable
	return err
}

type Request struct {
	Content     []byte
	ContentType string
	Filename    string
	Hint        string
	Options     extraction.Options
}

// Cache stores serialized results of successful runs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// textOnly is implemented by providers that must be handed decoded text.
type textOnly interface {
	WantsText() bool
}

type breakerReporter interface {
	BreakerState() string
}

// Pipeline classifies a document and walks its fallback chain until one
// provider succeeds.
type Pipeline struct {
	chains map[classifier.DocumentType][]extraction.Provider
	cache  Cache
}

func New(chains map[classifier.DocumentType][]extraction.Provider) *Pipeline {
	return &Pipeline{chains: chains}
}

// WithCache enables result caching for Process.
func (p *Pipeline) WithCache(cache Cache) *Pipeline {
	p.cache = cache
	return p
}

func (p *Pipeline) Process(ctx context.Context, req Request) *Result {
	docType, category := classifier.Classify(req.Filename, req.ContentType, req.Content, req.Hint)
	log := logger.WithDocument("", string(docType)).WithFields(logrus.Fields{
		"filename":         req.Filename,
		"content_category": category,
	})
	log.Info("document classified")

	key := CacheKey(req, docType)
	if cached := p.lookup(ctx, key, log); cached != nil {
		return cached
	}

	chain, ok := p.chains[docType]
	if !ok {
		chain = p.chains[classifier.Unknown]
	}

	result := &Result{
		DocumentType:    docType,
		ContentCategory: category,
		ServicesTried:   []string{},
		RawResponses:    map[string]map[string]interface{}{},
	}

	var errs []string
	for _, provider := range chain {
		name := provider.Name()
		if !provider.IsAvailable() {
			log.WithField("provider", name).Debug("provider not available")
			continue
		}
		result.ServicesTried = append(result.ServicesTried, name)

		input := adapt(req, docType, category, provider)
		start := time.Now()
		res := provider.Process(ctx, input)
		result.RawResponses[name] = res.RawResponse

		plog := log.WithFields(logrus.Fields{
			"provider":    name,
			"status":      res.Status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if res.Succeeded() {
			plog.Info("provider succeeded")
			result.Success = true
			result.Data = res.Data
			result.ServiceUsed = name
			result.Confidence = res.Confidence
			break
		}
		plog.WithFields(logrus.Fields{
			"error":     res.ErrorMessage,
			"retryable": res.Retryable,
		}).Warn("provider failed")
		errs = append(errs, name+": "+res.ErrorMessage)
		result.Retryable = result.Retryable || res.Retryable

		if ctx.Err() != nil {
			break
		}
	}

	if !result.Success {
		result.ErrorMessage = noServicesMessage
		if len(errs) > 0 {
			result.ErrorMessage = strings.Join(errs, "; ")
		}
		log.WithField("services_tried", result.ServicesTried).Error("all providers failed")
	}
	metrics.ObservePipelineRun(string(docType), result.Success)

	if result.Success {
		p.store(ctx, key, result, log)
	}
	return result
}

// ProcessText runs free clinical text through the clinical chain.
func (p *Pipeline) ProcessText(ctx context.Context, text string) *Result {
	return p.Process(ctx, Request{
		Content:     []byte(text),
		ContentType: "text/plain",
		Filename:    "clinical_text.txt",
		Hint:        string(classifier.ClinicalText),
	})
}

// ProcessBatch parses a CSV or JSON export. mapping overrides column
// detection.
func (p *Pipeline) ProcessBatch(ctx context.Context, content []byte, filename, contentType string, mapping map[string]string) *Result {
	return p.Process(ctx, Request{
		Content:     content,
		ContentType: contentType,
		Filename:    filename,
		Hint:        string(classifier.StructuredData),
		Options:     extraction.Options{ColumnMapping: mapping},
	})
}

// AvailableServices reports every distinct provider across the chains.
func (p *Pipeline) AvailableServices() []models.ServiceStatus {
	seen := map[string]bool{}
	var out []models.ServiceStatus
	for _, docType := range chainOrder {
		for _, provider := range p.chains[docType] {
			if seen[provider.Name()] {
				continue
			}
			seen[provider.Name()] = true
			status := models.ServiceStatus{Name: provider.Name(), Configured: provider.IsAvailable()}
			if br, ok := provider.(breakerReporter); ok {
				status.BreakerState = br.BreakerState()
			}
			out = append(out, status)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Chains lists provider names per document type, in fallback order.
func (p *Pipeline) Chains() map[string][]string {
	out := make(map[string][]string, len(p.chains))
	for docType, chain := range p.chains {
		names := make([]string, 0, len(chain))
		for _, provider := range chain {
			names = append(names, provider.Name())
		}
		out[string(docType)] = names
	}
	return out
}

var chainOrder = []classifier.DocumentType{
	classifier.LabReport,
	classifier.Prescription,
	classifier.ClinicalText,
	classifier.StructuredData,
	classifier.Unknown,
}

// adapt hands text-only providers and the text category decoded text; every
// other provider gets the raw bytes.
func adapt(req Request, docType classifier.DocumentType, category classifier.ContentCategory, provider extraction.Provider) extraction.Input {
	opts := req.Options
	opts.DocumentType = string(docType)
	in := extraction.Input{
		ContentType: req.ContentType,
		Filename:    req.Filename,
		Options:     opts,
	}

	if t, ok := provider.(textOnly); ok && t.WantsText() {
		in.Text = textFor(req.Content, category)
		in.ContentType = "text/plain"
		return in
	}
	if category == classifier.CategoryText {
		in.Text = extraction.TextOf(req.Content)
		in.ContentType = "text/plain"
		return in
	}
	in.Data = req.Content
	return in
}

// textFor decodes content for text-only providers, reading the text layer
// of PDFs.
func textFor(content []byte, category classifier.ContentCategory) string {
	if category == classifier.CategoryPDF {
		if text, err := extraction.PDFText(content); err == nil && text != "" {
			return text
		}
	}
	return extraction.TextOf(content)
}

// CacheKey identifies a request by content, classified type, content type,
// hint and column overrides. Identical bytes classified differently never
// share an entry.
func CacheKey(req Request, docType classifier.DocumentType) string {
	h := sha256.New()
	h.Write(req.Content)
	for _, part := range []string{string(docType), strings.ToLower(req.ContentType), strings.ToLower(req.Hint)} {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	if len(req.Options.ColumnMapping) > 0 {
		mapping, _ := json.Marshal(req.Options.ColumnMapping)
		h.Write([]byte{0})
		h.Write(mapping)
	}
	if !req.Options.InferDiseasesEnabled() {
		h.Write([]byte{0, 'n'})
	}
	return "pipeline:" + hex.EncodeToString(h.Sum(nil))
}

func (p *Pipeline) lookup(ctx context.Context, key string, log *logrus.Entry) *Result {
	if p.cache == nil {
		return nil
	}
	data, found, err := p.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("result cache lookup failed")
	}
	metrics.ObserveCacheLookup(found)
	if !found {
		return nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		log.WithError(err).Warn("discarding unreadable cached result")
		return nil
	}
	result.Cached = true
	log.WithField("service_used", result.ServiceUsed).Info("serving cached result")
	return &result
}

func (p *Pipeline) store(ctx context.Context, key string, result *Result, log *logrus.Entry) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Warn("result not cacheable")
		return
	}
	if err := p.cache.Set(ctx, key, data); err != nil {
		log.WithError(err).Warn("result cache write failed")
	}
}
