package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/platform/pkg/classifier"
	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/providers/structured"
)

type fakeProvider struct {
	name      string
	available bool
	result    extraction.ProcessingResult
	calls     []extraction.Input
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return f.available }

func (f *fakeProvider) Process(_ context.Context, in extraction.Input) extraction.ProcessingResult {
	f.calls = append(f.calls, in)
	res := f.result
	res.ServiceUsed = f.name
	return res
}

type textFake struct{ *fakeProvider }

func (t textFake) WantsText() bool { return true }

func succeeding(name string, patient string) *fakeProvider {
	rec := extraction.Empty()
	rec.Patient.Name = patient
	rec.Diseases = []extraction.Disease{{Name: "Hypertension"}}
	return &fakeProvider{
		name:      name,
		available: true,
		result:    extraction.Succeeded(name, extraction.Single(rec), map[string]interface{}{"ok": true}, 0.8),
	}
}

func failing(name, msg string) *fakeProvider {
	return &fakeProvider{
		name:      name,
		available: true,
		result:    extraction.Failed(name, errors.New(msg), map[string]interface{}{"error": msg}),
	}
}

func unavailable(name string) *fakeProvider {
	return &fakeProvider{name: name}
}

func TestPrescriptionWithoutProvidersIsExhausted(t *testing.T) {
	ai := unavailable("openai")
	p := New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), ai))

	res := p.Process(context.Background(), Request{
		Content:     []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0},
		ContentType: "image/jpeg",
		Filename:    "scan_0001.jpg",
	})

	assert.False(t, res.Success)
	assert.Equal(t, classifier.Prescription, res.DocumentType)
	assert.Equal(t, []string{}, res.ServicesTried)
	assert.Equal(t, "No available services", res.ErrorMessage)
	assert.Empty(t, ai.calls)
	assert.Equal(t, extraction.ErrExhausted, extraction.CodeOf(res.Err()))
}

func TestFallbackToNextProvider(t *testing.T) {
	lab := failing("eka_lab_report", "HTTP 500: boom")
	ai := succeeding("openai", "Meena")
	p := New(Chains(lab, unavailable("eka_scribe"), structured.New(), ai))

	res := p.Process(context.Background(), Request{
		Content:     []byte("%PDF-1.4 binary"),
		ContentType: "application/pdf",
		Filename:    "blood_test_report.pdf",
	})

	require.True(t, res.Success)
	assert.Equal(t, classifier.LabReport, res.DocumentType)
	assert.Equal(t, []string{"eka_lab_report", "openai"}, res.ServicesTried)
	assert.Equal(t, "openai", res.ServiceUsed)
	assert.Equal(t, "Meena", res.Data.Records[0].Patient.Name)
	assert.Contains(t, res.RawResponses, "eka_lab_report")
	assert.Empty(t, res.ErrorMessage)

	require.Len(t, ai.calls, 1)
	assert.Equal(t, []byte("%PDF-1.4 binary"), ai.calls[0].Data)
	assert.Equal(t, "lab_report", ai.calls[0].Options.DocumentType)
}

func TestFirstSuccessShortCircuits(t *testing.T) {
	notes := textFake{succeeding("eka_scribe", "Ravi")}
	ai := succeeding("openai", "Other")
	p := New(Chains(unavailable("eka_lab_report"), notes, structured.New(), ai))

	res := p.ProcessText(context.Background(), "Patient with HTN, advised follow up")

	require.True(t, res.Success)
	assert.Equal(t, "eka_scribe", res.ServiceUsed)
	assert.Equal(t, []string{"eka_scribe"}, res.ServicesTried)
	assert.Empty(t, ai.calls)
	require.Len(t, notes.calls, 1)
	assert.Equal(t, "Patient with HTN, advised follow up", notes.calls[0].Text)
	assert.Nil(t, notes.calls[0].Data)
}

func TestAllFailuresJoined(t *testing.T) {
	notes := textFake{failing("eka_scribe", "Request failed")}
	ai := failing("openai", "HTTP 429: slow down")
	p := New(Chains(unavailable("eka_lab_report"), notes, structured.New(), ai))

	res := p.Process(context.Background(), Request{Content: []byte("clinical note"), ContentType: "text/plain", Filename: "opd_note.txt"})

	assert.False(t, res.Success)
	assert.Equal(t, "eka_scribe: Request failed; openai: HTTP 429: slow down", res.ErrorMessage)
	assert.Equal(t, []string{"eka_scribe", "openai"}, res.ServicesTried)
	assert.Equal(t, "clinical note", ai.calls[0].Text)
}

func TestExhaustedErrorCarriesRetryable(t *testing.T) {
	timeout := &fakeProvider{
		name:      "eka_lab_report",
		available: true,
		result:    extraction.Failed("eka_lab_report", extraction.NewError(extraction.ErrTimeout, "eka_lab_report", "Request timed out", nil), nil),
	}
	p := New(Chains(timeout, unavailable("eka_scribe"), structured.New(), failing("openai", "HTTP 400: bad image")))

	res := p.Process(context.Background(), Request{Content: []byte("%PDF-1.4"), ContentType: "application/pdf", Filename: "lab_report.pdf"})
	require.False(t, res.Success)
	assert.True(t, res.Retryable)
	assert.True(t, extraction.IsRetryable(res.Err()))
	assert.Equal(t, extraction.ErrExhausted, extraction.CodeOf(res.Err()))

	p = New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), failing("openai", "HTTP 400: bad image")))
	res = p.Process(context.Background(), Request{Content: []byte("%PDF-1.4"), ContentType: "application/pdf", Filename: "lab_report.pdf"})
	assert.False(t, extraction.IsRetryable(res.Err()))
}

func TestPartialCountsAsFailure(t *testing.T) {
	ai := &fakeProvider{name: "openai", available: true, result: extraction.ProcessingResult{
		Status:       extraction.StatusPartial,
		Data:         extraction.Single(extraction.Empty()),
		ErrorMessage: "Could not parse JSON from model response",
	}}
	p := New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), ai))

	res := p.Process(context.Background(), Request{Content: []byte("x"), ContentType: "image/png", Filename: "rx.png"})
	assert.False(t, res.Success)
	assert.Equal(t, "openai: Could not parse JSON from model response", res.ErrorMessage)
}

func TestProcessBatchUsesStructuredParser(t *testing.T) {
	p := New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), unavailable("openai")))

	res := p.ProcessBatch(context.Background(),
		[]byte("Client,Problem\nAsha,HTN\nRavi,DM\n"),
		"export.csv", "text/plain",
		map[string]string{"name": "Client", "disease": "Problem"},
	)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, classifier.StructuredData, res.DocumentType)
	assert.True(t, res.Data.IsBatch)
	assert.Len(t, res.Data.Records, 2)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestCachedResultSkipsProviders(t *testing.T) {
	ai := succeeding("openai", "Meena")
	cache := &memoryCache{data: map[string][]byte{}}
	p := New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), ai)).WithCache(cache)

	req := Request{Content: []byte("rx image"), ContentType: "image/png", Filename: "rx.png"}
	first := p.Process(context.Background(), req)
	require.True(t, first.Success)
	assert.False(t, first.Cached)

	second := p.Process(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, "Meena", second.Data.Records[0].Patient.Name)
	assert.Len(t, ai.calls, 1)
}

func TestCacheKeyVariesWithHintAndMapping(t *testing.T) {
	base := Request{Content: []byte("same")}
	withHint := Request{Content: []byte("same"), Hint: "lab"}
	withMapping := Request{Content: []byte("same"), Options: extraction.Options{ColumnMapping: map[string]string{"name": "Client"}}}
	withType := Request{Content: []byte("same"), ContentType: "image/png"}

	key := CacheKey(base, classifier.Unknown)
	assert.Equal(t, key, CacheKey(Request{Content: []byte("same")}, classifier.Unknown))
	assert.NotEqual(t, key, CacheKey(withHint, classifier.Unknown))
	assert.NotEqual(t, key, CacheKey(withMapping, classifier.Unknown))
	assert.NotEqual(t, key, CacheKey(withType, classifier.Unknown))
	assert.NotEqual(t, key, CacheKey(base, classifier.Prescription))
}

func TestCacheMissesWhenSameBytesClassifyDifferently(t *testing.T) {
	lab := succeeding("eka_lab_report", "Meena")
	ai := succeeding("openai", "Meena")
	cache := &memoryCache{data: map[string][]byte{}}
	p := New(Chains(lab, unavailable("eka_scribe"), structured.New(), ai)).WithCache(cache)

	png := []byte("\x89PNG\r\n\x1a\n scan")
	first := p.Process(context.Background(), Request{Content: png, ContentType: "image/png", Filename: "lab_report.png"})
	require.True(t, first.Success)
	assert.Equal(t, classifier.LabReport, first.DocumentType)
	assert.Equal(t, "eka_lab_report", first.ServiceUsed)

	second := p.Process(context.Background(), Request{Content: png, ContentType: "image/png", Filename: "prescription_rx.png"})
	require.True(t, second.Success)
	assert.False(t, second.Cached)
	assert.Equal(t, classifier.Prescription, second.DocumentType)
	assert.Equal(t, "openai", second.ServiceUsed)
	assert.Len(t, ai.calls, 1)
	assert.Len(t, lab.calls, 1)
}

func TestAvailableServicesAndChains(t *testing.T) {
	p := New(Chains(unavailable("eka_lab_report"), unavailable("eka_scribe"), structured.New(), succeeding("openai", "")))

	services := p.AvailableServices()
	require.Len(t, services, 4)
	assert.Equal(t, "direct_parser", services[0].Name)
	assert.True(t, services[0].Configured)
	assert.Equal(t, "eka_lab_report", services[1].Name)
	assert.False(t, services[1].Configured)

	chains := p.Chains()
	assert.Equal(t, []string{"eka_lab_report", "openai"}, chains["lab_report"])
	assert.Equal(t, []string{"openai"}, chains["prescription"])
}

func TestSummarize(t *testing.T) {
	res := &Result{
		Success:      true,
		DocumentType: classifier.StructuredData,
		ServiceUsed:  "direct_parser",
		Data: extraction.NewBatch([]extraction.StandardizedExtraction{
			{Patient: extraction.Patient{Name: "A"}, Diseases: []extraction.Disease{{Name: "Asthma"}}},
			{Patient: extraction.Patient{Name: "B"}, Diseases: []extraction.Disease{{Name: "asthma"}, {Name: "Anemia"}}},
		}),
	}

	summary := Summarize(res)
	assert.Equal(t, 2, summary["records"])
	assert.Equal(t, []string{"Asthma", "Anemia"}, summary["diseases"])
	assert.Equal(t, []string{"A", "B"}, summary["patients"])
}
