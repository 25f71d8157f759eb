package labreport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/extraction"
)

const labResult = `{
	"status": "completed",
	"data": {
		"output": {
			"pii": {"s3://bucket/doc.pdf": {"1": {"Name": "Meena Iyer", "Age": {"Years": 58}, "Gender": "Female", "Facility": "Metro Labs", "DocumentDate": 1700000000}}},
			"data": [
				{"test_name": "Creatinine", "data": {"value": "1.5", "unit": "mg/dL", "display_range": "0.6-1.2"}},
				{"test_name": "Hemoglobin", "data": {"value": "13.1"}, "normalised_data": {"value": 13.4, "unit": "g/dL", "normal_range_eka": "12-15.5"}}
			]
		}
	}
}`

var pngBytes = []byte("\x89PNG\r\n\x1a\nrest-of-image")

func newTestProvider(baseURL, apiKey string) *Provider {
	return New(&config.Config{
		LabAPIKey:          apiKey,
		LabBaseURL:         baseURL,
		LabTimeout:         5 * time.Second,
		LabPollInterval:    time.Millisecond,
		LabMaxPollAttempts: 5,
	}, nil, nil)
}

func TestProcessUploadAndPoll(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/mr/api/v2/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "smart", r.URL.Query().Get("task"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "document.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		body, _ := io.ReadAll(file)
		assert.Equal(t, pngBytes, body)

		_, _ = w.Write([]byte(`{"document_id":"doc-42"}`))
	})
	mux.HandleFunc("/mr/api/v1/docs/doc-42/result", func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			w.WriteHeader(http.StatusAccepted)
		case 2:
			_, _ = w.Write([]byte(`{"status":"inprogress"}`))
		default:
			_, _ = w.Write([]byte(labResult))
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	res := newTestProvider(server.URL, "secret").Process(context.Background(), extraction.Input{
		Data:        pngBytes,
		ContentType: "application/pdf",
	})
	require.True(t, res.Succeeded(), res.ErrorMessage)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
	assert.Equal(t, 0.9, res.Confidence)

	rec := res.Data.Records[0]
	assert.Equal(t, "Meena Iyer", rec.Patient.Name)
	require.NotNil(t, rec.Patient.Age)
	assert.Equal(t, 58, *rec.Patient.Age)
	assert.Equal(t, extraction.GenderFemale, rec.Patient.Gender)
	assert.Equal(t, "Metro Labs", rec.Facility.HospitalName)
	assert.Equal(t, "2023-11-14", rec.Facility.VisitDate)

	require.Len(t, rec.LabResults, 2)
	assert.True(t, *rec.LabResults[0].IsAbnormal)
	assert.Equal(t, "13.4", rec.LabResults[1].Value)
	assert.Equal(t, "12-15.5", rec.LabResults[1].NormalRange)
	assert.False(t, *rec.LabResults[1].IsAbnormal)

	require.Len(t, rec.Diseases, 1)
	assert.Equal(t, "Chronic Kidney Disease", rec.Diseases[0].Name)
}

func TestProcessInferenceDisabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mr/api/v2/docs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"document_id":"d1"}`))
	})
	mux.HandleFunc("/mr/api/v1/docs/d1/result", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(labResult))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	off := false
	res := newTestProvider(server.URL, "k").Process(context.Background(), extraction.Input{
		Data:    pngBytes,
		Options: extraction.Options{InferDiseases: &off},
	})
	require.True(t, res.Succeeded())
	assert.Empty(t, res.Data.Records[0].Diseases)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name    string
		result  http.HandlerFunc
		wantMsg string
	}{
		{
			name: "never completes",
			result: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"queued"}`))
			},
			wantMsg: "Timed out waiting for processing result",
		},
		{
			name: "processing error",
			result: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"error","error":["unreadable"]}`))
			},
			wantMsg: `Document processing ended with status "error"`,
		},
		{
			name: "server error",
			result: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("boom"))
			},
			wantMsg: "HTTP 500: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/mr/api/v2/docs", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"document_id":"d1"}`))
			})
			mux.HandleFunc("/mr/api/v1/docs/d1/result", tt.result)
			server := httptest.NewServer(mux)
			defer server.Close()

			res := newTestProvider(server.URL, "k").Process(context.Background(), extraction.Input{Data: pngBytes})
			assert.Equal(t, extraction.StatusFailed, res.Status)
			assert.Equal(t, tt.wantMsg, res.ErrorMessage)
		})
	}
}

func TestProcessWithoutConfigurationOrContent(t *testing.T) {
	res := newTestProvider("http://unused", "").Process(context.Background(), extraction.Input{Data: pngBytes})
	assert.Equal(t, "Eka API key not configured", res.ErrorMessage)

	res = newTestProvider("http://unused", "k").Process(context.Background(), extraction.Input{})
	assert.Equal(t, "No content provided", res.ErrorMessage)
}

func TestPollStopsOnCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mr/api/v2/docs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"document_id":"d1"}`))
	})
	mux.HandleFunc("/mr/api/v1/docs/d1/result", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := newTestProvider(server.URL, "k")
	p.pollInterval = time.Hour
	p.maxPolls = 80

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	res := p.Process(ctx, extraction.Input{Data: pngBytes})
	assert.Equal(t, extraction.StatusFailed, res.Status)
	assert.Less(t, time.Since(started), 10*time.Second)
}

func TestParsePrescription(t *testing.T) {
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"output": map[string]interface{}{
				"pii": map[string]interface{}{
					"s3://a": []interface{}{
						map[string]interface{}{
							"Patient": map[string]interface{}{"Name": "Arjun", "Age": "34 Y", "Gender": "M"},
						},
					},
				},
				"meta":        map[string]interface{}{"source_display_name": "Dr. Rao | Sunrise Clinic"},
				"medications": []interface{}{map[string]interface{}{"name": "Paracetamol", "frequency": map[string]interface{}{"custom": "1-0-1"}, "duration": map[string]interface{}{"days": 5.0}}},
				"diagnosis":   []interface{}{map[string]interface{}{"name": "Viral Fever", "linked": map[string]interface{}{"snomedct_code": "1234"}}},
				"symptoms":    []interface{}{map[string]interface{}{"name": "Fever"}},
				"labVitals": []interface{}{
					map[string]interface{}{"name": "BP", "value": "130/80"},
					map[string]interface{}{"name": "Weight", "value": 70.0, "unit": "kg"},
					map[string]interface{}{"name": "RBS", "value": "140", "unit": "mg/dL"},
				},
			},
		},
	}

	rec := parseResult(resp, DefaultRules())
	assert.Equal(t, "Arjun", rec.Patient.Name)
	require.NotNil(t, rec.Patient.Age)
	assert.Equal(t, 34, *rec.Patient.Age)
	assert.Equal(t, "Dr. Rao", rec.Facility.DoctorName)
	assert.Equal(t, "Sunrise Clinic", rec.Facility.HospitalName)
	require.Len(t, rec.Medications, 1)
	assert.Equal(t, "1-0-1", rec.Medications[0].Frequency)
	assert.Equal(t, "5", rec.Medications[0].Duration)
	assert.Equal(t, []string{"Viral Fever"}, rec.DiseaseNames())
	assert.Equal(t, "Extracted from document", rec.Diseases[0].Source)
	assert.Equal(t, []string{"Fever"}, rec.Symptoms)
	assert.Equal(t, map[string]string{"blood_pressure": "130/80", "weight": "70 kg", "rbs": "140 mg/dL"}, rec.Vitals)
}
