package scribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/extraction"
)

func newTestProvider(url string) *Provider {
	return New(&config.Config{ScribeURL: url, ScribeTimeout: 5 * time.Second}, nil)
}

func TestProcessMapsTemplate(t *testing.T) {
	var got templateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"patient_info": {"name": "Ravi Kumar", "age": "52 years", "gender": "M", "mobile": "9876543210"},
			"diagnosis": ["Type 2 DM", {"diagnosis": "HTN", "code": "I10", "severity": "moderate"}],
			"medical_history": ["htn", "Asthma"],
			"chief_complaints": ["headache", {"complaint": "giddiness"}],
			"vitals": {"bp": "150/90", "heart_rate": 88},
			"prescriptions": [{"drug_name": "Metformin", "dose": "500mg", "frequency": "BD"}, "Amlodipine"],
			"investigations": ["HbA1c", {"test_name": "FBS", "result": 160, "unit": "mg/dL"}]
		}`))
	}))
	defer server.Close()

	res := newTestProvider(server.URL).Process(context.Background(), extraction.Input{Text: "pt c/o headache, k/c/o DM"})
	require.True(t, res.Succeeded(), res.ErrorMessage)

	assert.Equal(t, "pt c/o headache, k/c/o DM", got.Transcript)
	assert.Equal(t, "pro", got.ModelType)
	assert.Equal(t, "json", got.ResponseType)

	rec := res.Data.Records[0]
	assert.Equal(t, "Ravi Kumar", rec.Patient.Name)
	require.NotNil(t, rec.Patient.Age)
	assert.Equal(t, 52, *rec.Patient.Age)
	assert.Equal(t, extraction.GenderMale, rec.Patient.Gender)
	assert.Equal(t, "9876543210", rec.Patient.Phone)

	assert.Equal(t, []string{"Type 2 DM", "HTN", "Asthma"}, rec.DiseaseNames())
	assert.Equal(t, "I10", rec.Diseases[1].ICDCode)
	assert.Equal(t, []string{"headache", "giddiness"}, rec.Symptoms)
	assert.Equal(t, map[string]string{"blood_pressure": "150/90", "pulse": "88"}, rec.Vitals)
	require.Len(t, rec.Medications, 2)
	assert.Equal(t, "500mg", rec.Medications[0].Dosage)
	require.Len(t, rec.LabResults, 2)
	assert.Equal(t, "160", rec.LabResults[1].Value)
	assert.Equal(t, 0.85, res.Confidence)
	assert.NotNil(t, res.RawResponse["patient_info"])
}

func TestProcessFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	tests := []struct {
		name string
		url  string
		in   extraction.Input
		want string
	}{
		{"not configured", "", extraction.Input{Text: "x"}, "EkaScribe URL not configured"},
		{"empty transcript", server.URL, extraction.Input{Text: "   "}, "Content must be a non-empty string"},
		{"http status", server.URL, extraction.Input{Text: "note"}, "HTTP 502: upstream exploded\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestProvider(tt.url).Process(context.Background(), tt.in)
			assert.Equal(t, extraction.StatusFailed, res.Status)
			assert.Equal(t, tt.want, res.ErrorMessage)
			assert.Equal(t, Name, res.ServiceUsed)
		})
	}
}

func TestIsAvailable(t *testing.T) {
	assert.False(t, newTestProvider(" ").IsAvailable())
	assert.True(t, newTestProvider("http://scribe.local/generate").IsAvailable())
}
