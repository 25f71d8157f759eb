package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchWithoutFlag(t *testing.T) {
	ext, err := Parse([]byte(`{"records":[{"patient":{"name":"Asha","age":30,"gender":"f"},"diseases":["HTN"]}]}`))
	require.NoError(t, err)

	require.True(t, ext.IsBatch)
	require.Len(t, ext.Records, 1)
	rec := ext.Records[0]
	assert.Equal(t, "Asha", rec.Patient.Name)
	require.NotNil(t, rec.Patient.Age)
	assert.Equal(t, 30, *rec.Patient.Age)
	assert.Equal(t, GenderFemale, rec.Patient.Gender)
	assert.Equal(t, []string{"HTN"}, rec.DiseaseNames())
}

func TestFromMapDefaultsMissingFields(t *testing.T) {
	rec := FromMap(map[string]interface{}{})

	assert.Equal(t, GenderUnknown, rec.Patient.Gender)
	assert.Nil(t, rec.Patient.Age)
	assert.NotNil(t, rec.Diseases)
	assert.NotNil(t, rec.Vitals)
	assert.Empty(t, rec.Medications)
}

func TestFromMapMixedDiseaseShapes(t *testing.T) {
	rec := FromMap(map[string]interface{}{
		"diseases": []interface{}{
			"Asthma",
			map[string]interface{}{"name": "asthma", "icd_code": "J45"},
			map[string]interface{}{"name": "Hypertension", "severity": "mild"},
			map[string]interface{}{"icd_code": "X00"},
			42.0,
		},
	})

	require.Len(t, rec.Diseases, 2)
	assert.Equal(t, Disease{Name: "Asthma", ICDCode: "J45"}, rec.Diseases[0])
	assert.Equal(t, "mild", rec.Diseases[1].Severity)
}

func TestBatchMarshalShape(t *testing.T) {
	out, err := json.Marshal(NewBatch([]StandardizedExtraction{Empty()}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, true, decoded["is_batch"])
	assert.Len(t, decoded["records"], 1)
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want *int
	}{
		{"number", 45.0, intPtr(45)},
		{"string with unit", "62 yrs", intPtr(62)},
		{"years object", map[string]interface{}{"Years": 7.0}, intPtr(7)},
		{"no digits", "adult", nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAge(tt.in))
		})
	}
}

func TestNormalizeGender(t *testing.T) {
	assert.Equal(t, GenderMale, NormalizeGender("M"))
	assert.Equal(t, GenderMale, NormalizeGender(" man "))
	assert.Equal(t, GenderFemale, NormalizeGender("Woman"))
	assert.Equal(t, GenderOther, NormalizeGender("o"))
	assert.Equal(t, GenderUnknown, NormalizeGender("x"))
	assert.Equal(t, GenderUnknown, NormalizeGender(nil))
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"plain", `{"patient":{"name":"A"}}`, true},
		{"fenced", "Here you go:\n```json\n{\"patient\":{\"name\":\"A\"}}\n```", true},
		{"fenced without language", "```\n{\"patient\":{\"name\":\"A\"}}\n```", true},
		{"embedded", `Result: {"patient":{"name":"A","note":"uses } brace"}} thanks`, true},
		{"empty", "", false},
		{"prose", "I could not read the document.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ExtractJSON(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "A", String(Map(out["patient"])["name"]))
		})
	}
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{"png magic", []byte("\x89PNG\r\n\x1a\n0000"), "application/pdf", "png"},
		{"jpeg magic", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "", "jpg"},
		{"pdf magic", []byte("%PDF-1.7\n"), "image/png", "pdf"},
		{"gif magic", []byte("GIF89a\x00\x00"), "", "gif"},
		{"webp magic", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "", "webp"},
		{"short falls back to declared", []byte("%PDF"), "application/pdf; charset=binary", "pdf"},
		{"unknown falls back to png", []byte("plain text body"), "text/plain", "png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFileType(tt.data, tt.declared).Ext)
		})
	}
}

func TestInputRepresentations(t *testing.T) {
	text := Input{Text: "bp 120/80"}
	assert.True(t, text.IsText())
	assert.Equal(t, []byte("bp 120/80"), text.Bytes())

	bin := Input{Data: []byte("abc\xff")}
	assert.False(t, bin.IsText())
	assert.Equal(t, "abc", bin.AsText())
}

func TestErrorMessage(t *testing.T) {
	err := NewError(ErrConfiguration, "eka_lab_report", "Eka API key not configured", nil)
	assert.Equal(t, "Eka API key not configured", err.Error())
	assert.Equal(t, ErrConfiguration, CodeOf(err))
	assert.False(t, err.Retryable)
}

func intPtr(v int) *int { return &v }
