package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthbridge/platform/pkg/extraction"
	"github.com/healthbridge/platform/pkg/terminology"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, terminology.DefaultCatalog()), store
}

func mustParse(t *testing.T, raw string) extraction.Extraction {
	t.Helper()
	data, err := extraction.Parse([]byte(raw))
	require.NoError(t, err)
	return data
}

func TestBatchRecordCreatesPatientAndDisease(t *testing.T) {
	svc, store := newTestService()
	data := mustParse(t, `{"records":[{"patient":{"name":"Asha","age":30,"gender":"f"},"diseases":["HTN"]}]}`)

	saved, err := svc.NormalizeAndSave(context.Background(), data, Options{})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	patients := store.Patients()
	require.Len(t, patients, 1)
	assert.Equal(t, "Asha", patients[0].Name)
	assert.Equal(t, extraction.GenderFemale, patients[0].Gender)
	require.NotNil(t, patients[0].Age)
	assert.Equal(t, 30, *patients[0].Age)
	assert.Equal(t, []string{"Hypertension"}, store.DiseasesOf(patients[0].ID))

	disease, ok := store.Disease("hypertension")
	require.True(t, ok)
	assert.Equal(t, "I10", disease.ICDCode)
	assert.JSONEq(t, `["HTN"]`, string(disease.Abbreviations))
}

func TestNormalizeAndSaveIsIdempotent(t *testing.T) {
	svc, store := newTestService()
	raw := `{"patient":{"name":"Ravi Kumar","phone":"+91 98765-43210"},"diseases":["DM","Diabetes Mellitus","Asthma"]}`

	first, err := svc.NormalizeAndSave(context.Background(), mustParse(t, raw), Options{})
	require.NoError(t, err)
	second, err := svc.NormalizeAndSave(context.Background(), mustParse(t, raw), Options{})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, first[0].Created)
	assert.False(t, second[0].Created)
	assert.Equal(t, first[0].Patient.ID, second[0].Patient.ID)

	require.Len(t, store.Patients(), 1)
	assert.ElementsMatch(t, []string{"Diabetes Mellitus", "Asthma"}, store.DiseasesOf(first[0].Patient.ID))
}

func TestUpdateKeepsKnownValues(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.NormalizeAndSave(ctx, mustParse(t,
		`{"patient":{"name":"Meena","gender":"female","age":52,"city":"Pune"}}`), Options{DefaultHospital: "City Care"})
	require.NoError(t, err)
	_, err = svc.NormalizeAndSave(ctx, mustParse(t,
		`{"patient":{"name":"meena","gender":"","state":"MH"}}`), Options{})
	require.NoError(t, err)

	patients := store.Patients()
	require.Len(t, patients, 1)
	p := patients[0]
	assert.Equal(t, extraction.GenderFemale, p.Gender)
	require.NotNil(t, p.Age)
	assert.Equal(t, 52, *p.Age)
	assert.Equal(t, "Pune", p.City)
	assert.Equal(t, "MH", p.State)
	assert.Equal(t, "City Care", p.HospitalClinic)
}

func TestDefaultsDoNotOverwriteStoredValues(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.NormalizeAndSave(ctx, mustParse(t,
		`{"patient":{"name":"Farah"},"facility":{"hospital_name":"Lotus Clinic"}}`),
		Options{DefaultLocation: "Nashik"})
	require.NoError(t, err)
	_, err = svc.NormalizeAndSave(ctx, mustParse(t,
		`{"patient":{"name":"Farah","city":"Pune"}}`),
		Options{DefaultLocation: "Unknown Site", DefaultHospital: "Default Hospital"})
	require.NoError(t, err)

	patients := store.Patients()
	require.Len(t, patients, 1)
	assert.Equal(t, "Nashik", patients[0].Location)
	assert.Equal(t, "Lotus Clinic", patients[0].HospitalClinic)
	assert.Equal(t, "Pune", patients[0].City)
}

func TestPhoneDistinguishesNamesakes(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.NormalizeAndSave(ctx, mustParse(t, `{"patient":{"name":"Anil","phone":"9876543210"}}`), Options{})
	require.NoError(t, err)
	_, err = svc.NormalizeAndSave(ctx, mustParse(t, `{"patient":{"name":"Anil","phone":"9123456780"}}`), Options{})
	require.NoError(t, err)

	assert.Len(t, store.Patients(), 2)
}

func TestRecordsWithoutNameAreSkipped(t *testing.T) {
	svc, store := newTestService()
	data := extraction.NewBatch([]extraction.StandardizedExtraction{
		{Patient: extraction.Patient{Name: " "}, Diseases: []extraction.Disease{{Name: "Asthma"}}},
		{Patient: extraction.Patient{Name: "Kiran"}, Diseases: []extraction.Disease{{Name: "copd"}}},
	})

	saved, err := svc.NormalizeAndSave(context.Background(), data, Options{SourceDocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Kiran", saved[0].Patient.Name)
	require.NotNil(t, saved[0].Patient.SourceDocumentID)
	assert.Equal(t, "doc-1", *saved[0].Patient.SourceDocumentID)
	assert.Len(t, store.Patients(), 1)
}

func TestCleanPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+91 98765-43210", "+919876543210"},
		{"(987) 654 3210", "9876543210"},
		{"12345", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanPhone(tt.in))
		})
	}
}

func TestTransformerDiseases(t *testing.T) {
	tr := NewTransformer(terminology.DefaultCatalog())
	rec := extraction.StandardizedExtraction{
		Diseases: []extraction.Disease{
			{Name: "htn", Severity: "mild"},
			{Name: "Hypertension"},
			{Name: "ASTHMA", ICDCode: "J45.909"},
			{Name: ""},
		},
		Facility: extraction.Facility{VisitDate: "2024-03-05"},
	}

	got := tr.Diseases(rec)
	require.Len(t, got, 2)
	assert.Equal(t, "Hypertension", got[0].Name)
	assert.Equal(t, "mild", got[0].Severity)
	assert.Equal(t, []string{"HTN"}, got[0].Abbreviations)
	require.NotNil(t, got[0].DiagnosisDate)
	assert.Equal(t, 2024, got[0].DiagnosisDate.Year())
	assert.Equal(t, "Asthma", got[1].Name)
	assert.Equal(t, "J45.909", got[1].ICDCode)
}
