package terminology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cat := DefaultCatalog()

	tests := []struct {
		in   string
		want string
	}{
		{"DM", "Diabetes Mellitus"},
		{" htn ", "Hypertension"},
		{"T2DM", "Type 2 Diabetes Mellitus"},
		{"Diabetes Mellitus", "Diabetes Mellitus"},
		{"HIV", "HIV/AIDS"},
		{"HIV/AIDS", "HIV/AIDS"},
		{"ASTHMA", "Asthma"},
		{"migraine with aura", "Migraine With Aura"},
		{"McArdle Disease", "McArdle Disease"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cat.Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	cat := DefaultCatalog()
	inputs := []string{"DM", "Diabetes Mellitus", "hiv", "COPD", "asthma", "Type 2 Diabetes Mellitus", "iron deficiency"}
	for abbr := range cat.Abbreviations {
		inputs = append(inputs, abbr)
	}

	for _, in := range inputs {
		once := cat.Normalize(in)
		assert.Equal(t, once, cat.Normalize(once), "input %q", in)
	}
}

func TestLookup(t *testing.T) {
	cat := DefaultCatalog()

	d, ok := cat.Lookup("Hypertension")
	require.True(t, ok)
	assert.Equal(t, "I10", d.ICD10)

	_, ok = cat.Lookup("Unknown Syndrome")
	assert.False(t, ok)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := []byte(`
abbreviations:
  ihd: Ischemic Heart Disease
diseases:
  ischemic heart disease:
    icd10: I25.9
    category: Chronic
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cat, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Ischemic Heart Disease", cat.Normalize("IHD"))
	assert.Equal(t, "Hypertension", cat.Normalize("HTN"))
	d, ok := cat.Lookup("ischemic heart disease")
	require.True(t, ok)
	assert.Equal(t, "I25.9", d.ICD10)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cat, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Equal(t, "Hypertension", cat.Normalize("htn"))
}

func TestAbbreviationsFor(t *testing.T) {
	cat := DefaultCatalog()

	assert.Equal(t, []string{"HTN"}, cat.AbbreviationsFor("Hypertension"))
	assert.Empty(t, cat.AbbreviationsFor("Asthma"))
}
