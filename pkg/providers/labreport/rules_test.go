package labreport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRange(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		normalRange  string
		wantAbnormal bool
		wantHigh     bool
	}{
		{"above range", "1.5", "0.6-1.2", true, true},
		{"inside range", "1.0", "0.6-1.2", false, false},
		{"below range", "9.1 g/dL", "12 - 15.5", true, false},
		{"upper bound inclusive", "1.2", "0.6-1.2", false, false},
		{"one sided range", "250", "< 200", false, false},
		{"no numeric value", "positive", "0-1", false, false},
		{"empty range", "5", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abnormal, high := checkRange(tt.value, tt.normalRange)
			assert.Equal(t, tt.wantAbnormal, abnormal)
			assert.Equal(t, tt.wantHigh, high)
		})
	}
}

func TestInferDedupesAcrossTests(t *testing.T) {
	diseases := DefaultRules().Infer([]abnormalValue{
		{test: "Serum Creatinine", isHigh: true},
		{test: "HbA1c", isHigh: true},
		{test: "Fasting Glucose", isHigh: true},
		{test: "TSH", isHigh: false},
		{test: "Hemoglobin", isHigh: true},
	})

	require.Len(t, diseases, 3)
	assert.Equal(t, "Chronic Kidney Disease", diseases[0].Name)
	assert.Equal(t, "Inferred from abnormal Serum Creatinine", diseases[0].Source)
	assert.Equal(t, "Diabetes Mellitus", diseases[1].Name)
	assert.Equal(t, "Hyperthyroidism", diseases[2].Name)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - test: Vitamin D\n    low: [Vitamin D Deficiency]\n"), 0o600))

	rules, err = LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules.Rules, 1)
	assert.Equal(t, "vitamin_d", rules.Rules[0].Test)

	diseases := rules.Infer([]abnormalValue{{test: "25-OH Vitamin D", isHigh: false}})
	require.Len(t, diseases, 1)
	assert.Equal(t, "Vitamin D Deficiency", diseases[0].Name)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
