package structured

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
)

const (
	Name       = "direct_parser"
	confidence = 0.95
)

var errInvalidJSONStructure = errors.New("Invalid JSON structure")

// Parser reads CSV and JSON exports offline. It is always available.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Name() string { return Name }

func (p *Parser) IsAvailable() bool { return true }

func (p *Parser) Process(ctx context.Context, in extraction.Input) extraction.ProcessingResult {
	if err := ctx.Err(); err != nil {
		return extraction.Failed(Name, err, nil)
	}

	var (
		records []extraction.StandardizedExtraction
		err     error
	)
	switch format(in.ContentType, in.Filename) {
	case "csv":
		records, err = parseCSV(in.Bytes(), in.Options.ColumnMapping)
	case "json":
		records, err = parseJSON(in.Bytes(), in.Options.ColumnMapping)
	default:
		err = extraction.NewError(extraction.ErrInvalidInput, Name,
			fmt.Sprintf("Unsupported content type: %s", in.ContentType), nil)
	}
	if err != nil {
		logger.Log.WithError(err).WithField("provider", Name).Warn("structured parse failed")
		return extraction.Failed(Name, err, nil)
	}

	logger.Log.WithFields(map[string]interface{}{
		"provider": Name,
		"records":  len(records),
	}).Info("structured data parsed")

	raw := map[string]interface{}{"records_count": len(records)}
	return extraction.Succeeded(Name, extraction.NewBatch(records), raw, confidence)
}

// format decides between csv and json from the MIME type, then the filename.
func format(contentType, filename string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return "csv"
	case strings.Contains(ct, "json"):
		return "json"
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	}
	return ""
}

func parseCSV(content []byte, overrides map[string]string) ([]extraction.StandardizedExtraction, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []extraction.StandardizedExtraction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	mapping := detectMapping(headers, overrides)

	records := []extraction.StandardizedExtraction{}
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(map[string]interface{}, len(headers))
		for i, h := range headers {
			if i >= len(fields) {
				break
			}
			row[h] = fields[i]
		}
		// An unquoted comma in the last column spills into extra fields.
		if len(fields) > len(headers) && len(headers) > 0 {
			last := headers[len(headers)-1]
			row[last] = strings.Join(fields[len(headers)-1:], ",")
		}
		if rec, ok := buildRecord(row, mapping); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseJSON(content []byte, overrides map[string]string) ([]extraction.StandardizedExtraction, error) {
	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var rawRecords []interface{}
	switch val := data.(type) {
	case []interface{}:
		rawRecords = val
	case map[string]interface{}:
		rawRecords = []interface{}{val}
		for _, key := range []string{"records", "patients", "data", "results"} {
			if list, ok := val[key].([]interface{}); ok {
				rawRecords = list
				break
			}
		}
	default:
		return nil, extraction.NewError(extraction.ErrInvalidInput, Name, errInvalidJSONStructure.Error(), nil)
	}

	mapping := map[string]string{}
	if len(rawRecords) > 0 {
		if first, ok := rawRecords[0].(map[string]interface{}); ok {
			keys := make([]string, 0, len(first))
			for k := range first {
				keys = append(keys, k)
			}
			mapping = detectMapping(keys, overrides)
		}
	}

	records := []extraction.StandardizedExtraction{}
	for _, r := range rawRecords {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if rec, ok := buildRecord(row, mapping); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// buildRecord maps one row. Rows without a name are dropped.
func buildRecord(row map[string]interface{}, mapping map[string]string) (extraction.StandardizedExtraction, bool) {
	get := func(field string) interface{} {
		col, ok := mapping[field]
		if !ok {
			return nil
		}
		return row[col]
	}
	str := func(field string) string {
		return extraction.String(get(field))
	}

	rec := extraction.Empty()
	rec.Patient = extraction.Patient{
		Name:    str("name"),
		Age:     extraction.ParseAge(get("age")),
		Gender:  extraction.NormalizeGender(get("gender")),
		Phone:   str("phone"),
		Address: str("address"),
		City:    str("city"),
		State:   str("state"),
		Pincode: str("pincode"),
	}
	if rec.Patient.Name == "" {
		return rec, false
	}

	for _, name := range splitDiseases(get("disease")) {
		rec.Diseases = append(rec.Diseases, extraction.Disease{Name: name})
	}
	rec.Diseases = extraction.DedupeDiseases(rec.Diseases)

	rec.Facility = extraction.Facility{
		HospitalName: str("hospital"),
		DoctorName:   str("doctor"),
		VisitDate:    str("date"),
	}
	return rec, true
}

// splitDiseases accepts a comma-separated string or a JSON list.
func splitDiseases(v interface{}) []string {
	var parts []string
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			parts = append(parts, extraction.String(item))
		}
	default:
		parts = strings.Split(extraction.String(val), ",")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
