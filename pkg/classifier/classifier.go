package classifier

import (
	"path/filepath"
	"strings"

	"github.com/healthbridge/platform/pkg/common/logger"
)

type DocumentType string

const (
	LabReport      DocumentType = "lab_report"
	Prescription   DocumentType = "prescription"
	ClinicalText   DocumentType = "clinical_text"
	StructuredData DocumentType = "structured_data"
	Unknown        DocumentType = "unknown"
)

type ContentCategory string

const (
	CategoryImage      ContentCategory = "image"
	CategoryPDF        ContentCategory = "pdf"
	CategoryText       ContentCategory = "text"
	CategoryStructured ContentCategory = "structured"
)

var (
	labReportKeywords = []string{
		"lab", "laboratory", "pathology", "diagnostic", "test result",
		"blood test", "urine test", "hemoglobin", "creatinine", "glucose",
		"cholesterol", "hba1c", "thyroid", "liver function", "kidney function",
		"cbc", "complete blood count", "lipid profile",
	}
	prescriptionKeywords = []string{
		"rx", "prescription", "medicine", "tablet", "capsule", "syrup",
		"mg", "ml", "dose", "twice daily", "once daily", "before meal",
		"after meal", "sos", "prn", "stat",
	}
	clinicalKeywords = []string{
		"patient", "chief complaint", "diagnosis", "history", "examination",
		"vitals", "blood pressure", "pulse", "treatment", "advised",
		"follow up", "referred",
	}

	labFilenameIndicators      = []string{"lab", "report", "test", "pathology", "diagnostic", "result"}
	rxFilenameIndicators       = []string{"prescription", "rx", "medicine", "drug"}
	clinicalFilenameIndicators = []string{"clinical", "note", "summary", "discharge", "opd", "ipd"}

	hintTable = map[string]DocumentType{
		"lab_report":      LabReport,
		"lab":             LabReport,
		"laboratory":      LabReport,
		"test_result":     LabReport,
		"printed_lab":     LabReport,
		"prescription":    Prescription,
		"rx":              Prescription,
		"medicine":        Prescription,
		"handwritten":     Prescription,
		"clinical":        ClinicalText,
		"clinical_text":   ClinicalText,
		"notes":           ClinicalText,
		"transcript":      ClinicalText,
		"csv":             StructuredData,
		"json":            StructuredData,
		"database":        StructuredData,
		"export":          StructuredData,
		"clinical_db":     StructuredData,
		"structured_data": StructuredData,
		"unknown":         Unknown,
		"other":           Unknown,
	}

	imageExtensions      = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "tiff": {}, "webp": {}}
	structuredExtensions = map[string]struct{}{"csv": {}, "json": {}, "xml": {}, "xlsx": {}, "xls": {}}
)

// Classify infers the document type and content category. It never fails:
// indeterminate input falls back to the most common document in the domain.
func Classify(filename, contentType string, content []byte, hint string) (DocumentType, ContentCategory) {
	category := CategoryFor(contentType, filename)

	if hint != "" {
		if docType, ok := ResolveHint(hint); ok {
			logger.Log.WithField("document_type", docType).Debug("classified from hint")
			return docType, category
		}
	}

	if category == CategoryStructured {
		return StructuredData, category
	}

	if category == CategoryText && len(content) > 0 {
		text := strings.ToLower(strings.ToValidUTF8(string(content), ""))
		return classifyText(text), category
	}

	docType := classifyFilename(filename)
	logger.Log.WithFields(map[string]interface{}{
		"document_type":    docType,
		"content_category": category,
	}).Debug("classified from filename")
	return docType, category
}

// ResolveHint maps a user-supplied hint through the synonym table.
func ResolveHint(hint string) (DocumentType, bool) {
	docType, ok := hintTable[strings.ToLower(strings.TrimSpace(hint))]
	return docType, ok
}

// CategoryFor derives the content category from the MIME type first and the
// filename extension second, defaulting to pdf.
func CategoryFor(contentType, filename string) ContentCategory {
	ct := strings.ToLower(contentType)
	lowerName := strings.ToLower(filename)

	switch {
	case strings.Contains(ct, "image"):
		return CategoryImage
	case strings.Contains(ct, "pdf"):
		return CategoryPDF
	case strings.Contains(ct, "csv") || strings.HasSuffix(lowerName, ".csv"):
		return CategoryStructured
	case strings.Contains(ct, "json") || strings.HasSuffix(lowerName, ".json"):
		return CategoryStructured
	case strings.Contains(ct, "text"):
		return CategoryText
	case strings.Contains(ct, "xml"):
		return CategoryStructured
	}

	ext := strings.TrimPrefix(filepath.Ext(lowerName), ".")
	if _, ok := imageExtensions[ext]; ok {
		return CategoryImage
	}
	if _, ok := structuredExtensions[ext]; ok {
		return CategoryStructured
	}
	switch ext {
	case "pdf":
		return CategoryPDF
	case "txt", "text":
		return CategoryText
	}
	return CategoryPDF
}

// classifyText scores each keyword set by the number of distinct keywords
// present. Ties resolve lab, then prescription, then clinical.
func classifyText(text string) DocumentType {
	lab := countPresent(text, labReportKeywords)
	rx := countPresent(text, prescriptionKeywords)
	clinical := countPresent(text, clinicalKeywords)

	best := max(lab, rx, clinical)
	switch {
	case best == 0:
		return ClinicalText
	case lab == best:
		return LabReport
	case rx == best:
		return Prescription
	default:
		return ClinicalText
	}
}

func classifyFilename(filename string) DocumentType {
	name := strings.ToLower(filename)
	switch {
	case containsAny(name, labFilenameIndicators):
		return LabReport
	case containsAny(name, rxFilenameIndicators):
		return Prescription
	case containsAny(name, clinicalFilenameIndicators):
		return ClinicalText
	}
	// handwritten prescriptions dominate image uploads
	return Prescription
}

func countPresent(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
