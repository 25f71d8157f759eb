package llm

import "strings"

const extractionPrompt = `You are a medical data extraction assistant. Extract structured information from the medical document.

Extract:
1. Patient demographics (name, age, gender, phone, address)
2. Diseases/Diagnoses. This is the most important part. Include diseases mentioned in the medical history.
3. Symptoms/Chief complaints
4. Medications with dosage
5. Lab results
6. Vitals
7. Hospital/Clinic and doctor information

Rules:
- Expand all medical abbreviations:
  - DM -> Diabetes Mellitus
  - HTN -> Hypertension
  - CAD -> Coronary Artery Disease
  - CKD -> Chronic Kidney Disease
  - COPD -> Chronic Obstructive Pulmonary Disease
  - MI -> Myocardial Infarction
  - CHF -> Congestive Heart Failure
  - TB -> Tuberculosis
- If age is written as "45 Y" or "45 years", return the integer 45
- Gender must be one of: male, female, other

Return ONLY a valid JSON object in exactly this format (no markdown, no extra text):
{
    "patient": {
        "name": "string or null",
        "age": 45,
        "gender": "male/female/other or null",
        "phone": "string or null",
        "address": "string or null"
    },
    "diseases": [
        {"name": "Full Disease Name", "icd_code": null, "severity": "mild/moderate/severe or null"}
    ],
    "symptoms": ["symptom1", "symptom2"],
    "medications": [
        {"name": "Drug Name", "dosage": "string or null", "frequency": "string or null", "duration": "string or null"}
    ],
    "lab_results": [
        {"test": "Test Name", "value": "string", "unit": "string or null", "normal_range": "string or null"}
    ],
    "vitals": {
        "blood_pressure": "string or null",
        "pulse": "string or null",
        "temperature": "string or null"
    },
    "facility": {
        "hospital_name": "string or null",
        "doctor_name": "string or null",
        "visit_date": "string or null"
    }
}`

const textInstruction = "Extract medical information from this clinical text:\n\n"

var documentInstructions = map[string]string{
	"prescription": `This is a medical prescription (may be handwritten). Pay special attention to:
- Patient name and details at the top
- Diagnosis/Chief complaint
- Medications with dosage
- Doctor's name and clinic
- Handwriting may be difficult, interpret it as best you can`,
	"lab_report": `This is a lab report. Pay special attention to:
- Patient demographics
- Test names, values, units and reference ranges
- Abnormal values (often marked with H/L or highlighted)
- Lab name and report date`,
}

// Prompt returns the extraction prompt tailored to the classified document
// type. Unknown types get a generic instruction for documents.
func Prompt(documentType string, vision bool) string {
	if extra, ok := documentInstructions[strings.ToLower(documentType)]; ok {
		return extractionPrompt + "\n\n" + extra
	}
	if vision {
		return extractionPrompt + "\n\nThis is a medical document. Extract all visible patient and medical information."
	}
	return extractionPrompt
}
