package documents

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/extraction"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/process/document", h.handleDocument).Methods(http.MethodPost)
	router.HandleFunc("/process/text", h.handleText).Methods(http.MethodPost)
	router.HandleFunc("/process/batch", h.handleBatch).Methods(http.MethodPost)
	router.HandleFunc("/process/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id}", h.handleGet).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleDocument(w http.ResponseWriter, r *http.Request) {
	file, err := h.readFile(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	upload := DocumentUpload{
		Filename:     file.name,
		ContentType:  file.contentType,
		Content:      file.content,
		DocumentType: r.FormValue("document_type"),
		HospitalName: r.FormValue("hospital_name"),
		Location:     r.FormValue("location"),
		IncludeRaw:   formBool(r, "include_raw"),
		Async:        formBool(r, "async"),
	}

	resp, err := h.service.ProcessDocument(r.Context(), upload)
	switch {
	case err == nil && upload.Async:
		writeJSON(w, http.StatusAccepted, resp)
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	default:
		h.writeError(w, err, resp)
	}
}

func (h *HTTPHandler) handleText(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid text payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessText(r.Context(), req)
	if err != nil {
		h.writeError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	file, err := h.readFile(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var mapping map[string]string
	if raw := r.FormValue("column_mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			http.Error(w, "column_mapping must be a JSON object of strings", http.StatusBadRequest)
			return
		}
	}

	resp, err := h.service.ProcessBatch(r.Context(), BatchUpload{
		Filename:      file.name,
		ContentType:   file.contentType,
		Content:       file.content,
		ColumnMapping: mapping,
		HospitalName:  r.FormValue("hospital_name"),
		Location:      r.FormValue("location"),
	})
	if err != nil {
		h.writeError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch document")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// writeError maps service errors to status codes. Exhausted provider chains
// are 422 and still carry the response body.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, body interface{}) {
	switch {
	case IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case extraction.CodeOf(err) == extraction.ErrExhausted:
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		logger.Log.WithError(err).Error("document processing failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type uploadedFile struct {
	name        string
	contentType string
	content     []byte
}

func (h *HTTPHandler) readFile(w http.ResponseWriter, r *http.Request) (*uploadedFile, error) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file is required")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return &uploadedFile{
		name:        header.Filename,
		contentType: header.Header.Get("Content-Type"),
		content:     content,
	}, nil
}

func formBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.FormValue(key))
	return v
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
