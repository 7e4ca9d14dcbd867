package session

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atulwalsh/legal-intake-ai/internal/ingest"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// Accepted upload MIME types. Anything else is rejected before it
// reaches the ingestion pipeline.
var acceptedUploadTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"text/plain":      {},
}

// Handler wires HTTP requests to the intake service.
type Handler struct {
	service        Service
	logger         *logging.Logger
	maxUploadBytes int64
}

// NewHandler creates a session handler. maxUploadBytes bounds the total
// size of one multipart upload request.
func NewHandler(service Service, maxUploadBytes int64, logger *logging.Logger) *Handler {
	if service == nil {
		panic("session: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Start handles POST /sessions.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Error("failed to decode start request", "error", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	resp, err := h.service.StartSession(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to start session", "error", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// Message handles POST /sessions/{caseID}/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		http.Error(w, "Missing case ID", http.StatusBadRequest)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.CaseID = caseID

	resp, err := h.service.HandleMessage(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to process message", "error", err, "case_id", caseID)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Upload handles POST /sessions/{caseID}/uploads (multipart/form-data,
// one or more parts named "files").
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		http.Error(w, "Missing case ID", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.logger.Error("failed to parse upload", "error", err, "case_id", caseID)
		http.Error(w, "Invalid or oversized upload", http.StatusRequestEntityTooLarge)
		return
	}

	var files []ingest.Upload
	for _, header := range r.MultipartForm.File["files"] {
		mimeType := normalizeMIME(header.Header.Get("Content-Type"))
		if _, ok := acceptedUploadTypes[mimeType]; !ok {
			http.Error(w, "Unsupported file type: "+mimeType, http.StatusUnsupportedMediaType)
			return
		}

		f, err := header.Open()
		if err != nil {
			h.logger.Error("failed to open upload part", "error", err, "file", header.Filename)
			http.Error(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			h.logger.Error("failed to read upload part", "error", err, "file", header.Filename)
			http.Error(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		files = append(files, ingest.Upload{Name: header.Filename, MIME: mimeType, Data: data})
	}
	if len(files) == 0 {
		http.Error(w, "No files provided", http.StatusBadRequest)
		return
	}

	resp, err := h.service.HandleUpload(r.Context(), UploadRequest{CaseID: caseID, Files: files})
	if err != nil {
		h.logger.Error("failed to process upload", "error", err, "case_id", caseID)
		http.Error(w, "Failed to process upload", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// State handles GET /sessions/{caseID}.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		http.Error(w, "Missing case ID", http.StatusBadRequest)
		return
	}

	state, err := h.service.SessionState(r.Context(), caseID)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "case_id", caseID)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func normalizeMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}
