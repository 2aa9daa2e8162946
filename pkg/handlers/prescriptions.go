package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/auth"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/services"
)

// PrescriptionImageField is the multipart field carrying the uploaded image.
const PrescriptionImageField = "prescriptionImage"

// DefaultMaxUploadBytes caps an uploaded image when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// multipartOverhead is the allowance for boundaries and part headers on top
// of the image itself.
const multipartOverhead = 64 << 10

// PrescriptionsHandler handles prescription upload, history and delete requests.
type PrescriptionsHandler struct {
	prescriptionService services.PrescriptionService
	maxBytes            int64
	logger              *zap.Logger
}

// NewPrescriptionsHandler creates a new prescriptions handler. maxBytes caps
// the uploaded image; zero or less uses DefaultMaxUploadBytes.
func NewPrescriptionsHandler(prescriptionService services.PrescriptionService, maxBytes int64, logger *zap.Logger) *PrescriptionsHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &PrescriptionsHandler{
		prescriptionService: prescriptionService,
		maxBytes:            maxBytes,
		logger:              logger,
	}
}

// RegisterRoutes registers the prescriptions handler's routes on the given mux.
func (h *PrescriptionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/prescriptions/patient/{patientId}", authMiddleware.Protect(h.History))
	mux.HandleFunc("POST /api/prescriptions/upload/{patientId}", authMiddleware.Protect(h.Upload))
	mux.HandleFunc("DELETE /api/prescriptions/{id}", authMiddleware.Protect(h.Delete))
}

// History handles GET /api/prescriptions/patient/{patientId}.
func (h *PrescriptionsHandler) History(w http.ResponseWriter, r *http.Request) {
	patientID, ok := PathID(w, r, "patientId", h.logger)
	if !ok {
		return
	}

	history, err := h.prescriptionService.History(r.Context(), patientID)
	if err != nil {
		writeServiceError(w, err, "", "Failed to retrieve prescription history.", h.logger)
		return
	}
	if history == nil {
		history = []*models.Prescription{}
	}
	writeJSON(w, http.StatusOK, history, h.logger)
}

// Upload handles POST /api/prescriptions/upload/{patientId}. The image is read
// from the prescriptionImage multipart field and run through ingestion.
func (h *PrescriptionsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	patientID, ok := PathID(w, r, "patientId", h.logger)
	if !ok {
		return
	}

	image, mediaType, ok := h.readImage(w, r)
	if !ok {
		return
	}

	result, err := h.prescriptionService.Ingest(r.Context(), services.IngestRequest{
		PatientID: patientID,
		Image:     image,
		MediaType: mediaType,
		DoctorID:  auth.GetDoctorID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err, "Patient not found.", "An error occurred during prescription processing.", h.logger)
		return
	}

	h.logger.Info("Prescription ingested",
		zap.String("prescription_id", result.ID()),
		zap.String("patient_id", patientID))
	writeJSON(w, http.StatusCreated, result, h.logger)
}

// readImage extracts the uploaded image and its media type. It writes the
// error response and returns false when the upload is unusable.
func (h *PrescriptionsHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "file_too_large", "Uploaded image exceeds the size limit.", h.logger)
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, "missing_file", "No prescription image uploaded.", h.logger)
		return nil, "", false
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile(PrescriptionImageField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "No prescription image uploaded.", h.logger)
		return nil, "", false
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded image", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_file", "Uploaded image could not be read.", h.logger)
		return nil, "", false
	}
	if int64(len(image)) > h.maxBytes {
		writeError(w, http.StatusBadRequest, "file_too_large", "Uploaded image exceeds the size limit.", h.logger)
		return nil, "", false
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "missing_file", "No prescription image uploaded.", h.logger)
		return nil, "", false
	}

	mediaType := partMediaType(header.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = partMediaType(http.DetectContentType(image))
	}
	if !strings.HasPrefix(mediaType, "image/") {
		writeError(w, http.StatusBadRequest, "invalid_file_type", "Uploaded file must be an image.", h.logger)
		return nil, "", false
	}
	return image, mediaType, true
}

// partMediaType strips parameters from a Content-Type value.
func partMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// Delete handles DELETE /api/prescriptions/{id}.
func (h *PrescriptionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.prescriptionService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Prescription not found.", "Failed to delete prescription.", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Prescription deleted successfully."}, h.logger)
}
