package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/auth"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/services"
)

// maxPatientBody bounds the JSON body of a create request.
const maxPatientBody = 1 << 20

// PatientsHandler handles patient HTTP requests.
type PatientsHandler struct {
	patientService services.PatientService
	logger         *zap.Logger
}

// NewPatientsHandler creates a new patients handler.
func NewPatientsHandler(patientService services.PatientService, logger *zap.Logger) *PatientsHandler {
	return &PatientsHandler{
		patientService: patientService,
		logger:         logger,
	}
}

// RegisterRoutes registers the patients handler's routes on the given mux.
func (h *PatientsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/patients", authMiddleware.Protect(h.List))
	mux.HandleFunc("POST /api/patients", authMiddleware.Protect(h.Create))
	mux.HandleFunc("GET /api/patients/{id}", authMiddleware.Protect(h.Get))
	mux.HandleFunc("DELETE /api/patients/{id}", authMiddleware.Protect(h.Delete))
}

// List handles GET /api/patients, newest first.
func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	patients, err := h.patientService.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "", "Failed to retrieve patients.", h.logger)
		return
	}
	if patients == nil {
		patients = []*models.Patient{}
	}
	writeJSON(w, http.StatusOK, patients, h.logger)
}

// Get handles GET /api/patients/{id}.
func (h *PatientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}

	patient, err := h.patientService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Patient not found.", "Database error.", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, patient, h.logger)
}

// Create handles POST /api/patients.
func (h *PatientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.NewPatient
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatientBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	patient, err := h.patientService.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "", "Database error.", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, patient, h.logger)
}

// Delete handles DELETE /api/patients/{id}, removing the patient's history with it.
func (h *PatientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := PathID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.patientService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err, "Patient not found.", "Failed to delete patient.", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Patient and all associated records deleted successfully."}, h.logger)
}
