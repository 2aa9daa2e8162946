package services

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/llm"
	"github.com/ekaya-inc/ekaya-rx/pkg/metrics"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/prompts"
)

// UnreadableImageMessage is returned to the caller when the model reports
// that the prescription cannot be read.
const UnreadableImageMessage = "Handwriting is unreadable or the image is too blurry. Please upload a clearer image."

// DefaultDoctorID labels prescriptions when no clinician identity is known.
const DefaultDoctorID = "doc_placeholder_123"

// DefaultAnalysisTimeout bounds a single vision call.
const DefaultAnalysisTimeout = 3 * time.Minute

// IngestRequest is one uploaded prescription image.
type IngestRequest struct {
	PatientID string
	Image     []byte
	MediaType string
	// DoctorID is the authenticated clinician. Empty falls back to the
	// configured default.
	DoctorID string
}

// PrescriptionConfig tunes the ingestion pipeline.
type PrescriptionConfig struct {
	AnalysisTimeout time.Duration
	// DefaultDoctorID is stored when the request carries none. Empty stores NULL.
	DefaultDoctorID string
}

// IngestionRecorder receives pipeline measurements. *metrics.Collector
// satisfies it.
type IngestionRecorder interface {
	RecordIngestion(outcome string)
	RecordAnalysis(model string, duration time.Duration, success bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngestion(string)                     {}
func (nopRecorder) RecordAnalysis(string, time.Duration, bool) {}

// PrescriptionService runs the ingestion pipeline and manages prescription history.
type PrescriptionService interface {
	// Ingest checks the patient, analyzes the image, validates the reply and
	// stores the prescription with its drugs in one transaction. Any failure
	// leaves storage untouched.
	Ingest(ctx context.Context, req IngestRequest) (models.PersistedPrescription, error)
	// History returns the patient's prescriptions newest first. An unknown
	// patient has an empty history.
	History(ctx context.Context, patientID string) ([]*models.Prescription, error)
	Delete(ctx context.Context, id string) error
}

type prescriptionService struct {
	store    storage.Store
	vision   llm.VisionClient
	cfg      PrescriptionConfig
	recorder IngestionRecorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewPrescriptionService creates the ingestion service. A nil recorder
// disables metrics.
func NewPrescriptionService(
	store storage.Store,
	vision llm.VisionClient,
	cfg PrescriptionConfig,
	recorder IngestionRecorder,
	logger *zap.Logger,
) PrescriptionService {
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &prescriptionService{
		store:    store,
		vision:   vision,
		cfg:      cfg,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.Named("prescriptions"),
	}
}

func (s *prescriptionService) Ingest(ctx context.Context, req IngestRequest) (models.PersistedPrescription, error) {
	result, err := s.ingest(ctx, req)
	if err != nil {
		s.recorder.RecordIngestion(apperrors.Code(err))
		s.logger.Warn("Prescription ingestion failed",
			zap.String("patient_id", req.PatientID),
			zap.String("error_code", apperrors.Code(err)),
			zap.Error(err))
		return nil, err
	}
	s.recorder.RecordIngestion(metrics.OutcomeSuccess)
	return result, nil
}

func (s *prescriptionService) ingest(ctx context.Context, req IngestRequest) (models.PersistedPrescription, error) {
	if len(req.Image) == 0 {
		return nil, apperrors.New(apperrors.ErrValidation, "no prescription image uploaded")
	}
	if !strings.HasPrefix(req.MediaType, "image/") {
		return nil, apperrors.New(apperrors.ErrValidation, "uploaded file is not an image")
	}

	// The patient check must precede the vision call.
	exists, err := s.store.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("patient", req.PatientID)
	}

	raw, err := s.analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	if models.IsUnreadable(raw) {
		s.logger.Info("Model reported unreadable prescription",
			zap.String("patient_id", req.PatientID),
			zap.Int("model_message_len", len(models.UnreadableMessage(raw))))
		return nil, apperrors.New(apperrors.ErrUnreadableImage, UnreadableImageMessage)
	}

	analysis, err := models.ValidateAnalysis(raw)
	if err != nil {
		return nil, err
	}
	if !analysis.RiskLevel().Known() {
		s.logger.Warn("Model returned an unrecognized risk level",
			zap.String("risk_level", string(analysis.RiskLevel())))
	}
	if analysis.RiskLevel().RequiresAlternative() && analysis.Alternative() == nil {
		s.logger.Warn("Model omitted the alternative prescription",
			zap.String("risk_level", string(analysis.RiskLevel())))
	}

	prescription := s.buildPrescription(req, analysis)
	drugs := buildDrugs(prescription.ID, analysis.DrugLines())

	err = s.store.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
		if err := q.InsertPrescription(ctx, prescription); err != nil {
			return err
		}
		for _, d := range drugs {
			if err := q.InsertDrug(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("failed to persist prescription", err)
	}

	s.logger.Info("Stored prescription",
		zap.String("prescription_id", prescription.ID),
		zap.String("patient_id", req.PatientID),
		zap.String("risk_level", string(prescription.RiskLevel)),
		zap.Int("drug_count", len(drugs)))

	return analysis.Shape(prescription.ID, req.PatientID), nil
}

// analyze runs the vision call under the configured timeout.
func (s *prescriptionService) analyze(ctx context.Context, req IngestRequest) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
	defer cancel()

	image := base64.StdEncoding.EncodeToString(req.Image)

	start := time.Now()
	raw, err := s.vision.Analyze(ctx, prompts.PrescriptionAnalysis(), image, req.MediaType)
	elapsed := time.Since(start)
	s.recorder.RecordAnalysis(s.vision.GetModel(), elapsed, err == nil)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrUpstream, "vision analysis timed out after "+s.cfg.AnalysisTimeout.String())
		}
		return nil, apperrors.Wrap(apperrors.ErrUpstream, "vision analysis failed", err)
	}

	s.logger.Debug("Vision analysis complete",
		zap.String("model", s.vision.GetModel()),
		zap.Int("image_bytes", len(req.Image)),
		zap.Duration("elapsed", elapsed))
	return raw, nil
}

func (s *prescriptionService) buildPrescription(req IngestRequest, a models.Analysis) *models.Prescription {
	doctorID := req.DoctorID
	if doctorID == "" {
		doctorID = s.cfg.DefaultDoctorID
	}
	var doctor *string
	if doctorID != "" {
		doctor = &doctorID
	}

	return &models.Prescription{
		ID:                      models.NewID(models.PrescriptionIDPrefix),
		PatientID:               req.PatientID,
		DoctorID:                doctor,
		RiskLevel:               a.RiskLevel(),
		Summary:                 a.Summary(),
		Recommendations:         a.Recommendations(),
		AlternativePrescription: a.Alternative(),
		Disclaimer:              a.Disclaimer(),
		CreatedAt:               s.now().UTC(),
	}
}

func buildDrugs(prescriptionID string, lines []models.DrugLine) []*models.PrescribedDrug {
	drugs := make([]*models.PrescribedDrug, 0, len(lines))
	for i, line := range lines {
		drugs = append(drugs, &models.PrescribedDrug{
			ID:             models.NewID(models.DrugIDPrefix),
			PrescriptionID: prescriptionID,
			LineNumber:     i,
			Name:           line.Name,
			Dosage:         line.Dosage,
			Frequency:      line.Frequency,
		})
	}
	return drugs
}

func (s *prescriptionService) History(ctx context.Context, patientID string) ([]*models.Prescription, error) {
	return s.store.ListPrescriptionsByPatient(ctx, patientID)
}

func (s *prescriptionService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePrescription(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted prescription", zap.String("prescription_id", id))
	return nil
}
