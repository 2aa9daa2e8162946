package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

// PatientService defines the interface for patient operations.
type PatientService interface {
	List(ctx context.Context) ([]*models.Patient, error)
	Get(ctx context.Context, id string) (*models.Patient, error)
	Create(ctx context.Context, input models.NewPatient) (*models.Patient, error)
	// Delete removes the patient together with its prescription history.
	Delete(ctx context.Context, id string) error
}

type patientService struct {
	store  storage.Queries
	now    func() time.Time
	logger *zap.Logger
}

// NewPatientService creates a new patient service with dependencies.
func NewPatientService(store storage.Queries, logger *zap.Logger) PatientService {
	return &patientService{
		store:  store,
		now:    time.Now,
		logger: logger.Named("patients"),
	}
}

func (s *patientService) List(ctx context.Context) ([]*models.Patient, error) {
	return s.store.ListPatients(ctx)
}

func (s *patientService) Get(ctx context.Context, id string) (*models.Patient, error) {
	return s.store.GetPatient(ctx, id)
}

// Create validates the required fields and stores a new patient.
func (s *patientService) Create(ctx context.Context, input models.NewPatient) (*models.Patient, error) {
	if missing := input.MissingFields(); len(missing) > 0 {
		return nil, apperrors.New(apperrors.ErrValidation,
			"missing required fields: "+strings.Join(missing, ", "))
	}

	patient := input.Build(models.NewID(models.PatientIDPrefix), s.now().UTC())
	if err := s.store.InsertPatient(ctx, patient); err != nil {
		return nil, err
	}

	s.logger.Info("Created patient", zap.String("patient_id", patient.ID))
	return patient, nil
}

func (s *patientService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted patient", zap.String("patient_id", id))
	return nil
}
