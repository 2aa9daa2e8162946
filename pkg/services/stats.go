package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

// StatsWindow is the trailing window counted as "today".
const StatsWindow = 24 * time.Hour

// StatsService computes the dashboard counters.
type StatsService interface {
	Get(ctx context.Context) (*models.Stats, error)
}

type statsService struct {
	store  storage.Queries
	now    func() time.Time
	logger *zap.Logger
}

// NewStatsService creates a stats service. A nil now uses time.Now.
func NewStatsService(store storage.Queries, now func() time.Time, logger *zap.Logger) StatsService {
	if now == nil {
		now = time.Now
	}
	return &statsService{
		store:  store,
		now:    now,
		logger: logger.Named("stats"),
	}
}

// Get runs the three counts independently; they are not read in one snapshot.
func (s *statsService) Get(ctx context.Context) (*models.Stats, error) {
	patients, err := s.store.CountPatients(ctx)
	if err != nil {
		return nil, err
	}

	today, err := s.store.CountPrescriptionsSince(ctx, s.now().UTC().Add(-StatsWindow))
	if err != nil {
		return nil, err
	}

	highRisk, err := s.store.CountPrescriptionsByRisk(ctx, models.RiskHigh)
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		TotalPatients:      patients,
		PrescriptionsToday: today,
		HighRiskAlerts:     highRisk,
	}, nil
}
