package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

var errDiskFull = errors.New("disk full")

// failingStore wraps a real store and makes the Nth InsertDrug inside a
// transaction fail, after the earlier inserts already succeeded.
type failingStore struct {
	storage.Store
	failOnDrug int

	insertedDrugs int
}

func (s *failingStore) WithTransaction(ctx context.Context, fn storage.TxFunc) error {
	return s.Store.WithTransaction(ctx, func(ctx context.Context, q storage.Queries) error {
		return fn(ctx, &failingQueries{Queries: q, store: s})
	})
}

type failingQueries struct {
	storage.Queries
	store *failingStore
}

func (q *failingQueries) InsertDrug(ctx context.Context, d *models.PrescribedDrug) error {
	q.store.insertedDrugs++
	if q.store.insertedDrugs == q.store.failOnDrug {
		return apperrors.Storage("insert prescribed drug", errDiskFull)
	}
	return q.Queries.InsertDrug(ctx, d)
}

// mockCounters is a configurable Queries stub for the stats service.
type mockCounters struct {
	storage.Queries

	patients int64
	today    int64
	highRisk int64
	countErr error

	capturedSince time.Time
	capturedRisk  models.RiskLevel
}

func (m *mockCounters) CountPatients(ctx context.Context) (int64, error) {
	return m.patients, m.countErr
}

func (m *mockCounters) CountPrescriptionsSince(ctx context.Context, since time.Time) (int64, error) {
	m.capturedSince = since
	return m.today, m.countErr
}

func (m *mockCounters) CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (int64, error) {
	m.capturedRisk = risk
	return m.highRisk, m.countErr
}

// fakeRecorder captures ingestion metrics.
type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	analyses []bool
}

func (r *fakeRecorder) RecordIngestion(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) RecordAnalysis(model string, duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, success)
}
