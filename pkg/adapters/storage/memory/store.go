// Package memory is an in-process storage engine. It enforces the same
// foreign keys and cascades as the SQL engines and is used for tests and
// demos; data does not survive a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

// EngineName is the registry key for this engine.
const EngineName = "memory"

var errClosed = errors.New("store is closed")

// Store keeps all rows in maps guarded by a single mutex. Transactions hold
// the mutex for their whole duration and work on a copy of the data which
// replaces the live copy on commit.
type Store struct {
	mu     sync.Mutex
	data   *tables
	closed bool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{data: newTables(), logger: logger}
}

func (s *Store) Engine() string { return EngineName }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.Storage("ping", errClosed)
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// WithTransaction runs fn on a snapshot of the data and publishes the
// snapshot only if fn succeeds.
func (s *Store) WithTransaction(ctx context.Context, fn storage.TxFunc) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.Storage("begin transaction", errClosed)
	}

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Warn("Rolling back transaction after panic", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(ctx, snapshot); err != nil {
		s.logger.Debug("Rolled back transaction", zap.Error(err))
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("commit transaction", err)
	}
	s.data = snapshot
	return nil
}

// locked runs fn against the live data.
func (s *Store) locked(fn func(t *tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.Storage("query", errClosed)
	}
	return fn(s.data)
}

func (s *Store) ListPatients(ctx context.Context) (out []*models.Patient, err error) {
	err = s.locked(func(t *tables) error {
		out, err = t.ListPatients(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetPatient(ctx context.Context, id string) (out *models.Patient, err error) {
	err = s.locked(func(t *tables) error {
		out, err = t.GetPatient(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PatientExists(ctx context.Context, id string) (ok bool, err error) {
	err = s.locked(func(t *tables) error {
		ok, err = t.PatientExists(ctx, id)
		return err
	})
	return ok, err
}

func (s *Store) InsertPatient(ctx context.Context, p *models.Patient) error {
	return s.locked(func(t *tables) error { return t.InsertPatient(ctx, p) })
}

func (s *Store) DeletePatient(ctx context.Context, id string) error {
	return s.locked(func(t *tables) error { return t.DeletePatient(ctx, id) })
}

func (s *Store) InsertPrescription(ctx context.Context, p *models.Prescription) error {
	return s.locked(func(t *tables) error { return t.InsertPrescription(ctx, p) })
}

func (s *Store) InsertDrug(ctx context.Context, d *models.PrescribedDrug) error {
	return s.locked(func(t *tables) error { return t.InsertDrug(ctx, d) })
}

func (s *Store) ListPrescriptionsByPatient(ctx context.Context, patientID string) (out []*models.Prescription, err error) {
	err = s.locked(func(t *tables) error {
		out, err = t.ListPrescriptionsByPatient(ctx, patientID)
		return err
	})
	return out, err
}

func (s *Store) DeletePrescription(ctx context.Context, id string) error {
	return s.locked(func(t *tables) error { return t.DeletePrescription(ctx, id) })
}

func (s *Store) CountPatients(ctx context.Context) (n int64, err error) {
	err = s.locked(func(t *tables) error {
		n, err = t.CountPatients(ctx)
		return err
	})
	return n, err
}

func (s *Store) CountPrescriptionsSince(ctx context.Context, since time.Time) (n int64, err error) {
	err = s.locked(func(t *tables) error {
		n, err = t.CountPrescriptionsSince(ctx, since)
		return err
	})
	return n, err
}

func (s *Store) CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (n int64, err error) {
	err = s.locked(func(t *tables) error {
		n, err = t.CountPrescriptionsByRisk(ctx, risk)
		return err
	})
	return n, err
}

// tables is one consistent copy of the data. It implements storage.Queries
// without locking; the owning Store serializes access.
type tables struct {
	patients      map[string]models.Patient
	prescriptions map[string]storedPrescription
	drugs         map[string]models.PrescribedDrug
}

// storedPrescription keeps the JSON columns encoded, as the SQL engines do,
// so round-trip behavior is identical across engines.
type storedPrescription struct {
	row             models.Prescription
	recommendations string
	alternative     *string
}

var _ storage.Queries = (*tables)(nil)

func newTables() *tables {
	return &tables{
		patients:      make(map[string]models.Patient),
		prescriptions: make(map[string]storedPrescription),
		drugs:         make(map[string]models.PrescribedDrug),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		patients:      make(map[string]models.Patient, len(t.patients)),
		prescriptions: make(map[string]storedPrescription, len(t.prescriptions)),
		drugs:         make(map[string]models.PrescribedDrug, len(t.drugs)),
	}
	for k, v := range t.patients {
		c.patients[k] = v
	}
	for k, v := range t.prescriptions {
		c.prescriptions[k] = v
	}
	for k, v := range t.drugs {
		c.drugs[k] = v
	}
	return c
}

func (t *tables) ListPatients(ctx context.Context) ([]*models.Patient, error) {
	out := make([]*models.Patient, 0, len(t.patients))
	for _, p := range t.patients {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tables) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	p, ok := t.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", id)
	}
	return &p, nil
}

func (t *tables) PatientExists(ctx context.Context, id string) (bool, error) {
	_, ok := t.patients[id]
	return ok, nil
}

func (t *tables) InsertPatient(ctx context.Context, p *models.Patient) error {
	if _, dup := t.patients[p.ID]; dup {
		return apperrors.Storage("insert patient", fmt.Errorf("duplicate key %q", p.ID))
	}
	t.patients[p.ID] = *p
	return nil
}

func (t *tables) DeletePatient(ctx context.Context, id string) error {
	if _, ok := t.patients[id]; !ok {
		return apperrors.NotFound("patient", id)
	}
	delete(t.patients, id)
	for presID, pres := range t.prescriptions {
		if pres.row.PatientID == id {
			t.deletePrescription(presID)
		}
	}
	return nil
}

func (t *tables) InsertPrescription(ctx context.Context, p *models.Prescription) error {
	if _, dup := t.prescriptions[p.ID]; dup {
		return apperrors.Storage("insert prescription", fmt.Errorf("duplicate key %q", p.ID))
	}
	if _, ok := t.patients[p.PatientID]; !ok {
		return apperrors.Storage("insert prescription",
			fmt.Errorf("foreign key violation: patient %q does not exist", p.PatientID))
	}
	recs, err := models.EncodeRecommendations(p.Recommendations)
	if err != nil {
		return err
	}
	alt, err := models.EncodeAlternative(p.AlternativePrescription)
	if err != nil {
		return err
	}

	row := *p
	row.Recommendations = nil
	row.AlternativePrescription = nil
	row.ExtractedDrugs = nil
	t.prescriptions[p.ID] = storedPrescription{row: row, recommendations: recs, alternative: alt}
	return nil
}

func (t *tables) InsertDrug(ctx context.Context, d *models.PrescribedDrug) error {
	if _, dup := t.drugs[d.ID]; dup {
		return apperrors.Storage("insert prescribed drug", fmt.Errorf("duplicate key %q", d.ID))
	}
	if _, ok := t.prescriptions[d.PrescriptionID]; !ok {
		return apperrors.Storage("insert prescribed drug",
			fmt.Errorf("foreign key violation: prescription %q does not exist", d.PrescriptionID))
	}
	t.drugs[d.ID] = *d
	return nil
}

func (t *tables) ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]*models.Prescription, error) {
	out := make([]*models.Prescription, 0)
	for _, stored := range t.prescriptions {
		if stored.row.PatientID != patientID {
			continue
		}
		p, err := stored.decode()
		if err != nil {
			return nil, err
		}
		p.ExtractedDrugs = t.drugsFor(p.ID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tables) DeletePrescription(ctx context.Context, id string) error {
	if _, ok := t.prescriptions[id]; !ok {
		return apperrors.NotFound("prescription", id)
	}
	t.deletePrescription(id)
	return nil
}

func (t *tables) CountPatients(ctx context.Context) (int64, error) {
	return int64(len(t.patients)), nil
}

func (t *tables) CountPrescriptionsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	for _, p := range t.prescriptions {
		if !p.row.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t *tables) CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (int64, error) {
	var n int64
	for _, p := range t.prescriptions {
		if p.row.RiskLevel == risk {
			n++
		}
	}
	return n, nil
}

func (t *tables) deletePrescription(id string) {
	delete(t.prescriptions, id)
	for drugID, d := range t.drugs {
		if d.PrescriptionID == id {
			delete(t.drugs, drugID)
		}
	}
}

func (t *tables) drugsFor(prescriptionID string) []models.PrescribedDrug {
	out := make([]models.PrescribedDrug, 0)
	for _, d := range t.drugs {
		if d.PrescriptionID == prescriptionID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out
}

func (s storedPrescription) decode() (*models.Prescription, error) {
	p := s.row
	recs, err := models.DecodeRecommendations(s.recommendations)
	if err != nil {
		return nil, err
	}
	alt, err := models.DecodeAlternative(s.alternative)
	if err != nil {
		return nil, err
	}
	p.Recommendations = recs
	p.AlternativePrescription = alt
	return &p, nil
}
