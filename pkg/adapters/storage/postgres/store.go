// Package postgres is the PostgreSQL storage engine built on pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/database"
	"github.com/ekaya-inc/ekaya-rx/pkg/logging"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/retry"
)

// EngineName is the registry key for this engine.
const EngineName = database.EnginePostgres

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a pgxpool backed storage.Store.
type Store struct {
	*queries
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open creates the pool, waits for the server and optionally migrates.
func Open(ctx context.Context, cfg *storage.Config, logger *zap.Logger) (*Store, error) {
	connStr, err := ConnectionString(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfiguration, "invalid PostgreSQL settings", err)
	}

	pool, err := database.NewPostgresPool(ctx, &database.PoolConfig{
		URL:             connStr,
		MaxConnections:  cfg.MaxConnections,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		Retry:           retry.StartupConfig(),
	}, logger)
	if err != nil {
		return nil, errors.New(logging.SanitizeError(err))
	}

	if cfg.AutoMigrate {
		if err := database.RunMigrations(stdlib.OpenDBFromPool(pool), database.EnginePostgres, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Info("Connected to storage", zap.String("driver", "pgx"))
	return New(pool, logger), nil
}

// New wraps an existing pool. The schema must exist.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{queries: &queries{q: pool}, pool: pool, logger: logger}
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Engine() string { return EngineName }

// SchemaVersion reads the migration version through the pool.
func (s *Store) SchemaVersion(ctx context.Context) (uint, bool, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return 0, false, apperrors.Storage("ping", err)
	}
	return database.MigrationVersion(stdlib.OpenDBFromPool(s.pool), EngineName)
}

var _ storage.Migrator = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperrors.Storage("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithTransaction runs fn inside a pgx transaction.
func (s *Store) WithTransaction(ctx context.Context, fn storage.TxFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Storage("begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback on a fresh context so a cancelled request still releases the connection.
		rbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Storage("commit transaction", err)
	}
	committed = true
	return nil
}

type queries struct {
	q queryable
}

var _ storage.Queries = (*queries)(nil)

const patientCols = `id, full_name, dob, gender, blood_type, contact_number,
	emergency_contact, allergies, medical_history, created_at, updated_at`

const prescriptionCols = `id, patient_id, doctor_id, risk_level, summary,
	recommendations, alternative_prescription, disclaimer, created_at`

func (r *queries) scanPatient(row pgx.Row) (*models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.ID, &p.FullName, &p.DOB, &p.Gender, &p.BloodType, &p.ContactNumber,
		&p.EmergencyContact, &p.Allergies, &p.MedicalHistory, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (r *queries) ListPatients(ctx context.Context) ([]*models.Patient, error) {
	rows, err := r.q.Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.Storage("list patients", err)
	}
	defer rows.Close()

	out := make([]*models.Patient, 0)
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, apperrors.Storage("scan patient", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("list patients", err)
	}
	return out, nil
}

func (r *queries) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	p, err := r.scanPatient(r.q.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("patient", id)
	}
	if err != nil {
		return nil, apperrors.Storage("get patient", err)
	}
	return p, nil
}

func (r *queries) PatientExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperrors.Storage("check patient", err)
	}
	return exists, nil
}

func (r *queries) InsertPatient(ctx context.Context, p *models.Patient) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.FullName, p.DOB, p.Gender, p.BloodType, p.ContactNumber,
		p.EmergencyContact, p.Allergies, p.MedicalHistory, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperrors.Storage("insert patient", err)
	}
	return nil
}

func (r *queries) DeletePatient(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return apperrors.Storage("delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("patient", id)
	}
	return nil
}

func (r *queries) InsertPrescription(ctx context.Context, p *models.Prescription) error {
	recs, err := models.EncodeRecommendations(p.Recommendations)
	if err != nil {
		return err
	}
	alt, err := models.EncodeAlternative(p.AlternativePrescription)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.PatientID, p.DoctorID, string(p.RiskLevel), p.Summary,
		recs, alt, p.Disclaimer, p.CreatedAt)
	if err != nil {
		return apperrors.Storage("insert prescription", err)
	}
	return nil
}

func (r *queries) InsertDrug(ctx context.Context, d *models.PrescribedDrug) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO prescribed_drugs (id, prescription_id, line_number, name, dosage, frequency)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.PrescriptionID, d.LineNumber, d.Name, d.Dosage, d.Frequency)
	if err != nil {
		return apperrors.Storage("insert prescribed drug", err)
	}
	return nil
}

func (r *queries) ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]*models.Prescription, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+prescriptionCols+`
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, apperrors.Storage("list prescriptions", err)
	}

	out := make([]*models.Prescription, 0)
	byID := make(map[string]*models.Prescription)
	for rows.Next() {
		var (
			p    models.Prescription
			risk string
			recs string
			alt  *string
		)
		if err := rows.Scan(&p.ID, &p.PatientID, &p.DoctorID, &risk, &p.Summary,
			&recs, &alt, &p.Disclaimer, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, apperrors.Storage("scan prescription", err)
		}
		p.RiskLevel = models.RiskLevel(risk)
		p.CreatedAt = p.CreatedAt.UTC()
		if p.Recommendations, err = models.DecodeRecommendations(recs); err != nil {
			rows.Close()
			return nil, err
		}
		if p.AlternativePrescription, err = models.DecodeAlternative(alt); err != nil {
			rows.Close()
			return nil, err
		}
		p.ExtractedDrugs = []models.PrescribedDrug{}
		out = append(out, &p)
		byID[p.ID] = &p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("list prescriptions", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	drugRows, err := r.q.Query(ctx, `
		SELECT d.id, d.prescription_id, d.line_number, d.name, d.dosage, d.frequency
		FROM prescribed_drugs d
		JOIN prescriptions p ON p.id = d.prescription_id
		WHERE p.patient_id = $1
		ORDER BY d.prescription_id, d.line_number`, patientID)
	if err != nil {
		return nil, apperrors.Storage("list prescribed drugs", err)
	}
	defer drugRows.Close()

	for drugRows.Next() {
		var d models.PrescribedDrug
		if err := drugRows.Scan(&d.ID, &d.PrescriptionID, &d.LineNumber, &d.Name, &d.Dosage, &d.Frequency); err != nil {
			return nil, apperrors.Storage("scan prescribed drug", err)
		}
		if p, ok := byID[d.PrescriptionID]; ok {
			p.ExtractedDrugs = append(p.ExtractedDrugs, d)
		}
	}
	if err := drugRows.Err(); err != nil {
		return nil, apperrors.Storage("list prescribed drugs", err)
	}
	return out, nil
}

func (r *queries) DeletePrescription(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return apperrors.Storage("delete prescription", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("prescription", id)
	}
	return nil
}

func (r *queries) CountPatients(ctx context.Context) (int64, error) {
	return r.count(ctx, "count patients", `SELECT COUNT(*) FROM patients`)
}

func (r *queries) CountPrescriptionsSince(ctx context.Context, since time.Time) (int64, error) {
	return r.count(ctx, "count recent prescriptions",
		`SELECT COUNT(*) FROM prescriptions WHERE created_at >= $1`, since)
}

func (r *queries) CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (int64, error) {
	return r.count(ctx, "count prescriptions by risk",
		`SELECT COUNT(*) FROM prescriptions WHERE risk_level = $1`, string(risk))
}

func (r *queries) count(ctx context.Context, op, sql string, args ...any) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, apperrors.Storage(op, err)
	}
	return n, nil
}
