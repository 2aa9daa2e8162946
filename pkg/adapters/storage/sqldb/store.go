// Package sqldb implements the storage engines that sit on database/sql:
// SQL Server, MySQL and SQLite. The queries are shared and only the
// placeholder syntax and DSN differ per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage"
	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-rx/pkg/database"
	"github.com/ekaya-inc/ekaya-rx/pkg/logging"
	"github.com/ekaya-inc/ekaya-rx/pkg/models"
	"github.com/ekaya-inc/ekaya-rx/pkg/retry"
)

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a database/sql backed storage.Store.
type Store struct {
	*queries
	db     *sql.DB
	dsn    string
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects with the dialect, waits for the server and, when
// cfg.AutoMigrate is set, applies the embedded migrations.
func Open(ctx context.Context, dialect *Dialect, cfg *storage.Config, logger *zap.Logger) (*Store, error) {
	dsn, err := dialect.DSN(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfiguration, "invalid "+dialect.DisplayName+" settings", err)
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.DisplayName, err)
	}

	if dialect.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dialect.MaxOpenConns)
	} else if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConnections))
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	if err := database.Ping(ctx, db.PingContext, retry.StartupConfig(), logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %s", dialect.DisplayName, logging.SanitizeError(err))
	}

	if cfg.AutoMigrate {
		migrationDB, err := sql.Open(dialect.DriverName, dsn)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open migration connection: %w", err)
		}
		if err := database.RunMigrations(migrationDB, dialect.Name, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Info("Connected to storage", zap.String("driver", dialect.DriverName))
	store := New(db, dialect, logger)
	store.dsn = dsn
	return store, nil
}

// New wraps an already open database. The schema must exist.
func New(db *sql.DB, dialect *Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		queries: &queries{ex: db, dialect: dialect},
		db:      db,
		logger:  logger,
	}
}

// DB exposes the underlying pool for migrations and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Engine() string { return s.dialect.Name }

// SchemaVersion reads the migration version over a dedicated connection.
func (s *Store) SchemaVersion(ctx context.Context) (uint, bool, error) {
	if s.dsn == "" {
		return 0, false, apperrors.New(apperrors.ErrConfiguration, "store was not opened from settings")
	}
	db, err := sql.Open(s.dialect.DriverName, s.dsn)
	if err != nil {
		return 0, false, apperrors.Storage("open migration connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return 0, false, apperrors.Storage("ping", err)
	}
	return database.MigrationVersion(db, s.dialect.Name)
}

var _ storage.Migrator = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Storage("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTransaction runs fn inside a database transaction.
func (s *Store) WithTransaction(ctx context.Context, fn storage.TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Storage("begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("Failed to roll back transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &queries{ex: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage("commit transaction", err)
	}
	committed = true
	return nil
}

// queries implements storage.Queries over any executor.
type queries struct {
	ex      executor
	dialect *Dialect
}

var _ storage.Queries = (*queries)(nil)

const patientColumns = `id, full_name, dob, gender, blood_type, contact_number,
	emergency_contact, allergies, medical_history, created_at, updated_at`

const prescriptionColumns = `id, patient_id, doctor_id, risk_level, summary,
	recommendations, alternative_prescription, disclaimer, created_at`

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.dialect.Rebind(query), args...)
}

func (q *queries) ListPatients(ctx context.Context) ([]*models.Patient, error) {
	rows, err := q.query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.Storage("list patients", err)
	}
	defer rows.Close()

	out := make([]*models.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
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

func (q *queries) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	p, err := scanPatient(q.queryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("patient", id)
	}
	if err != nil {
		return nil, apperrors.Storage("get patient", err)
	}
	return p, nil
}

func (q *queries) PatientExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM patients WHERE id = ?`, id).Scan(&n); err != nil {
		return false, apperrors.Storage("check patient", err)
	}
	return n > 0, nil
}

func (q *queries) InsertPatient(ctx context.Context, p *models.Patient) error {
	_, err := q.exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.FullName, p.DOB, p.Gender, p.BloodType, p.ContactNumber,
		p.EmergencyContact, p.Allergies, p.MedicalHistory,
		dbTime(p.CreatedAt), dbTime(p.UpdatedAt))
	if err != nil {
		return apperrors.Storage("insert patient", err)
	}
	return nil
}

func (q *queries) DeletePatient(ctx context.Context, id string) error {
	result, err := q.exec(ctx, `DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return apperrors.Storage("delete patient", err)
	}
	return requireAffected(result, "patient", id)
}

func (q *queries) InsertPrescription(ctx context.Context, p *models.Prescription) error {
	recs, err := models.EncodeRecommendations(p.Recommendations)
	if err != nil {
		return err
	}
	alt, err := models.EncodeAlternative(p.AlternativePrescription)
	if err != nil {
		return err
	}

	_, err = q.exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PatientID, nullString(p.DoctorID), string(p.RiskLevel), p.Summary,
		recs, nullString(alt), p.Disclaimer, dbTime(p.CreatedAt))
	if err != nil {
		return apperrors.Storage("insert prescription", err)
	}
	return nil
}

func (q *queries) InsertDrug(ctx context.Context, d *models.PrescribedDrug) error {
	_, err := q.exec(ctx, `
		INSERT INTO prescribed_drugs (id, prescription_id, line_number, name, dosage, frequency)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.PrescriptionID, d.LineNumber, d.Name, d.Dosage, d.Frequency)
	if err != nil {
		return apperrors.Storage("insert prescribed drug", err)
	}
	return nil
}

func (q *queries) ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]*models.Prescription, error) {
	rows, err := q.query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE patient_id = ?
		ORDER BY created_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, apperrors.Storage("list prescriptions", err)
	}
	defer rows.Close()

	out := make([]*models.Prescription, 0)
	byID := make(map[string]*models.Prescription)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("list prescriptions", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	drugRows, err := q.query(ctx, `
		SELECT d.id, d.prescription_id, d.line_number, d.name, d.dosage, d.frequency
		FROM prescribed_drugs d
		JOIN prescriptions p ON p.id = d.prescription_id
		WHERE p.patient_id = ?
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

func (q *queries) DeletePrescription(ctx context.Context, id string) error {
	result, err := q.exec(ctx, `DELETE FROM prescriptions WHERE id = ?`, id)
	if err != nil {
		return apperrors.Storage("delete prescription", err)
	}
	return requireAffected(result, "prescription", id)
}

func (q *queries) CountPatients(ctx context.Context) (int64, error) {
	return q.count(ctx, "count patients", `SELECT COUNT(*) FROM patients`)
}

func (q *queries) CountPrescriptionsSince(ctx context.Context, since time.Time) (int64, error) {
	return q.count(ctx, "count recent prescriptions",
		`SELECT COUNT(*) FROM prescriptions WHERE created_at >= ?`, dbTime(since))
}

func (q *queries) CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (int64, error) {
	return q.count(ctx, "count prescriptions by risk",
		`SELECT COUNT(*) FROM prescriptions WHERE risk_level = ?`, string(risk))
}

func (q *queries) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperrors.Storage(op, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPatient(row scanner) (*models.Patient, error) {
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

func scanPrescription(row scanner) (*models.Prescription, error) {
	var (
		p           models.Prescription
		doctorID    sql.NullString
		risk        string
		recs        string
		alternative sql.NullString
	)
	err := row.Scan(&p.ID, &p.PatientID, &doctorID, &risk, &p.Summary,
		&recs, &alternative, &p.Disclaimer, &p.CreatedAt)
	if err != nil {
		return nil, apperrors.Storage("scan prescription", err)
	}

	p.RiskLevel = models.RiskLevel(risk)
	p.CreatedAt = p.CreatedAt.UTC()
	if doctorID.Valid {
		p.DoctorID = &doctorID.String
	}
	if p.Recommendations, err = models.DecodeRecommendations(recs); err != nil {
		return nil, err
	}
	var altCol *string
	if alternative.Valid {
		altCol = &alternative.String
	}
	if p.AlternativePrescription, err = models.DecodeAlternative(altCol); err != nil {
		return nil, err
	}
	p.ExtractedDrugs = []models.PrescribedDrug{}
	return &p, nil
}

func requireAffected(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Storage("rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound(entity, id)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// dbTime normalizes to UTC at microsecond precision, the finest resolution
// every dialect stores.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
