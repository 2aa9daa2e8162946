// Package storage defines the persistence contract for patients, prescriptions
// and prescribed drugs. Engines live in subpackages and register themselves in
// init(); import them for side effects to make them available to Open.
package storage

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-rx/pkg/models"
)

// Queries is the set of operations available both on a Store and inside a
// transaction. Every error returned is an apperrors ErrStorage unless noted.
type Queries interface {
	// ListPatients returns all patients, newest first.
	ListPatients(ctx context.Context) ([]*models.Patient, error)
	// GetPatient returns ErrNotFound when no patient has the id.
	GetPatient(ctx context.Context, id string) (*models.Patient, error)
	PatientExists(ctx context.Context, id string) (bool, error)
	InsertPatient(ctx context.Context, p *models.Patient) error
	// DeletePatient removes the patient and, by cascade, its prescriptions
	// and their drugs. Returns ErrNotFound when nothing was deleted.
	DeletePatient(ctx context.Context, id string) error

	InsertPrescription(ctx context.Context, p *models.Prescription) error
	InsertDrug(ctx context.Context, d *models.PrescribedDrug) error
	// ListPrescriptionsByPatient returns the patient's prescriptions newest
	// first, each with its drugs in extraction order.
	ListPrescriptionsByPatient(ctx context.Context, patientID string) ([]*models.Prescription, error)
	// DeletePrescription removes the prescription and its drugs.
	// Returns ErrNotFound when nothing was deleted.
	DeletePrescription(ctx context.Context, id string) error

	CountPatients(ctx context.Context) (int64, error)
	CountPrescriptionsSince(ctx context.Context, since time.Time) (int64, error)
	CountPrescriptionsByRisk(ctx context.Context, risk models.RiskLevel) (int64, error)
}

// TxFunc is the unit of work run by WithTransaction.
type TxFunc func(ctx context.Context, q Queries) error

// Store is an open storage engine.
type Store interface {
	Queries

	// WithTransaction runs fn against a transactional view of the store.
	// The transaction commits when fn returns nil and rolls back when fn
	// returns an error or panics; the panic is re-raised after rollback.
	WithTransaction(ctx context.Context, fn TxFunc) error

	Ping(ctx context.Context) error
	Close() error

	// Engine returns the registered engine name.
	Engine() string
}

// Migrator is implemented by engines with a versioned schema.
type Migrator interface {
	// SchemaVersion reports the applied migration version and whether the
	// last migration failed part way. Version 0 means none were applied.
	SchemaVersion(ctx context.Context) (version uint, dirty bool, err error)
}

// Config holds connection settings shared by all engines. Engines ignore the
// fields that do not apply to them.
type Config struct {
	Engine   string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Postgres sslmode: "disable", "require", "verify-ca", "verify-full".
	SSLMode string

	// SQL Server transport options.
	Encrypt                bool
	TrustServerCertificate bool

	// Path is the sqlite database file.
	Path string

	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies pending schema migrations on open.
	AutoMigrate bool
}
