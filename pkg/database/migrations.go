package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/migrations"
)

// Migration engine names. They match the directories under migrations/.
const (
	EnginePostgres  = "postgres"
	EngineSQLServer = "sqlserver"
	EngineMySQL     = "mysql"
	EngineSQLite    = "sqlite"
)

// ErrUnsupportedEngine is returned for an engine with no embedded migrations.
var ErrUnsupportedEngine = errors.New("no migrations for engine")

func migrationDriver(db *sql.DB, engine string) (database.Driver, error) {
	switch engine {
	case EnginePostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	case EngineSQLServer:
		return sqlserver.WithInstance(db, &sqlserver.Config{})
	case EngineMySQL:
		return mysql.WithInstance(db, &mysql.Config{})
	case EngineSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
}

// embeddedMigrations lists the migration files shipped for engine.
func embeddedMigrations(engine string) ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, engine)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func newMigrate(db *sql.DB, engine string) (*migrate.Migrate, error) {
	if _, err := embeddedMigrations(engine); err != nil {
		return nil, err
	}

	driver, err := migrationDriver(db, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, engine)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, engine, driver)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations executes pending migrations embedded for the given engine.
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
// The migration driver pins a connection, so db must be dedicated to this
// call; it is closed before RunMigrations returns.
func RunMigrations(db *sql.DB, engine string, logger *zap.Logger) error {
	m, err := newMigrate(db, engine)
	if err != nil {
		_ = db.Close()
		return err
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("engine", engine))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("engine", engine),
		zap.Uint("version", newVersion))
	return nil
}

// MigrationVersion reports the current schema version and whether the last
// migration left the schema dirty. Like RunMigrations it closes db.
func MigrationVersion(db *sql.DB, engine string) (uint, bool, error) {
	m, err := newMigrate(db, engine)
	if err != nil {
		_ = db.Close()
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
