// Package migration drives schema changes for the ledger database. It wraps
// golang-migrate, folding its ErrNoChange sentinel into a logged no-op so
// callers treat "already current" as success.
package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Runner applies versioned SQL migrations from a directory against the
// ledger's Postgres schema.
type Runner struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

// Status reports where the schema sits. Applied is false on a fresh
// database where no version has ever been recorded.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

// NewRunner builds a Runner over an open connection. The directory holds
// the *.up.sql / *.down.sql pairs.
func NewRunner(db *sql.DB, dir string, logger *zap.Logger) (*Runner, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	return &Runner{m: m, logger: logger}, nil
}

// Apply runs every pending up migration.
func (r *Runner) Apply() error {
	r.logger.Info("applying pending migrations")
	return r.settle(r.m.Up(), "apply")
}

// Rollback reverses every applied migration.
func (r *Runner) Rollback() error {
	r.logger.Info("rolling back all migrations")
	return r.settle(r.m.Down(), "rollback")
}

// Step moves n versions, up for positive n and down for negative.
func (r *Runner) Step(n int) error {
	r.logger.Info("stepping migrations", zap.Int("steps", n))
	return r.settle(r.m.Steps(n), "step")
}

// To migrates up or down until the schema sits at version.
func (r *Runner) To(version uint) error {
	r.logger.Info("migrating to version", zap.Uint("target", version))
	return r.settle(r.m.Migrate(version), "goto")
}

// CurrentStatus reads the recorded schema version.
func (r *Runner) CurrentStatus() (Status, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}

// Force overwrites the recorded version without running any SQL. The only
// legitimate use is clearing a dirty flag after a failed migration was
// repaired by hand.
func (r *Runner) Force(version int) error {
	r.logger.Warn("forcing schema version", zap.Int("version", version))
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Reset drops every object in the database, data included.
func (r *Runner) Reset() error {
	r.logger.Warn("dropping all database objects")
	if err := r.m.Drop(); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.m.Close()
	if sourceErr != nil {
		return fmt.Errorf("close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migration db: %w", dbErr)
	}
	return nil
}

// settle maps golang-migrate outcomes onto the Runner's contract and logs
// the landing version.
func (r *Runner) settle(err error, action string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("schema already current", zap.String("action", action))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s migrations: %w", action, err)
	}

	st, err := r.CurrentStatus()
	if err != nil {
		return err
	}
	r.logger.Info("migrations finished",
		zap.String("action", action),
		zap.Uint("version", st.Version),
		zap.Bool("dirty", st.Dirty))
	return nil
}
