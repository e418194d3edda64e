package db

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/W3LABS/points_engine/pkg/logger"
)

// ServiceImpl implements the Service interface against PostgreSQL.
type ServiceImpl struct {
	db *sql.DB
}

// Operations abstracts opening and migrating the database so tests can
// substitute sqlmock.
type Operations interface {
	Open(driverName, dataSourceName string) (*sql.DB, error)
	RunMigrations(db *sql.DB) error
}

type defaultOperations struct{}

func (defaultOperations) Open(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

func (defaultOperations) RunMigrations(db *sql.DB) error {
	return RunMigrations(db)
}

// DefaultOperations returns the production Operations implementation.
func DefaultOperations() Operations {
	return defaultOperations{}
}

// NewService opens the database, runs migrations, and returns a Service.
func NewService(ops Operations, databaseURL string) (Service, error) {
	if ops == nil {
		ops = defaultOperations{}
	}

	db, err := ops.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := ops.RunMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &ServiceImpl{db: db}, nil
}

// RunMigrations applies the SQL migrations from the migrations directory.
func RunMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create the postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("an error occurred while syncing the database: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func (s *ServiceImpl) Close() error {
	return s.db.Close()
}
