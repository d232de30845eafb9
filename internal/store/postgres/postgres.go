// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each invocation is short-lived and sequential; a small pool is enough.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetBySource(ctx context.Context, sourceID int64) (*model.Mapping, error) {
	return queryGetBySource(ctx, s.db, sourceID)
}

func (s *PostgresStore) GetByTarget(ctx context.Context, targetID int64) (*model.Mapping, error) {
	return queryGetByTarget(ctx, s.db, targetID)
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, m *model.Mapping) (bool, error) {
	return queryInsertIfAbsent(ctx, s.db, m)
}

func (s *PostgresStore) UpdateState(ctx context.Context, sourceID int64, sourceState, targetState string) error {
	return queryUpdateState(ctx, s.db, sourceID, sourceState, targetState)
}

func (s *PostgresStore) ListMappings(ctx context.Context) ([]*model.Mapping, error) {
	return queryListMappings(ctx, s.db)
}

func (s *PostgresStore) DeleteMapping(ctx context.Context, sourceID int64) error {
	return queryDeleteMapping(ctx, s.db, sourceID)
}

func (s *PostgresStore) UpsertRoutingRule(ctx context.Context, rule *model.RoutingRule) error {
	return queryUpsertRoutingRule(ctx, s.db, rule)
}

func (s *PostgresStore) GetRoutingRule(ctx context.Context, categoryID int64) (*model.RoutingRule, error) {
	return queryGetRoutingRule(ctx, s.db, categoryID)
}

func (s *PostgresStore) ListRoutingRules(ctx context.Context) ([]*model.RoutingRule, error) {
	return queryListRoutingRules(ctx, s.db)
}

func (s *PostgresStore) DeleteRoutingRule(ctx context.Context, categoryID int64) error {
	return queryDeleteRoutingRule(ctx, s.db, categoryID)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.SyncEvent) error {
	return queryAppendEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]*model.SyncEvent, error) {
	return queryListEvents(ctx, s.db, limit)
}
