// Package sqlite implements the store.Store interface backed by an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	mappingColumns = `source_id, source_number, target_id, container_id,
	last_source_state, last_target_state, last_synced_at, created_at`
	ruleColumns  = `category_id, category_name, container_id, container_name`
	eventColumns = `id, direction, kind, detail, created_at`
)

// SQLiteStore implements store.Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at path and applies pending migrations.
// A path of ":memory:" yields a private in-memory database.
func New(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serialises writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetBySource(ctx context.Context, sourceID int64) (*model.Mapping, error) {
	return s.queryMapping(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE source_id = ?`, sourceID)
}

func (s *SQLiteStore) GetByTarget(ctx context.Context, targetID int64) (*model.Mapping, error) {
	return s.queryMapping(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE target_id = ?`, targetID)
}

func (s *SQLiteStore) queryMapping(ctx context.Context, query string, arg int64) (*model.Mapping, error) {
	var m model.Mapping
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&m.SourceID, &m.SourceNumber, &m.TargetID, &m.ContainerID,
		&m.LastSourceState, &m.LastTargetState, &m.LastSyncedAt, &m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertIfAbsent relies on INSERT OR IGNORE so a conflict on either unique
// key leaves the existing row untouched.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, m *model.Mapping) (bool, error) {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastSyncedAt.IsZero() {
		m.LastSyncedAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO mappings (
			source_id, source_number, target_id, container_id,
			last_source_state, last_target_state, last_synced_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SourceID, m.SourceNumber, m.TargetID, m.ContainerID,
		m.LastSourceState, m.LastTargetState, m.LastSyncedAt, m.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mapping: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) UpdateState(ctx context.Context, sourceID int64, sourceState, targetState string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings
		SET last_source_state = ?, last_target_state = ?, last_synced_at = ?
		WHERE source_id = ?`,
		sourceState, targetState, time.Now().UTC(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("update mapping state: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListMappings(ctx context.Context) ([]*model.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM mappings ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Mapping
	for rows.Next() {
		var m model.Mapping
		if err := rows.Scan(
			&m.SourceID, &m.SourceNumber, &m.TargetID, &m.ContainerID,
			&m.LastSourceState, &m.LastTargetState, &m.LastSyncedAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, sourceID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) UpsertRoutingRule(ctx context.Context, r *model.RoutingRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_rules (category_id, category_name, container_id, container_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (category_id) DO UPDATE
		SET category_name = excluded.category_name,
			container_id = excluded.container_id,
			container_name = excluded.container_name`,
		r.CategoryID, r.CategoryName, r.ContainerID, r.ContainerName,
	)
	if err != nil {
		return fmt.Errorf("upsert routing rule: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRoutingRule(ctx context.Context, categoryID int64) (*model.RoutingRule, error) {
	var r model.RoutingRule
	err := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE category_id = ?`, categoryID).
		Scan(&r.CategoryID, &r.CategoryName, &r.ContainerID, &r.ContainerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) ListRoutingRules(ctx context.Context) ([]*model.RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY category_name, category_id`)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.RoutingRule
	for rows.Next() {
		var r model.RoutingRule
		if err := rows.Scan(&r.CategoryID, &r.CategoryName, &r.ContainerID, &r.ContainerName); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteRoutingRule(ctx context.Context, categoryID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE category_id = ?`, categoryID)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e *model.SyncEvent) error {
	created := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_events (direction, kind, detail, created_at)
		VALUES (?, ?, ?, ?)`,
		string(e.Direction), e.Kind, e.Detail, created,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	e.ID = id
	e.CreatedAt = created
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]*model.SyncEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM sync_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.SyncEvent
	for rows.Next() {
		var e model.SyncEvent
		if err := rows.Scan(&e.ID, &e.Direction, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
