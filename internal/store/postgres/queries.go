package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

// mappingColumns is the column list used for SELECT statements on the mappings table.
const mappingColumns = `source_id, source_number, target_id, container_id,
	last_source_state, last_target_state, last_synced_at, created_at`

const ruleColumns = `category_id, category_name, container_id, container_name`

const eventColumns = `id, direction, kind, detail, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetBySource(ctx context.Context, db executor, sourceID int64) (*model.Mapping, error) {
	row := db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE source_id = $1`, sourceID)
	return notFound(scanMapping(row))
}

func queryGetByTarget(ctx context.Context, db executor, targetID int64) (*model.Mapping, error) {
	row := db.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE target_id = $1`, targetID)
	return notFound(scanMapping(row))
}

// queryInsertIfAbsent writes m unless a mapping already exists for either
// its source or its target id. Zero timestamps are filled with the current time.
func queryInsertIfAbsent(ctx context.Context, db executor, m *model.Mapping) (bool, error) {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastSyncedAt.IsZero() {
		m.LastSyncedAt = now
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO mappings (
			source_id, source_number, target_id, container_id,
			last_source_state, last_target_state, last_synced_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`,
		m.SourceID,
		m.SourceNumber,
		m.TargetID,
		m.ContainerID,
		m.LastSourceState,
		m.LastTargetState,
		m.LastSyncedAt,
		m.CreatedAt,
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

func queryUpdateState(ctx context.Context, db executor, sourceID int64, sourceState, targetState string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE mappings
		SET last_source_state = $2, last_target_state = $3, last_synced_at = NOW()
		WHERE source_id = $1`,
		sourceID, sourceState, targetState,
	)
	if err != nil {
		return fmt.Errorf("update mapping state: %w", err)
	}
	return requireRow(res)
}

func queryListMappings(ctx context.Context, db executor) ([]*model.Mapping, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+mappingColumns+` FROM mappings ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()
	return scanMappings(rows)
}

func queryDeleteMapping(ctx context.Context, db executor, sourceID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM mappings WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return requireRow(res)
}

func queryUpsertRoutingRule(ctx context.Context, db executor, r *model.RoutingRule) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO routing_rules (category_id, category_name, container_id, container_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category_id) DO UPDATE
		SET category_name = $2, container_id = $3, container_name = $4`,
		r.CategoryID, r.CategoryName, r.ContainerID, r.ContainerName,
	)
	if err != nil {
		return fmt.Errorf("upsert routing rule: %w", err)
	}
	return nil
}

func queryGetRoutingRule(ctx context.Context, db executor, categoryID int64) (*model.RoutingRule, error) {
	row := db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE category_id = $1`, categoryID)
	r, err := scanRoutingRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func queryListRoutingRules(ctx context.Context, db executor) ([]*model.RoutingRule, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules ORDER BY category_name, category_id`)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()
	return scanRoutingRules(rows)
}

func queryDeleteRoutingRule(ctx context.Context, db executor, categoryID int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM routing_rules WHERE category_id = $1`, categoryID)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	return requireRow(res)
}

// queryAppendEvent inserts e and fills in its generated id and timestamp.
func queryAppendEvent(ctx context.Context, db executor, e *model.SyncEvent) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO sync_events (direction, kind, detail)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		string(e.Direction), e.Kind, e.Detail,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func queryListEvents(ctx context.Context, db executor, limit int) ([]*model.SyncEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT `+eventColumns+` FROM sync_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// notFound maps sql.ErrNoRows from a single-row mapping scan to store.ErrNotFound.
func notFound(m *model.Mapping, err error) (*model.Mapping, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// requireRow returns store.ErrNotFound when an UPDATE or DELETE touched nothing.
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
