package postgres

import (
	"database/sql"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMapping scans a single row into a model.Mapping.
// The row must contain columns in the order defined by mappingColumns.
func scanMapping(row scannable) (*model.Mapping, error) {
	var m model.Mapping
	var (
		sourceState sql.NullString
		targetState sql.NullString
	)
	err := row.Scan(
		&m.SourceID,
		&m.SourceNumber,
		&m.TargetID,
		&m.ContainerID,
		&sourceState,
		&targetState,
		&m.LastSyncedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.LastSourceState = sourceState.String
	m.LastTargetState = targetState.String
	return &m, nil
}

func scanMappings(rows *sql.Rows) ([]*model.Mapping, error) {
	var out []*model.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRoutingRule(row scannable) (*model.RoutingRule, error) {
	var r model.RoutingRule
	if err := row.Scan(&r.CategoryID, &r.CategoryName, &r.ContainerID, &r.ContainerName); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRoutingRules(rows *sql.Rows) ([]*model.RoutingRule, error) {
	var out []*model.RoutingRule
	for rows.Next() {
		r, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanEvent(row scannable) (*model.SyncEvent, error) {
	var e model.SyncEvent
	var detail sql.NullString
	if err := row.Scan(&e.ID, &e.Direction, &e.Kind, &detail, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Detail = detail.String
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.SyncEvent, error) {
	var out []*model.SyncEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
