package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// ErrNotFound is returned when a lookup matches no row. It wraps
// sql.ErrNoRows so callers may test for either.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }
func (*notFoundError) Unwrap() error { return sql.ErrNoRows }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// Store defines the persistence interface for the bridge.
type Store interface {
	// Mappings
	GetBySource(ctx context.Context, sourceID int64) (*model.Mapping, error)
	GetByTarget(ctx context.Context, targetID int64) (*model.Mapping, error)
	InsertIfAbsent(ctx context.Context, m *model.Mapping) (bool, error) // reports whether a row was written
	UpdateState(ctx context.Context, sourceID int64, sourceState, targetState string) error
	ListMappings(ctx context.Context) ([]*model.Mapping, error)
	DeleteMapping(ctx context.Context, sourceID int64) error

	// Routing rules
	UpsertRoutingRule(ctx context.Context, rule *model.RoutingRule) error
	GetRoutingRule(ctx context.Context, categoryID int64) (*model.RoutingRule, error)
	ListRoutingRules(ctx context.Context) ([]*model.RoutingRule, error)
	DeleteRoutingRule(ctx context.Context, categoryID int64) error

	// Audit log
	AppendEvent(ctx context.Context, event *model.SyncEvent) error
	ListEvents(ctx context.Context, limit int) ([]*model.SyncEvent, error) // newest first

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
