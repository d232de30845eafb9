// Package server exposes the bridge over HTTP (Kanboard webhook, health)
// and gRPC (health service).
package server

import (
	"context"
	"log/slog"

	"github.com/MMOzz/OSTKanBridge/internal/bridge"
)

// Bridge is the part of *bridge.Bridge the webhook needs.
type Bridge interface {
	HandleColumnChange(ctx context.Context, ch bridge.ColumnChange) (bridge.InboundResult, error)
	ResolveTaskColumn(ctx context.Context, taskID, containerID int64) (bridge.ColumnChange, error)
	RecordWebhook(ctx context.Context, kind, detail string)
}

// Pinger reports whether the mapping store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ Bridge = (*bridge.Bridge)(nil)

// Server holds the HTTP and gRPC front ends.
type Server struct {
	bridge Bridge
	store  Pinger
	secret string
	log    *slog.Logger
}

// New returns a Server. secret is the webhook token; an empty secret rejects
// every delivery.
func New(b Bridge, p Pinger, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{bridge: b, store: p, secret: secret, log: logger}
}
