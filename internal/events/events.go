package events

import (
	"context"

	"github.com/MMOzz/OSTKanBridge/internal/model"
)

// TopicPrefix is prepended to the audit kind to form the NATS subject of
// every published sync event, e.g. "bridge.sync.status_sync".
const TopicPrefix = "bridge.sync."

// TopicAll matches every sync event subject.
const TopicAll = TopicPrefix + ">"

// Topic returns the subject a SyncEvent of the given kind is published on.
func Topic(kind string) string {
	return TopicPrefix + kind
}

// SyncRecorded is the payload published for each audit entry.
type SyncRecorded struct {
	RunID    string           `json:"run_id,omitempty"`
	SourceID int64            `json:"source_id,omitempty"`
	TargetID int64            `json:"target_id,omitempty"`
	Event    *model.SyncEvent `json:"event"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
