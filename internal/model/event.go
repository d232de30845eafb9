package model

import "time"

// Direction names which way a bridge action flowed.
type Direction string

const (
	// Outbound: osTicket changed, Kanboard written.
	DirectionOutbound Direction = "source_to_target"
	// Inbound: Kanboard changed, osTicket written.
	DirectionInbound Direction = "target_to_source"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether the direction is one of the two known values.
func (d Direction) IsValid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// Audit event kinds.
const (
	EventCreated          = "created"
	EventStatusSync       = "status_sync"
	EventErrorCreate      = "error_create"
	EventErrorStatus      = "error_status"
	EventError            = "error"
	EventWarningComment   = "warning_comment"
	EventWarningNote      = "warning_note"
	EventWarningWriteback = "warning_writeback"
	EventWebhookReceived  = "webhook_received"
	EventWebhookError     = "webhook_error"
)

// SyncEvent is an append-only audit log entry.
type SyncEvent struct {
	ID        int64     `json:"id"`
	Direction Direction `json:"direction"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsFailure reports whether the event records an error or a best-effort warning.
func (e *SyncEvent) IsFailure() bool {
	switch e.Kind {
	case EventErrorCreate, EventErrorStatus, EventError, EventWebhookError,
		EventWarningComment, EventWarningNote, EventWarningWriteback:
		return true
	}
	return false
}
