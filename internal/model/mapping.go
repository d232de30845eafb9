package model

import "time"

// Mapping correlates one osTicket task with the Kanboard task the bridge
// created for it. SourceID and TargetID are each unique across all mappings.
type Mapping struct {
	SourceID        int64     `json:"source_id"`
	SourceNumber    string    `json:"source_number"`
	TargetID        int64     `json:"target_id"`
	ContainerID     int64     `json:"container_id"`
	LastSourceState string    `json:"last_source_state"`
	LastTargetState string    `json:"last_target_state"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// RoutingRule selects the Kanboard project for tasks created from a given
// help topic. Names are cached for display only.
type RoutingRule struct {
	CategoryID    int64  `json:"category_id"`
	CategoryName  string `json:"category_name"`
	ContainerID   int64  `json:"container_id"`
	ContainerName string `json:"container_name"`
}
