package backup

import "time"

// EventType identifies a snapshot lifecycle event.
type EventType string

const (
	EventSnapshotCreated  EventType = "snapshot_created"
	EventSnapshotDeleted  EventType = "snapshot_deleted"
	EventSnapshotRestored EventType = "snapshot_restored"
	EventRestoreFailed    EventType = "restore_failed"
	EventCollectionsReset EventType = "collections_reset"
)

// Event describes a completed snapshot operation.
type Event struct {
	Type       EventType `json:"type"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Kind       Kind      `json:"kind,omitempty"`
	Evicted    int       `json:"evicted,omitempty"`
	Partial    bool      `json:"partial,omitempty"`
	Time       time.Time `json:"time"`
}

// EventHandler receives events synchronously; it must not block.
type EventHandler func(Event)
