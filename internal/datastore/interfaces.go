// interfaces.go: store contracts consumed by the backup, critical and api packages
package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/logbook/internal/conf"
)

// EntityStore holds the three tracked collections.
type EntityStore interface {
	// FetchAll returns every record of a collection in id order.
	FetchAll(ctx context.Context, c Collection) ([]Record, error)
	// BulkDeleteAll removes every record of a collection.
	BulkDeleteAll(ctx context.Context, c Collection) error
	// BulkInsert inserts records into a collection. An empty slice is a no-op.
	BulkInsert(ctx context.Context, c Collection, records []Record) error
	// Upsert inserts a record without an id or replaces the record with its id.
	Upsert(ctx context.Context, c Collection, r Record) (Record, error)
	// DeleteByID removes one record. A missing id is not an error.
	DeleteByID(ctx context.Context, c Collection, id uint) error
}

// Transactional is implemented by stores that can run several EntityStore
// calls atomically.
type Transactional interface {
	WithinTransaction(ctx context.Context, fn func(tx EntityStore) error) error
}

// SnapshotRow is the persisted form of a snapshot. Payload holds the raw
// JSON document so a corrupt payload can be detected per row.
type SnapshotRow struct {
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID        string    `gorm:"column:id;size:36;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
	Kind      string    `gorm:"column:tipo;size:20"`
	Payload   []byte    `gorm:"column:data_snapshot;type:longtext"`
}

// SnapshotTable is the table holding snapshots.
const SnapshotTable = "backups"

// TableName pins the snapshot table name.
func (SnapshotRow) TableName() string { return SnapshotTable }

// SnapshotRepository persists snapshot rows.
type SnapshotRepository interface {
	// InsertSnapshot stores row, filling in ID and CreatedAt when empty.
	InsertSnapshot(ctx context.Context, row *SnapshotRow) error
	// ListSnapshots returns all rows newest-first. Rows with equal
	// created_at are ordered by insertion, latest first.
	ListSnapshots(ctx context.Context) ([]SnapshotRow, error)
	// DeleteSnapshot removes a row by id. A missing id is not an error.
	DeleteSnapshot(ctx context.Context, id string) error
}

// Interface is a complete backend: entity store, snapshot repository and
// connection lifecycle.
type Interface interface {
	EntityStore
	SnapshotRepository
	Open() error
	Close() error
}

// New creates the backend selected by settings.Datastore.Type. Call Open
// before use. The REST backend lives in the rest subpackage and is
// constructed by the caller to avoid an import cycle.
func New(settings *conf.Settings) (Interface, error) {
	switch strings.ToLower(settings.Datastore.Type) {
	case conf.DatastoreSQLite:
		return &SQLiteStore{Settings: settings}, nil
	case conf.DatastoreMySQL:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, validationError(fmt.Sprintf("unsupported datastore type %q", settings.Datastore.Type), "datastore.type", settings.Datastore.Type)
	}
}
