// store.go: gorm implementation shared by the SQLite and MySQL backends
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tphakala/logbook/internal/logger"
)

// DataStore implements EntityStore, SnapshotRepository and Transactional
// on top of a gorm connection.
type DataStore struct {
	DB      *gorm.DB
	timeout time.Duration // per-operation timeout, 0 disables
}

// insertBatchSize bounds the rows per INSERT statement on bulk inserts.
const insertBatchSize = 200

func (ds *DataStore) db(ctx context.Context) (*gorm.DB, context.CancelFunc, error) {
	if ds == nil || ds.DB == nil {
		return nil, nil, fmt.Errorf("database connection is not initialized")
	}
	cancel := context.CancelFunc(func() {})
	if ds.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, ds.timeout)
	}
	return ds.DB.WithContext(ctx), cancel, nil
}

// FetchAll returns every record of a collection ordered by id.
func (ds *DataStore) FetchAll(ctx context.Context, c Collection) ([]Record, error) {
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var records []Record
	switch c {
	case CollectionInvoices:
		records, err = fetchAll[Invoice](db)
	case CollectionOrders:
		records, err = fetchAll[ProductionOrder](db)
	case CollectionNotes:
		records, err = fetchAll[Note](db)
	default:
		return nil, validationError(fmt.Sprintf("unknown collection %q", c), "collection", c)
	}
	if err != nil {
		return nil, dbError(err, "fetch_all", string(c))
	}
	return records, nil
}

func fetchAll[T Record](db *gorm.DB) ([]Record, error) {
	var rows []T
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRecords(rows), nil
}

// BulkDeleteAll removes every record of a collection.
func (ds *DataStore) BulkDeleteAll(ctx context.Context, c Collection) error {
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	model, err := modelFor(c)
	if err != nil {
		return err
	}

	result := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
	if result.Error != nil {
		return dbError(result.Error, "bulk_delete_all", string(c))
	}
	GetLogger().Debug("collection cleared",
		logger.String("collection", string(c)),
		logger.Int64("rows_deleted", result.RowsAffected))
	return nil
}

// BulkInsert inserts records into a collection. An empty slice is a no-op.
func (ds *DataStore) BulkInsert(ctx context.Context, c Collection, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	var payload Collections
	if err := payload.Set(c, records); err != nil {
		return err
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	db, cancel, err := ds.db(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	switch c {
	case CollectionInvoices:
		err = db.CreateInBatches(payload.Invoices, insertBatchSize).Error
	case CollectionOrders:
		err = db.CreateInBatches(payload.Orders, insertBatchSize).Error
	case CollectionNotes:
		err = db.CreateInBatches(payload.Notes, insertBatchSize).Error
	}
	if err != nil {
		return dbError(err, "bulk_insert", string(c))
	}
	return nil
}

// Upsert inserts r when it has no id and replaces the stored row otherwise.
func (ds *DataStore) Upsert(ctx context.Context, c Collection, r Record) (Record, error) {
	if r == nil {
		return nil, validationError("record is required", "record", nil)
	}
	if r.Collection() != c {
		return nil, validationError(fmt.Sprintf("record of type %T does not belong to %s", r, c), "collection", c)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	db, cancel, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var saved Record
	switch v := r.(type) {
	case Invoice:
		err = db.Save(&v).Error
		saved = v
	case ProductionOrder:
		err = db.Save(&v).Error
		saved = v
	case Note:
		err = db.Save(&v).Error
		saved = v
	}
	if err != nil {
		return nil, dbError(err, "upsert", string(c))
	}
	return saved, nil
}

// DeleteByID removes one record. A missing id is not an error.
func (ds *DataStore) DeleteByID(ctx context.Context, c Collection, id uint) error {
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	model, err := modelFor(c)
	if err != nil {
		return err
	}
	if err := db.Delete(model, id).Error; err != nil {
		return dbError(err, "delete_by_id", string(c))
	}
	return nil
}

// WithinTransaction runs fn against a store bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (ds *DataStore) WithinTransaction(ctx context.Context, fn func(tx EntityStore) error) error {
	if ds == nil || ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DataStore{DB: tx, timeout: ds.timeout})
	})
}

// InsertSnapshot stores a snapshot row, generating its id and timestamp.
func (ds *DataStore) InsertSnapshot(ctx context.Context, row *SnapshotRow) error {
	if row == nil {
		return validationError("snapshot row is required", "snapshot", nil)
	}
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(row).Error; err != nil {
		return dbError(err, "insert_snapshot", SnapshotTable)
	}
	return nil
}

// ListSnapshots returns all snapshot rows newest-first.
func (ds *DataStore) ListSnapshots(ctx context.Context) ([]SnapshotRow, error) {
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var rows []SnapshotRow
	if err := db.Order("created_at DESC").Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list_snapshots", SnapshotTable)
	}
	return rows, nil
}

// DeleteSnapshot removes a snapshot row by id.
func (ds *DataStore) DeleteSnapshot(ctx context.Context, id string) error {
	db, cancel, err := ds.db(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := db.Where("id = ?", id).Delete(&SnapshotRow{}).Error; err != nil {
		return dbError(err, "delete_snapshot", SnapshotTable)
	}
	return nil
}

// Close closes the underlying connection pool.
func (ds *DataStore) Close() error {
	if ds == nil || ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "")
	}
	return nil
}

func modelFor(c Collection) (any, error) {
	switch c {
	case CollectionInvoices:
		return &Invoice{}, nil
	case CollectionOrders:
		return &ProductionOrder{}, nil
	case CollectionNotes:
		return &Note{}, nil
	}
	return nil, validationError(fmt.Sprintf("unknown collection %q", c), "collection", c)
}

// performAutoMigration creates or updates the tracked tables and, when
// withSnapshots is set, the snapshot table.
func performAutoMigration(db *gorm.DB, dbType string, withSnapshots bool) error {
	start := time.Now()
	models := []any{&Invoice{}, &ProductionOrder{}, &Note{}}
	if withSnapshots {
		models = append(models, &SnapshotRow{})
	}

	if err := db.AutoMigrate(models...); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err), "auto_migrate", "")
	}

	GetLogger().Debug("database migration completed",
		logger.String("db_type", dbType),
		logger.Int("tables_migrated", len(models)),
		logger.Duration("total_duration", time.Since(start)))
	return nil
}
