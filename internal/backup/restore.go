package backup

import (
	"context"
	"time"

	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/observability/metrics"
)

// Stage names a step of a restore.
type Stage string

const (
	StageClear  Stage = "clear"
	StageInsert Stage = "insert"
)

// RestoreResult reports how far a restore or reset got.
type RestoreResult struct {
	SnapshotID string `json:"snapshot_id,omitempty"`

	// Applied is true only when every step completed.
	Applied bool `json:"applied"`

	// PartiallyApplied is true when a step failed after the live
	// collections were already modified. It is never set for
	// transactional stores, which roll back instead.
	PartiallyApplied bool `json:"partially_applied"`

	Transactional bool `json:"transactional"`

	// FailedStage and FailedCollection identify the failing step.
	FailedStage      Stage                `json:"failed_stage,omitempty"`
	FailedCollection datastore.Collection `json:"failed_collection,omitempty"`

	Inserted map[datastore.Collection]int `json:"inserted"`
	Skipped  []datastore.Collection       `json:"skipped,omitempty"`
}

// Restorer replaces the live collections with snapshot contents.
type Restorer struct {
	entities datastore.EntityStore
	metrics  metrics.Recorder
	onEvent  EventHandler
	now      func() time.Time
}

// NewRestorer creates a restorer writing to entities. Only WithMetrics,
// WithEventHandler and WithNow apply.
func NewRestorer(entities datastore.EntityStore, opts ...Option) *Restorer {
	o := buildOptions(opts)
	return &Restorer{entities: entities, metrics: o.metrics, onEvent: o.onEvent, now: o.now}
}

// Restore clears all three collections and inserts the snapshot's records
// with their ids removed. Empty collections are not inserted.
//
// When the entity store implements datastore.Transactional everything runs
// in one transaction. Otherwise a failure after the first clear leaves the
// store partially restored, which the result reports; nothing is rolled back
// or retried.
func (r *Restorer) Restore(ctx context.Context, snap *Snapshot) (RestoreResult, error) {
	if snap == nil {
		return RestoreResult{}, newError(ErrValidation, "restore", "snapshot is required", nil)
	}
	if snap.Malformed {
		r.metrics.RecordOperation(opRestore, "error")
		r.metrics.RecordError(opRestore, ErrMalformedPayload.String())
		GetLogger().Warn("refusing to restore unreadable snapshot", logString("snapshot_id", snap.ID))
		return RestoreResult{SnapshotID: snap.ID}, newError(ErrMalformedPayload, "restore",
			"snapshot payload is unreadable, live collections left untouched", nil)
	}

	start := time.Now()
	result, err := r.run(ctx, func(es datastore.EntityStore, res *RestoreResult) error {
		if err := clearAll(ctx, es, res); err != nil {
			return err
		}
		return insertAll(ctx, es, snap.Payload, res)
	})
	result.SnapshotID = snap.ID

	log := GetLogger().With(logString("snapshot_id", snap.ID))
	if err != nil {
		r.metrics.RecordOperation(opRestore, "error")
		r.metrics.RecordError(opRestore, string(result.FailedStage))
		log.Error("restore failed",
			logString("stage", string(result.FailedStage)),
			logString("collection", string(result.FailedCollection)),
			logBool("partially_applied", result.PartiallyApplied),
			logBool("transactional", result.Transactional),
			logError(err))
		r.onEvent(Event{Type: EventRestoreFailed, SnapshotID: snap.ID, Partial: result.PartiallyApplied, Time: r.now().UTC()})
		return result, err
	}

	r.metrics.RecordOperation(opRestore, "success")
	r.metrics.RecordDuration(opRestore, time.Since(start).Seconds())
	log.Info("snapshot restored",
		logInt("invoices", result.Inserted[datastore.CollectionInvoices]),
		logInt("orders", result.Inserted[datastore.CollectionOrders]),
		logInt("notes", result.Inserted[datastore.CollectionNotes]),
		logBool("transactional", result.Transactional),
		logDuration("duration", time.Since(start)))
	r.onEvent(Event{Type: EventSnapshotRestored, SnapshotID: snap.ID, Time: r.now().UTC()})
	return result, nil
}

// Reset clears all three live collections.
func (r *Restorer) Reset(ctx context.Context) (RestoreResult, error) {
	result, err := r.run(ctx, func(es datastore.EntityStore, res *RestoreResult) error {
		return clearAll(ctx, es, res)
	})
	if err != nil {
		r.metrics.RecordOperation(opReset, "error")
		GetLogger().Error("reset failed",
			logString("collection", string(result.FailedCollection)),
			logBool("partially_applied", result.PartiallyApplied),
			logError(err))
		return result, err
	}
	r.metrics.RecordOperation(opReset, "success")
	GetLogger().Info("live collections cleared")
	r.onEvent(Event{Type: EventCollectionsReset, Time: r.now().UTC()})
	return result, nil
}

// run executes steps inside a transaction when the store supports one.
func (r *Restorer) run(ctx context.Context, steps func(datastore.EntityStore, *RestoreResult) error) (RestoreResult, error) {
	result := RestoreResult{Inserted: make(map[datastore.Collection]int, len(datastore.AllCollections))}

	tx, ok := r.entities.(datastore.Transactional)
	if !ok {
		err := steps(r.entities, &result)
		result.Applied = err == nil
		return result, err
	}

	result.Transactional = true
	err := tx.WithinTransaction(ctx, func(es datastore.EntityStore) error {
		return steps(es, &result)
	})
	if err != nil {
		// rolled back: nothing from this attempt is visible
		result.PartiallyApplied = false
		result.Inserted = make(map[datastore.Collection]int)
		result.Skipped = nil
		if result.FailedStage == "" {
			err = newError(ErrWrite, "restore.commit", "restore transaction failed", err)
		}
		return result, err
	}
	result.Applied = true
	return result, nil
}

func clearAll(ctx context.Context, es datastore.EntityStore, res *RestoreResult) error {
	for i, c := range datastore.AllCollections {
		if err := es.BulkDeleteAll(ctx, c); err != nil {
			res.FailedStage = StageClear
			res.FailedCollection = c
			res.PartiallyApplied = i > 0
			berr := newError(ErrWrite, "restore.clear", "failed to clear collection", err)
			berr.Collection = c
			return berr
		}
	}
	return nil
}

func insertAll(ctx context.Context, es datastore.EntityStore, payload datastore.Collections, res *RestoreResult) error {
	for _, c := range datastore.AllCollections {
		records := payload.Records(c)
		if len(records) == 0 {
			res.Skipped = append(res.Skipped, c)
			continue
		}

		stripped := make([]datastore.Record, len(records))
		for i, rec := range records {
			stripped[i] = rec.WithoutID()
		}
		if err := es.BulkInsert(ctx, c, stripped); err != nil {
			res.FailedStage = StageInsert
			res.FailedCollection = c
			res.PartiallyApplied = true
			berr := newError(ErrWrite, "restore.insert", "failed to insert collection", err)
			berr.Collection = c
			return berr
		}
		res.Inserted[c] = len(stripped)
	}
	return nil
}
