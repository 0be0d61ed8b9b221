package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/datastore"
)

func newSQLiteStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Datastore.Type = conf.DatastoreSQLite
	settings.Datastore.AutoMigrate = true
	settings.Datastore.SQLite.Path = filepath.Join(t.TempDir(), "logbook.db")
	settings.Backup.Enabled = true

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRestoreRoundTripSQLite(t *testing.T) {
	t.Parallel()
	db := newSQLiteStore(t)
	ctx := context.Background()

	original := samplePayload()
	for _, c := range datastore.AllCollections {
		stripped := make([]datastore.Record, 0)
		for _, r := range original.Records(c) {
			stripped = append(stripped, r.WithoutID())
		}
		require.NoError(t, db.BulkInsert(ctx, c, stripped))
	}

	before, err := LoadCollections(ctx, db)
	require.NoError(t, err)

	snapshots := NewStore(db)
	snap, err := snapshots.CreateSnapshot(ctx, before, KindManual)
	require.NoError(t, err)

	// diverge from the snapshot
	_, err = db.Upsert(ctx, datastore.CollectionNotes, datastore.Note{Date: "2026-05-09", Text: "added later"})
	require.NoError(t, err)
	require.NoError(t, db.BulkDeleteAll(ctx, datastore.CollectionOrders))

	result, err := NewRestorer(db).Restore(ctx, snap)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.True(t, result.Transactional)
	assert.False(t, result.PartiallyApplied)
	assert.Equal(t, 2, result.Inserted[datastore.CollectionInvoices])

	after, err := LoadCollections(ctx, db)
	require.NoError(t, err)
	assertSameContent(t, before, after)
}

func assertSameContent(t *testing.T, want, got datastore.Collections) {
	t.Helper()
	for _, c := range datastore.AllCollections {
		wantRecs, gotRecs := want.Records(c), got.Records(c)
		require.Len(t, gotRecs, len(wantRecs), "collection %s", c)
		for i := range wantRecs {
			assert.Equal(t, clearMeta(wantRecs[i]), clearMeta(gotRecs[i]), "collection %s index %d", c, i)
		}
	}
}

// clearMeta removes the fields a store regenerates on insert.
func clearMeta(r datastore.Record) datastore.Record {
	switch v := r.WithoutID().(type) {
	case datastore.Invoice:
		v.CreatedAt = time.Time{}
		return v
	case datastore.ProductionOrder:
		v.CreatedAt = time.Time{}
		return v
	case datastore.Note:
		v.CreatedAt = time.Time{}
		return v
	}
	return r
}

func TestRestoreSkipsEmptyCollections(t *testing.T) {
	t.Parallel()

	entities := newMemEntities()
	entities.put(datastore.Note{Date: "2026-01-01", Text: "old"})

	payload := samplePayload()
	payload.Orders = nil
	snap := &Snapshot{ID: "s1", Payload: payload}

	result, err := NewRestorer(entities).Restore(context.Background(), snap)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.False(t, result.Transactional)
	assert.Zero(t, entities.insertCalls[datastore.CollectionOrders], "no insert for an empty collection")
	assert.Equal(t, 1, entities.insertCalls[datastore.CollectionInvoices])
	assert.Equal(t, []datastore.Collection{datastore.CollectionOrders}, result.Skipped)

	notes, err := entities.FetchAll(context.Background(), datastore.CollectionNotes)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "caldeira revisada", notes[0].(datastore.Note).Text)
	assert.NotEqual(t, uint(31), notes[0].RecordID(), "ids are regenerated")
}

func TestRestoreAllEmptyClearsOnly(t *testing.T) {
	t.Parallel()

	entities := newMemEntities()
	entities.put(datastore.Invoice{Date: "2026-01-01", Status: datastore.InvoicePending})

	var empty datastore.Collections
	empty.Normalize()
	result, err := NewRestorer(entities).Restore(context.Background(), &Snapshot{ID: "empty", Payload: empty})
	require.NoError(t, err)
	assert.Len(t, result.Skipped, 3)
	assert.Empty(t, entities.insertCalls)

	got, err := LoadCollections(context.Background(), entities)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestRestoreNonTransactionalFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		setup          func(*memEntities)
		wantStage      Stage
		wantCollection datastore.Collection
		wantPartial    bool
	}{
		{
			name:           "first clear fails before any change",
			setup:          func(m *memEntities) { m.deleteErr[datastore.CollectionInvoices] = fmt.Errorf("timeout") },
			wantStage:      StageClear,
			wantCollection: datastore.CollectionInvoices,
			wantPartial:    false,
		},
		{
			name:           "second clear fails after the first",
			setup:          func(m *memEntities) { m.deleteErr[datastore.CollectionOrders] = fmt.Errorf("timeout") },
			wantStage:      StageClear,
			wantCollection: datastore.CollectionOrders,
			wantPartial:    true,
		},
		{
			name:           "insert fails after clearing",
			setup:          func(m *memEntities) { m.insertErr[datastore.CollectionNotes] = fmt.Errorf("quota exceeded") },
			wantStage:      StageInsert,
			wantCollection: datastore.CollectionNotes,
			wantPartial:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entities := newMemEntities()
			entities.put(datastore.Note{Date: "2026-01-01", Text: "live"})
			tt.setup(entities)

			var events []Event
			r := NewRestorer(entities, WithEventHandler(func(e Event) { events = append(events, e) }))
			result, err := r.Restore(context.Background(), &Snapshot{ID: "s1", Payload: samplePayload()})
			require.Error(t, err)

			assert.False(t, result.Applied)
			assert.Equal(t, tt.wantPartial, result.PartiallyApplied)
			assert.Equal(t, tt.wantStage, result.FailedStage)
			assert.Equal(t, tt.wantCollection, result.FailedCollection)

			var berr *Error
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, ErrWrite, berr.Code)
			assert.Equal(t, tt.wantCollection, berr.Collection)
			assert.Contains(t, err.Error(), string(tt.wantCollection))

			require.Len(t, events, 1)
			assert.Equal(t, EventRestoreFailed, events[0].Type)
			assert.Equal(t, tt.wantPartial, events[0].Partial)
		})
	}
}

func TestRestoreTransactionalRollsBack(t *testing.T) {
	t.Parallel()
	db := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, db.BulkInsert(ctx, datastore.CollectionNotes, []datastore.Record{
		datastore.Note{Date: "2026-04-01", Text: "survives"},
	}))

	// an invalid date fails validation inside the insert stage
	bad := samplePayload()
	bad.Orders[0].Date = "2026-13-01"

	result, err := NewRestorer(db).Restore(ctx, &Snapshot{ID: "bad", Payload: bad})
	require.Error(t, err)
	assert.True(t, result.Transactional)
	assert.False(t, result.PartiallyApplied)
	assert.Equal(t, StageInsert, result.FailedStage)
	assert.Equal(t, datastore.CollectionOrders, result.FailedCollection)

	notes, err := db.FetchAll(ctx, datastore.CollectionNotes)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "survives", notes[0].(datastore.Note).Text)

	invoices, err := db.FetchAll(ctx, datastore.CollectionInvoices)
	require.NoError(t, err)
	assert.Empty(t, invoices, "inserted invoices rolled back")
}

func TestReset(t *testing.T) {
	t.Parallel()

	entities := newMemEntities()
	entities.put(datastore.Note{Date: "2026-01-01", Text: "x"}, datastore.Invoice{Date: "2026-01-01", Status: datastore.InvoicePending})

	var got []EventType
	result, err := NewRestorer(entities, WithEventHandler(func(e Event) { got = append(got, e.Type) })).Reset(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, []EventType{EventCollectionsReset}, got)

	payload, err := LoadCollections(context.Background(), entities)
	require.NoError(t, err)
	assert.True(t, payload.IsEmpty())
}

func TestRestoreNilSnapshot(t *testing.T) {
	t.Parallel()

	_, err := NewRestorer(newMemEntities()).Restore(context.Background(), nil)
	assert.True(t, IsValidation(err))
}

func TestRestoreRefusesMalformedSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := &memSnapshots{}
	require.NoError(t, repo.InsertSnapshot(ctx, &datastore.SnapshotRow{
		ID: "broken", CreatedAt: testStart, Kind: "manual", Payload: []byte(`{not json`),
	}))
	snaps, err := NewStore(repo).ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.True(t, snaps[0].Malformed)

	entities := newMemEntities()
	entities.put(datastore.Invoice{Number: "NF-1", Date: "2026-05-01", Status: datastore.InvoicePending})

	result, err := NewRestorer(entities).Restore(ctx, &snaps[0])
	require.Error(t, err)
	assert.True(t, IsMalformedPayload(err))
	assert.False(t, result.Applied)
	assert.False(t, result.PartiallyApplied)
	assert.Equal(t, "broken", result.SnapshotID)

	live, err := LoadCollections(ctx, entities)
	require.NoError(t, err)
	assert.Len(t, live.Invoices, 1, "live data must survive")
	assert.Zero(t, entities.insertCalls[datastore.CollectionInvoices])
}

func TestLoadCollectionsReadError(t *testing.T) {
	t.Parallel()

	entities := newMemEntities()
	entities.fetchErr[datastore.CollectionOrders] = fmt.Errorf("connection reset")

	_, err := LoadCollections(context.Background(), entities)
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrRead))

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, datastore.CollectionOrders, berr.Collection)
}
