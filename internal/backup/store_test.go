package backup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/observability/metrics"
)

var testStart = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func TestRetentionKeepsSevenNewest(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	var events []Event
	store := NewStore(repo, WithNow(steppingClock(testStart)), WithEventHandler(func(e Event) { events = append(events, e) }))
	ctx := context.Background()

	var created []string
	for range 10 {
		snap, err := store.CreateSnapshot(ctx, samplePayload(), KindManual)
		require.NoError(t, err)
		created = append(created, snap.ID)
	}

	list, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, DefaultMaxSnapshots)
	for i, snap := range list {
		assert.Equal(t, created[len(created)-1-i], snap.ID, "position %d", i)
	}

	require.Len(t, events, 10)
	assert.Zero(t, events[6].Evicted)
	assert.Equal(t, 1, events[7].Evicted)
}

func TestRetentionTieBreakKeepsLatestInsert(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	fixed := func() time.Time { return testStart }
	store := NewStore(repo, WithNow(fixed), WithMaxSnapshots(2))
	ctx := context.Background()

	for range 3 {
		_, err := store.CreateSnapshot(ctx, samplePayload(), KindManual)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"snap-03", "snap-02"}, repo.ids())
}

func TestCreateSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	store := NewStore(&memSnapshots{})
	payload := samplePayload()

	snap, err := store.CreateSnapshot(context.Background(), payload, KindAutomatic)
	require.NoError(t, err)

	payload.Invoices[0].Status = datastore.InvoiceClassified
	payload.Notes[0].Text = "changed"

	assert.Equal(t, datastore.InvoicePending, snap.Payload.Invoices[0].Status)
	assert.Equal(t, "caldeira revisada", snap.Payload.Notes[0].Text)
	assert.Equal(t, KindAutomatic, snap.Kind)
	assert.Equal(t, 2, snap.Counts()[datastore.CollectionInvoices])
}

func TestCreateSnapshotErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"table missing", fmt.Errorf("%w: no such table: backups", datastore.ErrTableMissing), ErrStoreUnavailable},
		{"other failure", fmt.Errorf("disk I/O error"), ErrWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := metrics.NewTestRecorder()
			store := NewStore(&memSnapshots{insertErr: tt.err}, WithMetrics(rec))

			_, err := store.CreateSnapshot(context.Background(), samplePayload(), KindManual)
			require.Error(t, err)
			assert.True(t, IsErrorCode(err, tt.wantCode), "got %v", err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, rec.GetOperationCount(opCreate, "error"))
			assert.Equal(t, 1, rec.GetErrorCount(opCreate, tt.wantCode.String()))
		})
	}
}

func TestCreateSnapshotRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	rec := metrics.NewTestRecorder()
	_, err := NewStore(repo, WithMetrics(rec)).CreateSnapshot(context.Background(), samplePayload(), Kind("weekly"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Empty(t, repo.ids())
	assert.Equal(t, 1, rec.GetOperationCount(opCreate, "error"))
	assert.Equal(t, 1, rec.GetErrorCount(opCreate, ErrValidation.String()))
}

func TestTrimFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	store := NewStore(repo, WithMaxSnapshots(1), WithNow(steppingClock(testStart)))
	ctx := context.Background()

	_, err := store.CreateSnapshot(ctx, samplePayload(), KindManual)
	require.NoError(t, err)

	repo.deleteErr = fmt.Errorf("permission denied")
	snap, err := store.CreateSnapshot(ctx, samplePayload(), KindManual)
	require.NoError(t, err, "eviction is best-effort")
	assert.Contains(t, repo.ids(), snap.ID)
	assert.Len(t, repo.ids(), 2, "over the cap until the next successful trim")
}

func TestListSnapshotsIsolatesMalformedPayload(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	ctx := context.Background()
	good, err := NewStore(repo, WithNow(steppingClock(testStart))).CreateSnapshot(ctx, samplePayload(), KindManual)
	require.NoError(t, err)

	require.NoError(t, repo.InsertSnapshot(ctx, &datastore.SnapshotRow{
		ID: "broken", CreatedAt: testStart.Add(time.Hour), Kind: "manual", Payload: []byte(`{"notas": "oops"`),
	}))

	list, err := NewStore(repo).ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "broken", list[0].ID)
	assert.True(t, list[0].Malformed)
	assert.True(t, list[0].Payload.IsEmpty())
	assert.NotNil(t, list[0].Payload.Invoices, "normalized to empty arrays")

	assert.Equal(t, good.ID, list[1].ID)
	assert.False(t, list[1].Malformed)
	assert.Len(t, list[1].Payload.Invoices, 2)
}

func TestListSnapshotsErrors(t *testing.T) {
	t.Parallel()

	store := NewStore(&memSnapshots{listErr: datastore.ErrTableMissing})
	_, err := store.ListSnapshots(context.Background())
	assert.True(t, IsStoreUnavailable(err))

	store = NewStore(&memSnapshots{listErr: fmt.Errorf("timeout")})
	_, err = store.ListSnapshots(context.Background())
	assert.True(t, IsErrorCode(err, ErrRead))
}

func TestGetAndDeleteSnapshot(t *testing.T) {
	t.Parallel()

	repo := &memSnapshots{}
	store := NewStore(repo)
	ctx := context.Background()

	snap, err := store.CreateSnapshot(ctx, samplePayload(), KindManual)
	require.NoError(t, err)

	got, err := store.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)

	require.NoError(t, store.DeleteSnapshot(ctx, snap.ID))
	require.NoError(t, store.DeleteSnapshot(ctx, snap.ID), "missing id is not an error")

	_, err = store.GetSnapshot(ctx, snap.ID)
	assert.True(t, IsNotFound(err))

	assert.True(t, IsValidation(store.DeleteSnapshot(ctx, "")))

	repo.deleteErr = fmt.Errorf("locked")
	assert.True(t, IsErrorCode(store.DeleteSnapshot(ctx, "x"), ErrWrite))
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"manual", KindManual, false},
		{"automatico", KindAutomatic, false},
		{"Automatic", KindAutomatic, false},
		{"daily", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
