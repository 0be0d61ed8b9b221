package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/logbook/internal/datastore"
)

// memMarker is an in-memory MarkerStore.
type memMarker struct {
	mu     sync.Mutex
	date   string
	setErr error
}

func (m *memMarker) LastAutomaticBackup() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.date, nil
}

func (m *memMarker) SetLastAutomaticBackup(date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.date = date
	return nil
}

func (m *memMarker) get() string {
	d, _ := m.LastAutomaticBackup()
	return d
}

// recordingSnapshotter counts CreateSnapshot calls and can fail on demand.
type recordingSnapshotter struct {
	mu    sync.Mutex
	kinds []Kind
	err   error
	done  chan struct{}
}

func (r *recordingSnapshotter) CreateSnapshot(_ context.Context, payload datastore.Collections, kind Kind) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		defer func() { r.done <- struct{}{} }()
	}
	r.kinds = append(r.kinds, kind)
	if r.err != nil {
		return nil, r.err
	}
	return &Snapshot{ID: fmt.Sprintf("auto-%d", len(r.kinds)), Kind: kind, Payload: payload}, nil
}

func (r *recordingSnapshotter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kinds)
}

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 15, hour, minute, 20, 0, saoPaulo)
}

func newTestScheduler(t *testing.T, entities datastore.EntityStore, snaps Snapshotter, marker MarkerStore) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{Hour: 17, Minute: 45, Location: saoPaulo},
		testclock.NewClock(at(9, 0)), entities, snaps, marker)
	require.NoError(t, err)
	return s
}

func populated() *memEntities {
	entities := newMemEntities()
	entities.put(datastore.Invoice{Date: "2026-06-10", Status: datastore.InvoicePending})
	return entities
}

func TestTickFiresOnceAtTargetMinute(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	snaps := &recordingSnapshotter{}
	s := newTestScheduler(t, populated(), snaps, marker)
	ctx := context.Background()

	assert.False(t, s.Tick(ctx, at(17, 44)))
	assert.False(t, s.Tick(ctx, at(18, 45)))

	require.True(t, s.Tick(ctx, at(17, 45)))
	s.Wait()
	assert.Equal(t, []Kind{KindAutomatic}, snaps.kinds)
	assert.Equal(t, "2026-06-15", marker.get())

	assert.False(t, s.Tick(ctx, at(17, 45)), "marker already set for today")
	assert.Equal(t, 1, snaps.calls())

	status := s.Status()
	assert.Equal(t, "17:45", status.Target)
	assert.Equal(t, "auto-1", status.LastSnapshotID)
	assert.Empty(t, status.LastError)
}

func TestTickUsesConfiguredLocation(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, populated(), &recordingSnapshotter{}, &memMarker{})

	// 20:45 UTC is 17:45 in BRT
	utc := time.Date(2026, 6, 15, 20, 45, 0, 0, time.UTC)
	require.True(t, s.Tick(context.Background(), utc))
	s.Wait()
}

func TestTickSkipsWhenMarkerIsToday(t *testing.T) {
	t.Parallel()

	snaps := &recordingSnapshotter{}
	s := newTestScheduler(t, populated(), snaps, &memMarker{date: "2026-06-15"})

	assert.False(t, s.Tick(context.Background(), at(17, 45)))
	s.Wait()
	assert.Zero(t, snaps.calls())
}

func TestTickFiresWhenMarkerIsYesterday(t *testing.T) {
	t.Parallel()

	marker := &memMarker{date: "2026-06-14"}
	s := newTestScheduler(t, populated(), &recordingSnapshotter{}, marker)

	require.True(t, s.Tick(context.Background(), at(17, 45)))
	s.Wait()
	assert.Equal(t, "2026-06-15", marker.get())
}

func TestTickEmptyCollectionsTakesNothing(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	snaps := &recordingSnapshotter{}
	s := newTestScheduler(t, newMemEntities(), snaps, marker)

	s.Tick(context.Background(), at(17, 45))
	s.Wait()
	assert.Zero(t, snaps.calls())
	assert.Empty(t, marker.get())
}

func TestTickFailureLeavesMarkerUnset(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	snaps := &recordingSnapshotter{err: newError(ErrStoreUnavailable, "create", "snapshot storage is not provisioned", nil)}
	s := newTestScheduler(t, populated(), snaps, marker)

	require.True(t, s.Tick(context.Background(), at(17, 45)))
	s.Wait()
	assert.Empty(t, marker.get())
	assert.NotEmpty(t, s.Status().LastError)

	// a later tick in the same minute may retry
	snaps.mu.Lock()
	snaps.err = nil
	snaps.mu.Unlock()
	require.True(t, s.Tick(context.Background(), at(17, 45).Add(30*time.Second)))
	s.Wait()
	assert.Equal(t, "2026-06-15", marker.get())
}

func TestSchedulerLoopWithClock(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	snaps := &recordingSnapshotter{done: make(chan struct{}, 1)}
	clk := testclock.NewClock(at(17, 44))

	s, err := NewScheduler(SchedulerConfig{Hour: 17, Minute: 45, Location: saoPaulo}, clk, populated(), snaps, marker)
	require.NoError(t, err)

	s.Start(context.Background())
	assert.True(t, s.IsRunning())

	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	select {
	case <-snaps.done:
	case <-time.After(5 * time.Second):
		t.Fatal("automatic snapshot was not taken")
	}

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, "2026-06-15", marker.get())
}

func TestSchedulerLoopAlignsToMinuteBoundary(t *testing.T) {
	t.Parallel()

	marker := &memMarker{}
	snaps := &recordingSnapshotter{done: make(chan struct{}, 1)}
	clk := testclock.NewClock(time.Date(2026, 6, 15, 17, 44, 50, 0, saoPaulo))

	s, err := NewScheduler(SchedulerConfig{Hour: 17, Minute: 45, Location: saoPaulo}, clk, populated(), snaps, marker)
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	// ten seconds reach 17:45:00; a full-interval wait would land at 17:45:50
	require.NoError(t, clk.WaitAdvance(10*time.Second, time.Second, 1))
	select {
	case <-snaps.done:
	case <-time.After(5 * time.Second):
		t.Fatal("check did not run at the minute boundary")
	}
}

func TestUntilNextCheck(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, populated(), &recordingSnapshotter{}, &memMarker{})
	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"mid minute", time.Date(2026, 6, 15, 17, 44, 20, 0, saoPaulo), 40 * time.Second},
		{"just after boundary", time.Date(2026, 6, 15, 17, 44, 0, int(time.Millisecond), saoPaulo), time.Minute - time.Millisecond},
		{"on boundary", time.Date(2026, 6, 15, 17, 44, 0, 0, saoPaulo), time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.untilNextCheck(tt.now))
		})
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	t.Parallel()

	entities, snaps, marker := newMemEntities(), &recordingSnapshotter{}, &memMarker{}
	tests := []struct {
		name string
		cfg  SchedulerConfig
	}{
		{"hour too large", SchedulerConfig{Hour: 24}},
		{"negative minute", SchedulerConfig{Hour: 17, Minute: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewScheduler(tt.cfg, nil, entities, snaps, marker)
			assert.True(t, IsValidation(err))
		})
	}

	_, err := NewScheduler(SchedulerConfig{Hour: 17, Minute: 45}, nil, entities, nil, marker)
	require.Error(t, err)
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, populated(), &recordingSnapshotter{}, &memMarker{})

	assert.Equal(t, time.Date(2026, 6, 15, 17, 45, 0, 0, saoPaulo), s.nextRun(at(9, 0), ""))
	assert.Equal(t, time.Date(2026, 6, 15, 17, 45, 0, 0, saoPaulo), s.nextRun(at(17, 45), ""))
	assert.Equal(t, time.Date(2026, 6, 16, 17, 45, 0, 0, saoPaulo), s.nextRun(at(17, 45), "2026-06-15"))
	assert.Equal(t, time.Date(2026, 6, 16, 17, 45, 0, 0, saoPaulo), s.nextRun(at(18, 0), ""))
}

func TestFileMarkerStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "backup-state.json")
	m := NewFileMarkerStore(path)

	got, err := m.LastAutomaticBackup()
	require.NoError(t, err)
	assert.Empty(t, got, "missing file means no marker")

	require.NoError(t, m.SetLastAutomaticBackup("2026-06-15"))

	reloaded := NewFileMarkerStore(path)
	got, err = reloaded.LastAutomaticBackup()
	require.NoError(t, err)
	assert.Equal(t, "2026-06-15", got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file renamed away")
}

func TestFileMarkerStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "backup-state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	m := NewFileMarkerStore(path)
	_, err := m.LastAutomaticBackup()
	require.Error(t, err)

	require.NoError(t, m.SetLastAutomaticBackup("2026-06-16"), "unreadable state is replaced")
	got, err := NewFileMarkerStore(path).LastAutomaticBackup()
	require.NoError(t, err)
	assert.Equal(t, "2026-06-16", got)
}
