package backup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/observability/metrics"
)

// DefaultMaxSnapshots is the retention cap.
const DefaultMaxSnapshots = 7

// Metric operation names reported through metrics.Recorder.
const (
	opCreate  = "snapshot_create"
	opList    = "snapshot_list"
	opDelete  = "snapshot_delete"
	opEvict   = "snapshot_evict"
	opRestore = "snapshot_restore"
	opReset   = "collections_reset"
)

// Store persists snapshots and enforces retention on top of a
// datastore.SnapshotRepository.
type Store struct {
	repo         datastore.SnapshotRepository
	maxSnapshots int
	metrics      metrics.Recorder
	onEvent      EventHandler
	now          func() time.Time
}

// Option configures a Store or Restorer.
type Option func(*options)

type options struct {
	maxSnapshots int
	metrics      metrics.Recorder
	onEvent      EventHandler
	now          func() time.Time
}

// WithMaxSnapshots overrides the retention cap. Values below 1 are ignored.
func WithMaxSnapshots(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSnapshots = n
		}
	}
}

// WithMetrics reports operation outcomes and durations to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) { o.metrics = r }
}

// WithEventHandler registers h for lifecycle events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) { o.onEvent = h }
}

// WithNow sets the time source used for snapshot timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{
		maxSnapshots: DefaultMaxSnapshots,
		metrics:      metrics.NewNoOpRecorder(),
		onEvent:      func(Event) {},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewStore creates a snapshot store backed by repo.
func NewStore(repo datastore.SnapshotRepository, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{
		repo:         repo,
		maxSnapshots: o.maxSnapshots,
		metrics:      o.metrics,
		onEvent:      o.onEvent,
		now:          o.now,
	}
}

// MaxSnapshots returns the retention cap.
func (s *Store) MaxSnapshots() int {
	return s.maxSnapshots
}

// CreateSnapshot stores a deep copy of payload tagged with kind, then evicts
// everything beyond the retention cap. Eviction failures are logged and do
// not affect the result.
func (s *Store) CreateSnapshot(ctx context.Context, payload datastore.Collections, kind Kind) (*Snapshot, error) {
	start := time.Now()
	log := GetLogger()

	if kind != KindManual && kind != KindAutomatic {
		s.recordFailure(opCreate, ErrValidation)
		return nil, newError(ErrValidation, "create", "snapshot kind must be manual or automatico", nil)
	}

	payload.Normalize()
	data, err := json.Marshal(payload)
	if err != nil {
		s.recordFailure(opCreate, ErrValidation)
		return nil, newError(ErrValidation, "create", "snapshot payload cannot be encoded", err)
	}

	// the stored bytes are the copy; decoding them again detaches the
	// returned snapshot from the caller's slices
	var detached datastore.Collections
	if err := json.Unmarshal(data, &detached); err != nil {
		s.recordFailure(opCreate, ErrMalformedPayload)
		return nil, newError(ErrMalformedPayload, "create", "snapshot payload cannot be decoded", err)
	}

	row := &datastore.SnapshotRow{
		CreatedAt: s.now().UTC(),
		Kind:      string(kind),
		Payload:   data,
	}
	if err := s.repo.InsertSnapshot(ctx, row); err != nil {
		berr := storeError("create", ErrWrite, err)
		s.recordFailure(opCreate, berr.Code)
		log.Error("snapshot create failed",
			logString("kind", string(kind)),
			logString("error_code", berr.Code.String()),
			logError(err))
		return nil, berr
	}

	snap := &Snapshot{ID: row.ID, CreatedAt: row.CreatedAt, Kind: kind, Payload: detached}
	s.metrics.RecordOperation(opCreate, "success")
	s.metrics.RecordDuration(opCreate, time.Since(start).Seconds())
	log.Info("snapshot created",
		logString("snapshot_id", snap.ID),
		logString("kind", string(kind)),
		logInt("invoices", len(detached.Invoices)),
		logInt("orders", len(detached.Orders)),
		logInt("notes", len(detached.Notes)),
		logDuration("duration", time.Since(start)))

	evicted := s.trim(ctx)
	s.onEvent(Event{Type: EventSnapshotCreated, SnapshotID: snap.ID, Kind: kind, Evicted: evicted, Time: snap.CreatedAt})
	return snap, nil
}

// trim deletes snapshots beyond the retention cap, oldest first, and returns
// how many were removed.
func (s *Store) trim(ctx context.Context) int {
	log := GetLogger()

	rows, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		s.metrics.RecordError(opEvict, "list")
		log.Warn("retention check skipped", logError(err))
		return 0
	}
	if len(rows) <= s.maxSnapshots {
		return 0
	}

	evicted := 0
	for i := len(rows) - 1; i >= s.maxSnapshots; i-- {
		if err := s.repo.DeleteSnapshot(ctx, rows[i].ID); err != nil {
			s.metrics.RecordError(opEvict, "delete")
			log.Warn("failed to evict snapshot",
				logString("snapshot_id", rows[i].ID),
				logError(err))
			continue
		}
		evicted++
	}
	s.metrics.RecordOperation(opEvict, "success")
	log.Info("retention applied",
		logInt("evicted", evicted),
		logInt("max_snapshots", s.maxSnapshots))
	return evicted
}

// ListSnapshots returns all snapshots newest-first. A snapshot whose payload
// cannot be decoded is returned with empty collections and Malformed set.
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	start := time.Now()

	rows, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		berr := storeError("list", ErrRead, err)
		s.recordFailure(opList, berr.Code)
		return nil, berr
	}

	snapshots := make([]Snapshot, 0, len(rows))
	for i := range rows {
		snapshots = append(snapshots, decodeRow(&rows[i]))
	}
	s.metrics.RecordOperation(opList, "success")
	s.metrics.RecordDuration(opList, time.Since(start).Seconds())
	return snapshots, nil
}

// GetSnapshot returns one snapshot by id.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	snapshots, err := s.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		if snapshots[i].ID == id {
			return &snapshots[i], nil
		}
	}
	return nil, newError(ErrNotFound, "get", "snapshot "+id+" not found", nil)
}

// DeleteSnapshot removes a snapshot. Deleting an unknown id succeeds.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	if id == "" {
		return newError(ErrValidation, "delete", "snapshot id is required", nil)
	}
	if err := s.repo.DeleteSnapshot(ctx, id); err != nil {
		berr := storeError("delete", ErrWrite, err)
		s.recordFailure(opDelete, berr.Code)
		return berr
	}
	s.metrics.RecordOperation(opDelete, "success")
	GetLogger().Info("snapshot deleted", logString("snapshot_id", id))
	s.onEvent(Event{Type: EventSnapshotDeleted, SnapshotID: id, Time: s.now().UTC()})
	return nil
}

func (s *Store) recordFailure(op string, code ErrorCode) {
	s.metrics.RecordOperation(op, "error")
	s.metrics.RecordError(op, code.String())
}

func decodeRow(row *datastore.SnapshotRow) Snapshot {
	snap := Snapshot{ID: row.ID, CreatedAt: row.CreatedAt, Kind: Kind(row.Kind)}
	if err := json.Unmarshal(row.Payload, &snap.Payload); err != nil {
		GetLogger().Warn("snapshot payload is malformed, using empty collections",
			logString("snapshot_id", row.ID),
			logString("error_code", ErrMalformedPayload.String()),
			logError(err))
		snap.Payload = datastore.Collections{}
		snap.Malformed = true
	}
	snap.Payload.Normalize()
	return snap
}
