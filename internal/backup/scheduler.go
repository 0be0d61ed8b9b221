package backup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/tphakala/logbook/internal/datastore"
)

// Snapshotter creates snapshots. *Store implements it.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, payload datastore.Collections, kind Kind) (*Snapshot, error)
}

// SchedulerConfig sets when the daily automatic snapshot fires.
type SchedulerConfig struct {
	Hour     int            // local hour (0-23)
	Minute   int            // local minute (0-59)
	Interval time.Duration  // how often the clock is checked, default one minute
	Location *time.Location // zone the target time is interpreted in, default time.Local
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running             bool      `json:"running"`
	Target              string    `json:"target"`
	NextRun             time.Time `json:"next_run"`
	LastAutomaticBackup string    `json:"last_automatic_backup,omitempty"`
	LastAttempt         time.Time `json:"last_attempt,omitzero"`
	LastSnapshotID      string    `json:"last_snapshot_id,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// Scheduler triggers one automatic snapshot per calendar day when the local
// time reaches the target minute. Days on which the process is not running
// at that minute are skipped; there is no catch-up.
type Scheduler struct {
	cfg       SchedulerConfig
	clock     clock.Clock
	entities  datastore.EntityStore
	snapshots Snapshotter
	marker    MarkerStore

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	inflight sync.WaitGroup
	busy     atomic.Bool

	statusMu       sync.RWMutex
	lastAttempt    time.Time
	lastSnapshotID string
	lastError      string
}

// NewScheduler validates cfg and returns a stopped scheduler. A nil clk uses
// the wall clock.
func NewScheduler(cfg SchedulerConfig, clk clock.Clock, entities datastore.EntityStore, snapshots Snapshotter, marker MarkerStore) (*Scheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		return nil, newError(ErrValidation, "scheduler", fmt.Sprintf("invalid hour: %d", cfg.Hour), nil)
	}
	if cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, newError(ErrValidation, "scheduler", fmt.Sprintf("invalid minute: %d", cfg.Minute), nil)
	}
	if entities == nil || snapshots == nil || marker == nil {
		return nil, newError(ErrValidation, "scheduler", "entity store, snapshot store and marker store are required", nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if clk == nil {
		clk = clock.WallClock
	}

	return &Scheduler{
		cfg:       cfg,
		clock:     clk,
		entities:  entities,
		snapshots: snapshots,
		marker:    marker,
	}, nil
}

// Start begins checking the clock. Snapshot work is bound to ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, s.done)
	GetLogger().Info("backup scheduler started",
		logString("target", s.target()),
		logString("timezone", s.cfg.Location.String()),
		logDuration("interval", s.cfg.Interval))
}

// Stop stops the loop and waits for an in-flight snapshot to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.inflight.Wait()
	GetLogger().Info("backup scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.untilNextCheck(s.clock.Now())):
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// untilNextCheck returns the wait until the next Interval boundary, so
// checks stay aligned to wall-clock minutes instead of drifting.
func (s *Scheduler) untilNextCheck(now time.Time) time.Duration {
	next := now.Truncate(s.cfg.Interval).Add(s.cfg.Interval)
	if d := next.Sub(now); d > 0 {
		return d
	}
	return s.cfg.Interval
}

// Tick evaluates one clock reading and reports whether an automatic
// snapshot was started. The snapshot itself runs in the background; use
// Wait to block until it completes.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	local := now.In(s.cfg.Location)
	if local.Hour() != s.cfg.Hour || local.Minute() != s.cfg.Minute {
		return false
	}

	log := GetLogger()
	today := local.Format(datastore.DateLayout)

	last, err := s.marker.LastAutomaticBackup()
	if err != nil {
		log.Warn("could not read last automatic backup date", logError(err))
	}
	if last == today {
		log.Debug("automatic backup already taken today", logString("date", today))
		return false
	}

	if !s.busy.CompareAndSwap(false, true) {
		return false
	}
	s.inflight.Go(func() {
		defer s.busy.Store(false)
		s.runAutomatic(ctx, today, now)
	})
	return true
}

// Wait blocks until a started automatic snapshot has finished.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) runAutomatic(ctx context.Context, today string, now time.Time) {
	log := GetLogger().With(logString("date", today))

	snapID, err := s.createAutomatic(ctx, today)
	s.statusMu.Lock()
	s.lastAttempt = now
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
		if snapID != "" {
			s.lastSnapshotID = snapID
		}
	}
	s.statusMu.Unlock()

	if err != nil {
		// automatic failures are never surfaced to users; the marker stays
		// unset so a later tick in the same minute may retry
		log.Error("automatic backup failed", logError(err))
	}
}

// createAutomatic returns the new snapshot id, or "" when the live
// collections were empty and nothing was taken.
func (s *Scheduler) createAutomatic(ctx context.Context, today string) (string, error) {
	payload, err := LoadCollections(ctx, s.entities)
	if err != nil {
		return "", err
	}
	if payload.IsEmpty() {
		GetLogger().Info("automatic backup skipped, no records", logString("date", today))
		return "", nil
	}

	snap, err := s.snapshots.CreateSnapshot(ctx, payload, KindAutomatic)
	if err != nil {
		return "", err
	}

	if err := s.marker.SetLastAutomaticBackup(today); err != nil {
		GetLogger().Warn("automatic backup taken but marker not saved",
			logString("snapshot_id", snap.ID),
			logError(err))
	}
	GetLogger().Info("automatic backup completed",
		logString("snapshot_id", snap.ID),
		logString("date", today))
	return snap.ID, nil
}

// Status reports the scheduler state and the next time it will fire.
func (s *Scheduler) Status() SchedulerStatus {
	last, err := s.marker.LastAutomaticBackup()
	if err != nil {
		last = ""
	}

	s.statusMu.RLock()
	status := SchedulerStatus{
		Running:             s.IsRunning(),
		Target:              s.target(),
		LastAutomaticBackup: last,
		LastAttempt:         s.lastAttempt,
		LastSnapshotID:      s.lastSnapshotID,
		LastError:           s.lastError,
	}
	s.statusMu.RUnlock()

	status.NextRun = s.nextRun(s.clock.Now(), last)
	return status
}

// nextRun returns the next target minute that has not been served yet.
func (s *Scheduler) nextRun(now time.Time, last string) time.Time {
	local := now.In(s.cfg.Location)
	target := time.Date(local.Year(), local.Month(), local.Day(), s.cfg.Hour, s.cfg.Minute, 0, 0, s.cfg.Location)
	if last == local.Format(datastore.DateLayout) || local.After(target.Add(time.Minute-time.Nanosecond)) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

func (s *Scheduler) target() string {
	return fmt.Sprintf("%02d:%02d", s.cfg.Hour, s.cfg.Minute)
}
