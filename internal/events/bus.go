// Package events provides an asynchronous event bus that decouples snapshot
// and critical-item producers from slow consumers such as MQTT.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/logger"
)

// Event is one item on the bus. Payload is the producer's value, for
// example a backup.Event or a critical.Summary.
type Event struct {
	Kind    string
	Payload any
	Time    time.Time
}

// Consumer processes events delivered by the bus.
type Consumer interface {
	// Name identifies the consumer in logs and must be unique per bus.
	Name() string

	// ProcessEvent handles a single event. ctx ends when the bus shuts down.
	ProcessEvent(ctx context.Context, ev Event) error
}

// Stats are runtime counters of a bus.
type Stats struct {
	Received       uint64 `json:"received"`
	Processed      uint64 `json:"processed"`
	Dropped        uint64 `json:"dropped"`
	ConsumerErrors uint64 `json:"consumer_errors"`
}

// Config sizes the bus. A single worker keeps delivery in publish order.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 64, Workers: 1}
}

// Bus delivers events to every registered consumer on worker goroutines.
// Publishing never blocks: when the buffer is full the event is dropped.
type Bus struct {
	events  chan Event
	workers int

	mu        sync.Mutex
	consumers []Consumer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	received       atomic.Uint64
	processed      atomic.Uint64
	dropped        atomic.Uint64
	consumerErrors atomic.Uint64
}

// New creates a stopped bus. Zero fields in cfg take their defaults.
func New(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Bus{
		events:  make(chan Event, cfg.BufferSize),
		workers: cfg.Workers,
		cancel:  func() {},
	}
}

// Register adds a consumer. Names must be unique.
func (b *Bus) Register(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return errors.Newf("consumer %s already registered", c.Name()).
				Component("events").
				Category(errors.CategoryState).
				Build()
		}
	}
	b.consumers = append(b.consumers, c)
	GetLogger().Debug("registered event consumer", logger.String("consumer", c.Name()))
	return nil
}

// Start launches the workers. Calling Start on a running bus is a no-op.
func (b *Bus) Start(ctx context.Context) {
	if b.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	for range b.workers {
		b.wg.Go(func() { b.worker(ctx) })
	}
	GetLogger().Debug("event bus started", logger.Int("workers", b.workers))
}

// TryPublish queues ev and reports whether it was accepted. Events published
// while the bus is stopped or has no consumers are discarded.
func (b *Bus) TryPublish(ev Event) bool {
	if !b.running.Load() {
		return false
	}
	b.mu.Lock()
	hasConsumers := len(b.consumers) > 0
	b.mu.Unlock()
	if !hasConsumers {
		return false
	}

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case b.events <- ev:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		GetLogger().Warn("event buffer full, dropping event", logger.String("kind", ev.Kind))
		return false
	}
}

func (b *Bus) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.mu.Lock()
	consumers := append([]Consumer(nil), b.consumers...)
	b.mu.Unlock()

	for _, c := range consumers {
		if err := b.deliver(ctx, c, ev); err != nil {
			b.consumerErrors.Add(1)
			GetLogger().Warn("event consumer failed",
				logger.String("consumer", c.Name()),
				logger.String("kind", ev.Kind),
				logger.Error(err))
			continue
		}
		b.processed.Add(1)
	}
}

// deliver runs one consumer, turning a panic into an error.
func (b *Bus) deliver(ctx context.Context, c Consumer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panicked: %v", r)
		}
	}()
	return c.ProcessEvent(ctx, ev)
}

// Shutdown stops the workers and waits up to timeout for them to return.
// Events still buffered are discarded.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if !b.running.Swap(false) {
		return nil
	}
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		stats := b.Stats()
		GetLogger().Debug("event bus stopped",
			logger.Int64("processed", int64(stats.Processed)),
			logger.Int64("dropped", int64(stats.Dropped)))
		return nil
	case <-timer.C:
		return errors.Newf("event bus shutdown exceeded %s", timeout).
			Component("events").
			Category(errors.CategoryState).
			Build()
	}
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Received:       b.received.Load(),
		Processed:      b.processed.Load(),
		Dropped:        b.dropped.Load(),
		ConsumerErrors: b.consumerErrors.Load(),
	}
}
