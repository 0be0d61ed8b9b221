package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/logger"
)

// DefaultPushTimeout bounds one push delivery when no timeout is configured.
const DefaultPushTimeout = 10 * time.Second

// DeliveryRecorder receives push delivery outcomes.
type DeliveryRecorder interface {
	RecordNotification(notificationType string)
	RecordDelivery(provider, status string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordNotification(string)                   {}
func (noopRecorder) RecordDelivery(string, string, time.Duration) {}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Expiry      time.Duration
	PushTimeout time.Duration
	Providers   []Provider
	Metrics     DeliveryRecorder
}

// Service stores notifications and fans them out to push providers.
type Service struct {
	store       *Store
	providers   []Provider
	pushTimeout time.Duration
	metrics     DeliveryRecorder

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewService creates a notification service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultPushTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopRecorder{}
	}
	return &Service{
		store:       NewStore(cfg.Expiry),
		providers:   cfg.Providers,
		pushTimeout: cfg.PushTimeout,
		metrics:     cfg.Metrics,
	}
}

// Store exposes the in-app notification store.
func (s *Service) Store() *Store {
	return s.store
}

// Notify stores n and pushes it to every provider that accepts its type.
// Push delivery runs in the background.
func (s *Service) Notify(n *Notification) {
	if n == nil {
		return
	}
	s.store.Save(n)
	s.metrics.RecordNotification(string(n.Type))

	GetLogger().Debug("notification created",
		logger.String("id", n.ID),
		logger.String("type", string(n.Type)),
		logger.String("component", n.Component))

	if s.closed.Load() {
		return
	}
	snapshot := n.Clone()
	for _, p := range s.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		s.wg.Go(func() { s.push(p, snapshot) })
	}
}

func (s *Service) push(p Provider, n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
	defer cancel()

	start := time.Now()
	err := p.Send(ctx, n)
	status := "success"
	if err != nil {
		status = "error"
		GetLogger().Warn("push delivery failed",
			logger.String("provider", p.GetName()),
			logger.String("notification_id", n.ID),
			logger.Error(err))
	}
	s.metrics.RecordDelivery(p.GetName(), status, time.Since(start))
}

// Success records a completed user action.
func (s *Service) Success(component, title, message string) *Notification {
	n := NewNotification(TypeSuccess, PriorityLow, title, message).WithComponent(component)
	s.Notify(n)
	return n
}

// Failure records a failed user action. High-priority errors keep their
// priority on the notification.
func (s *Service) Failure(component, title string, err error) *Notification {
	priority := PriorityMedium
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) && (enhanced.GetPriority() == errors.PriorityHigh || enhanced.GetPriority() == errors.PriorityCritical) {
		priority = PriorityHigh
	}

	message := "unknown error"
	if err != nil {
		message = logger.RedactSensitiveData(err.Error())
	}
	n := NewNotification(TypeError, priority, title, message).WithComponent(component)
	s.Notify(n)
	return n
}

// Close stops new push deliveries and waits for in-flight ones.
func (s *Service) Close() {
	s.closed.Store(true)
	s.wg.Wait()
}
