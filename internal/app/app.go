// Package app wires configuration, storage, the backup engine and the
// HTTP API into a runnable service.
package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/labstack/echo/v4"

	apiv1 "github.com/tphakala/logbook/internal/api/v1"
	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/critical"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/datastore/rest"
	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/events"
	"github.com/tphakala/logbook/internal/logger"
	"github.com/tphakala/logbook/internal/mqtt"
	"github.com/tphakala/logbook/internal/notification"
	"github.com/tphakala/logbook/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// App holds every long-lived component.
type App struct {
	Settings      *conf.Settings
	DS            datastore.Interface
	Metrics       *observability.Metrics
	Snapshots     *backup.Store
	Restorer      *backup.Restorer
	Scheduler     *backup.Scheduler
	Notifications *notification.Service
	Events        *events.Bus
	Publisher     *mqtt.Publisher
	Echo          *echo.Echo

	clock     clock.Clock
	closeOnce sync.Once
}

// Option customizes App construction.
type Option func(*App)

// WithClock sets the clock driving the scheduler.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMQTTClient replaces the paho client, mainly for tests.
func WithMQTTClient(c mqtt.Client) Option {
	return func(a *App) {
		a.Publisher = mqtt.NewPublisher(c, a.Settings.MQTT.Topic)
	}
}

// SetupLogging installs the global logger described by settings.
func SetupLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(cl)
	return cl, nil
}

// SetupTelemetry enables Sentry reporting for high-priority errors.
func SetupTelemetry(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	return errors.InitSentry(settings.Sentry.DSN, settings.Version, settings.Sentry.Environment)
}

// OpenDatastore creates and opens the backend selected by settings.
func OpenDatastore(settings *conf.Settings) (datastore.Interface, error) {
	var ds datastore.Interface
	if settings.Datastore.Type == conf.DatastoreREST {
		ds = rest.New(settings)
	} else {
		var err error
		if ds, err = datastore.New(settings); err != nil {
			return nil, err
		}
	}
	if err := ds.Open(); err != nil {
		return nil, err
	}
	return ds, nil
}

// New builds the application on an opened datastore.
func New(settings *conf.Settings, ds datastore.Interface, opts ...Option) (*App, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings: settings,
		DS:       ds,
		Metrics:  m,
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Publisher == nil && settings.MQTT.Enabled {
		cfg := mqtt.DefaultConfig()
		cfg.Broker = settings.MQTT.Broker
		cfg.Topic = settings.MQTT.Topic
		cfg.ClientID = settings.MQTT.ClientID
		cfg.Username = settings.MQTT.Username
		cfg.Password = settings.MQTT.Password
		cfg.Retain = settings.MQTT.Retain
		client, err := mqtt.NewClient(cfg, m.MQTT)
		if err != nil {
			return nil, err
		}
		a.Publisher = mqtt.NewPublisher(client, cfg.Topic)
	}

	a.Events = events.New(events.DefaultConfig())
	if a.Publisher != nil {
		if err := a.Events.Register(a.Publisher); err != nil {
			return nil, err
		}
	}

	providers, err := pushProviders(settings)
	if err != nil {
		return nil, err
	}
	a.Notifications = notification.NewService(notification.ServiceConfig{
		Expiry:      settings.Notification.Expiry,
		PushTimeout: settings.Notification.Push.Timeout,
		Providers:   providers,
		Metrics:     m.Notification,
	})

	a.Snapshots = backup.NewStore(ds,
		backup.WithMaxSnapshots(settings.Backup.Retention.MaxSnapshots),
		backup.WithMetrics(m.Backup),
		backup.WithEventHandler(a.handleEvent))
	a.Restorer = backup.NewRestorer(ds,
		backup.WithMetrics(m.Backup),
		backup.WithEventHandler(a.handleEvent))

	if settings.Backup.Enabled && settings.Backup.Schedule.Enabled {
		a.Scheduler, err = backup.NewScheduler(backup.SchedulerConfig{
			Hour:     settings.Backup.Schedule.Hour,
			Minute:   settings.Backup.Schedule.Minute,
			Interval: settings.Backup.Schedule.Interval,
			Location: settings.Location(),
		}, a.clock, ds, a.Snapshots, backup.NewFileMarkerStore(conf.ResolvePath(settings.Backup.StateFile)))
		if err != nil {
			return nil, err
		}
	}

	if settings.WebServer.Enabled {
		a.Echo = echo.New()
		a.Echo.HideBanner = true
		a.Echo.HidePort = true
		opts := []apiv1.Option{
			apiv1.WithNotifications(a.Notifications),
			apiv1.WithMetrics(m),
		}
		if a.Scheduler != nil {
			opts = append(opts, apiv1.WithScheduler(a.Scheduler))
		}
		if a.Publisher != nil {
			opts = append(opts, apiv1.WithCriticalObserver(a.publishCritical))
		}
		apiv1.New(a.Echo, settings, ds, a.Snapshots, a.Restorer, opts...)
	}
	return a, nil
}

func pushProviders(settings *conf.Settings) ([]notification.Provider, error) {
	push := settings.Notification.Push
	if !push.Enabled || len(push.URLs) == 0 {
		return nil, nil
	}
	p, err := notification.NewShoutrrrProvider("push", push.URLs, nil, push.Timeout)
	if err != nil {
		return nil, err
	}
	return []notification.Provider{p}, nil
}

// handleEvent logs snapshot events and puts them on the event bus.
func (a *App) handleEvent(ev backup.Event) {
	GetLogger().Debug("snapshot event",
		logger.String("type", string(ev.Type)),
		logger.String("snapshot_id", ev.SnapshotID),
		logger.Int("evicted", ev.Evicted))
	a.Events.TryPublish(events.Event{Kind: string(ev.Type), Payload: ev, Time: ev.Time})
}

func (a *App) publishCritical(s critical.Summary) {
	a.Events.TryPublish(events.Event{Kind: mqtt.KindCritical, Payload: s})
}

// Run starts the background components and the HTTP server, then blocks
// until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.Publisher != nil {
		a.Publisher.Start(ctx)
	}
	a.Events.Start(ctx)
	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
		status := a.Scheduler.Status()
		GetLogger().Info("automatic backup scheduled",
			logger.String("target", status.Target),
			logger.Time("next_run", status.NextRun))
	}

	if a.Echo == nil {
		<-ctx.Done()
		return nil
	}

	addr := net.JoinHostPort("", a.Settings.WebServer.Port)
	serveErr := make(chan error, 1)
	go func() {
		GetLogger().Info("HTTP server listening", logger.String("addr", addr))
		serveErr <- a.Echo.Start(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).
				Component("app").
				Category(errors.CategoryNetwork).
				Context("addr", addr).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		GetLogger().Warn("HTTP server shutdown failed", logger.Error(err))
	}
	<-serveErr
	return nil
}

// Close stops background work and releases the datastore.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.Scheduler != nil {
			a.Scheduler.Stop()
		}
		if err := a.Events.Shutdown(shutdownTimeout); err != nil {
			GetLogger().Warn("event bus shutdown incomplete", logger.Error(err))
		}
		if a.Publisher != nil {
			a.Publisher.Stop()
		}
		a.Notifications.Close()
		err = a.DS.Close()
	})
	return err
}
