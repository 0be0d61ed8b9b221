// Package api serves the logbook HTTP API under /api/v1.
package api

import (
	"crypto/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/conf"
	"github.com/tphakala/logbook/internal/critical"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/logger"
	"github.com/tphakala/logbook/internal/notification"
	"github.com/tphakala/logbook/internal/observability"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	Settings  *conf.Settings
	Entities  datastore.EntityStore
	Snapshots *backup.Store
	Restorer  *backup.Restorer

	scheduler     *backup.Scheduler
	notifications *notification.Service
	metrics       *observability.Metrics
	onCritical    func(critical.Summary)
	now           func() time.Time
	startTime     time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithScheduler exposes the automatic backup scheduler status.
func WithScheduler(s *backup.Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithNotifications records user actions as notifications.
func WithNotifications(s *notification.Service) Option {
	return func(c *Controller) { c.notifications = s }
}

// WithMetrics enables request metrics, critical gauges and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithCriticalObserver is called with the critical summary after every
// change to the live collections.
func WithCriticalObserver(fn func(critical.Summary)) Option {
	return func(c *Controller) { c.onCritical = fn }
}

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, settings *conf.Settings, entities datastore.EntityStore,
	snapshots *backup.Store, restorer *backup.Restorer, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Settings:  settings,
		Entities:  entities,
		Snapshots: snapshots,
		Restorer:  restorer,
		now:       time.Now,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifications == nil {
		c.notifications = notification.NewService(notification.ServiceConfig{
			Expiry: settings.Notification.Expiry,
		})
	}

	c.Group = e.Group("/api/v1")
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.BodyLimit("1M"))
	c.Group.Use(c.LoggingMiddleware())
	if c.metrics != nil {
		c.Group.Use(c.MetricsMiddleware())
		e.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.initSnapshotRoutes()
	c.initRecordRoutes()
	c.initCriticalRoutes()
	c.initNotificationRoutes()
}

// LoggingMiddleware logs every API request.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			req := ctx.Request()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.String("query", req.URL.RawQuery),
				logger.Int("status", ctx.Response().Status),
				logger.String("ip", ctx.RealIP()),
				logger.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				fields = append(fields, logger.Error(err))
			}
			GetLogger().Info("API request", fields...)
			return nil
		}
	}
}

// MetricsMiddleware records request counts and latency by route.
func (c *Controller) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			status := ctx.Response().Status
			var httpErr *echo.HTTPError
			if err != nil && errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			c.metrics.HTTP.RecordHTTPRequest(ctx.Request().Method, ctx.Path(), status, time.Since(start).Seconds())
			return err
		}
	}
}

// manualSnapshotLimiter throttles manual snapshot creation per client.
func (c *Controller) manualSnapshotLimiter() echo.MiddlewareFunc {
	rl := c.Settings.WebServer.RateLimit
	if rl.Interval <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := max(rl.Burst, 1)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Every(rl.Interval),
			Burst:     burst,
			ExpiresIn: 3 * rl.Interval,
		}),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, NewErrorResponse(err, "unable to identify client", http.StatusForbidden))
		},
		DenyHandler: func(ctx echo.Context, _ string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, NewErrorResponse(err, "too many snapshot requests, please wait", http.StatusTooManyRequests))
		},
	})
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":         "healthy",
		"timestamp":      c.now().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	}

	if _, err := c.Entities.FetchAll(ctx.Request().Context(), datastore.CollectionNotes); err != nil {
		response["status"] = "degraded"
		response["database_status"] = "disconnected"
		response["database_error"] = err.Error()
	} else {
		response["database_status"] = "connected"
	}
	response["system"] = c.systemStats()
	return ctx.JSON(http.StatusOK, response)
}

// today returns the current time in the configured zone.
func (c *Controller) today() time.Time {
	return c.now().In(c.Settings.Location())
}

// ErrorResponse represents a standard error response for the API
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes a JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	GetLogger().Error("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.Error(err))
	return ctx.JSON(code, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case backup.IsNotFound(err), errors.IsNotFound(err):
		return http.StatusNotFound
	case backup.IsValidation(err), errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case backup.IsMalformedPayload(err):
		return http.StatusUnprocessableEntity
	case backup.IsStoreUnavailable(err), datastore.IsTableMissing(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
