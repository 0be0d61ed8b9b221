package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/critical"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/logger"
)

// CriticalResponse is returned by GET /critical.
type CriticalResponse struct {
	Items   []critical.Item  `json:"items"`
	Summary critical.Summary `json:"summary"`
}

func (c *Controller) initCriticalRoutes() {
	c.Group.GET("/critical", c.GetCriticalItems)
	c.Group.GET("/critical/summary", c.GetCriticalSummary)
	c.Group.GET("/calendar", c.GetCalendar)
}

func (c *Controller) thresholdDays() int {
	if d := c.Settings.Critical.ThresholdDays; d > 0 {
		return d
	}
	return critical.DefaultThresholdDays
}

// deriveCritical loads the live collections and derives the critical items
// in source order. The summary is recorded in metrics.
func (c *Controller) deriveCritical(ctx echo.Context) (datastore.Collections, []critical.Item, error) {
	live, err := backup.LoadCollections(ctx.Request().Context(), c.Entities)
	if err != nil {
		return live, nil, err
	}
	items := critical.DeriveThreshold(live.Invoices, live.Orders, c.today(), c.thresholdDays())
	if c.metrics != nil {
		s := critical.Summarize(items)
		c.metrics.Critical.Observe(s.PerKind(), s.OldestAgeDays)
	}
	return live, items, nil
}

// GetCriticalItems handles GET /api/v1/critical?limit=N&sort=urgency.
// Without sort the items keep source order. limit defaults to the
// configured display limit; limit=0 returns every item.
func (c *Controller) GetCriticalItems(ctx echo.Context) error {
	limit := c.Settings.Critical.DisplayLimit
	if limit <= 0 {
		limit = critical.DefaultDisplayLimit
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.HandleError(ctx, err, "limit must be a non-negative integer", http.StatusBadRequest)
		}
		limit = n
	}

	sortBy := ctx.QueryParam("sort")
	if sortBy != "" && sortBy != "source" && sortBy != "urgency" {
		return c.HandleError(ctx, nil, "sort must be 'source' or 'urgency'", http.StatusBadRequest)
	}

	_, items, err := c.deriveCritical(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "failed to derive critical items", statusFor(err))
	}

	resp := CriticalResponse{Summary: critical.Summarize(items)}
	if sortBy == "urgency" {
		items = critical.SortByUrgency(items)
	}
	if limit > 0 {
		items = critical.Prefix(items, limit)
	}
	if items == nil {
		items = []critical.Item{}
	}
	resp.Items = items
	return ctx.JSON(http.StatusOK, resp)
}

// GetCriticalSummary handles GET /api/v1/critical/summary
func (c *Controller) GetCriticalSummary(ctx echo.Context) error {
	_, items, err := c.deriveCritical(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "failed to derive critical items", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, critical.Summarize(items))
}

// GetCalendar handles GET /api/v1/calendar?month=YYYY-MM. The current month
// is used when month is omitted.
func (c *Controller) GetCalendar(ctx echo.Context) error {
	today := c.today()
	month := today
	if raw := ctx.QueryParam("month"); raw != "" {
		m, err := time.ParseInLocation("2006-01", raw, today.Location())
		if err != nil {
			return c.HandleError(ctx, err, "month must be formatted as YYYY-MM", http.StatusBadRequest)
		}
		month = m
	}

	live, err := backup.LoadCollections(ctx.Request().Context(), c.Entities)
	if err != nil {
		return c.HandleError(ctx, err, "failed to load collections", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"month": month.Format("2006-01"),
		"days":  critical.CalendarMonthThreshold(live, month, today, c.thresholdDays()),
	})
}

// publishCritical recomputes the critical summary after a change to the
// live collections and hands it to the observer. Failures are logged only.
func (c *Controller) publishCritical(ctx echo.Context) {
	if c.onCritical == nil && c.metrics == nil {
		return
	}
	_, items, err := c.deriveCritical(ctx)
	if err != nil {
		GetLogger().Warn("failed to refresh critical summary", logger.Error(err))
		return
	}
	if c.onCritical != nil {
		c.onCritical(critical.Summarize(items))
	}
}
