package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/logbook/internal/backup"
	"github.com/tphakala/logbook/internal/datastore"
	"github.com/tphakala/logbook/internal/logger"
	"github.com/tphakala/logbook/internal/notification"
)

const componentBackup = "backup"

// SnapshotSummary is a snapshot without its payload.
type SnapshotSummary struct {
	ID        string                       `json:"id"`
	CreatedAt time.Time                    `json:"created_at"`
	Kind      backup.Kind                  `json:"tipo"`
	Counts    map[datastore.Collection]int `json:"counts"`
	Malformed bool                         `json:"malformed,omitempty"`
}

// SnapshotListResponse is returned by GET /snapshots.
type SnapshotListResponse struct {
	Snapshots    []SnapshotSummary `json:"snapshots"`
	MaxSnapshots int               `json:"max_snapshots"`
}

// RestoreResponse wraps a restore or reset outcome.
type RestoreResponse struct {
	Result  backup.RestoreResult `json:"result"`
	Error   string               `json:"error,omitempty"`
	Warning string               `json:"warning,omitempty"`
}

// partialWarning is shown when a failed restore left the collections modified.
const partialWarning = "live collections were modified before the failure; restore again or re-enter the missing records"

func (c *Controller) initSnapshotRoutes() {
	g := c.Group.Group("/snapshots")
	g.GET("", c.ListSnapshots)
	g.POST("", c.CreateSnapshot, c.manualSnapshotLimiter())
	g.GET("/:id", c.GetSnapshot)
	g.DELETE("/:id", c.DeleteSnapshot)
	g.POST("/:id/restore", c.RestoreSnapshot)

	c.Group.POST("/reset", c.ResetCollections)
	c.Group.GET("/scheduler", c.GetSchedulerStatus)
}

func summarize(s *backup.Snapshot) SnapshotSummary {
	return SnapshotSummary{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Kind:      s.Kind,
		Counts:    s.Counts(),
		Malformed: s.Malformed,
	}
}

// ListSnapshots handles GET /api/v1/snapshots
func (c *Controller) ListSnapshots(ctx echo.Context) error {
	snaps, err := c.Snapshots.ListSnapshots(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "failed to list snapshots", statusFor(err))
	}
	resp := SnapshotListResponse{
		Snapshots:    make([]SnapshotSummary, 0, len(snaps)),
		MaxSnapshots: c.Snapshots.MaxSnapshots(),
	}
	for i := range snaps {
		resp.Snapshots = append(resp.Snapshots, summarize(&snaps[i]))
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetSnapshot handles GET /api/v1/snapshots/:id and returns the full payload.
func (c *Controller) GetSnapshot(ctx echo.Context) error {
	snap, err := c.Snapshots.GetSnapshot(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "failed to load snapshot", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, snap)
}

// CreateSnapshot handles POST /api/v1/snapshots. It captures the current
// live collections as a manual snapshot.
func (c *Controller) CreateSnapshot(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	payload, err := backup.LoadCollections(reqCtx, c.Entities)
	if err != nil {
		c.notifications.Failure(componentBackup, "Backup failed", err)
		return c.HandleError(ctx, err, "failed to read live collections", statusFor(err))
	}
	snap, err := c.Snapshots.CreateSnapshot(reqCtx, payload, backup.KindManual)
	if err != nil {
		c.notifications.Failure(componentBackup, "Backup failed", err)
		return c.HandleError(ctx, err, "failed to create snapshot", statusFor(err))
	}

	c.notifications.Notify(notification.NewNotification(notification.TypeSuccess, notification.PriorityLow,
		"Backup created", "snapshot "+snap.ID+" stored").
		WithComponent(componentBackup).
		WithMetadata("snapshot_id", snap.ID))
	return ctx.JSON(http.StatusCreated, summarize(snap))
}

// DeleteSnapshot handles DELETE /api/v1/snapshots/:id
func (c *Controller) DeleteSnapshot(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := c.Snapshots.DeleteSnapshot(ctx.Request().Context(), id); err != nil {
		c.notifications.Failure(componentBackup, "Delete backup failed", err)
		return c.HandleError(ctx, err, "failed to delete snapshot", statusFor(err))
	}
	c.notifications.Success(componentBackup, "Backup deleted", "snapshot "+id+" deleted")
	return ctx.NoContent(http.StatusNoContent)
}

// requireConfirm rejects destructive calls without ?confirm=true.
func (c *Controller) requireConfirm(ctx echo.Context, action string) error {
	confirmed, _ := strconv.ParseBool(ctx.QueryParam("confirm"))
	if confirmed {
		return nil
	}
	return ctx.JSON(http.StatusPreconditionRequired, NewErrorResponse(nil,
		action+" overwrites the live collections and is not atomic on every backend; repeat with ?confirm=true",
		http.StatusPreconditionRequired))
}

// RestoreSnapshot handles POST /api/v1/snapshots/:id/restore?confirm=true
func (c *Controller) RestoreSnapshot(ctx echo.Context) error {
	if err := c.requireConfirm(ctx, "restore"); err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	snap, err := c.Snapshots.GetSnapshot(reqCtx, ctx.Param("id"))
	if err != nil {
		c.notifications.Failure(componentBackup, "Restore failed", err)
		return c.HandleError(ctx, err, "failed to load snapshot", statusFor(err))
	}

	result, err := c.Restorer.Restore(reqCtx, snap)
	return c.respondRestore(ctx, result, err, "Restore")
}

// ResetCollections handles POST /api/v1/reset?confirm=true
func (c *Controller) ResetCollections(ctx echo.Context) error {
	if err := c.requireConfirm(ctx, "reset"); err != nil {
		return err
	}
	result, err := c.Restorer.Reset(ctx.Request().Context())
	return c.respondRestore(ctx, result, err, "Reset")
}

func (c *Controller) respondRestore(ctx echo.Context, result backup.RestoreResult, err error, action string) error {
	if err != nil {
		n := c.notifications.Failure(componentBackup, action+" failed", err)
		resp := RestoreResponse{Result: result, Error: err.Error()}
		if result.PartiallyApplied {
			resp.Warning = partialWarning
		}
		GetLogger().Error(action+" failed",
			logger.String("snapshot_id", result.SnapshotID),
			logger.String("stage", string(result.FailedStage)),
			logger.String("collection", string(result.FailedCollection)),
			logger.Bool("partially_applied", result.PartiallyApplied),
			logger.String("notification_id", n.ID),
			logger.Error(err))
		c.publishCritical(ctx)
		return ctx.JSON(statusFor(err), resp)
	}

	c.notifications.Success(componentBackup, action+" completed", restoreMessage(result))
	c.publishCritical(ctx)
	return ctx.JSON(http.StatusOK, RestoreResponse{Result: result})
}

func restoreMessage(r backup.RestoreResult) string {
	total := 0
	for _, n := range r.Inserted {
		total += n
	}
	return strconv.Itoa(total) + " records restored"
}

// GetSchedulerStatus handles GET /api/v1/scheduler
func (c *Controller) GetSchedulerStatus(ctx echo.Context) error {
	if c.scheduler == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"enabled": false})
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"enabled": true,
		"status":  c.scheduler.Status(),
	})
}
