package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/logbook/internal/notification"
)

func (c *Controller) initNotificationRoutes() {
	c.Group.GET("/notifications", c.GetNotifications)
	c.Group.GET("/notifications/unread/count", c.GetUnreadCount)
	c.Group.PUT("/notifications/:id/read", c.MarkNotificationRead)
	c.Group.DELETE("/notifications/:id", c.DeleteNotification)
}

// GetNotifications handles GET /api/v1/notifications?type=&unread=&component=&limit=
func (c *Controller) GetNotifications(ctx echo.Context) error {
	filter := &notification.FilterOptions{
		Component: ctx.QueryParam("component"),
	}
	if t := ctx.QueryParam("type"); t != "" {
		filter.Types = []notification.Type{notification.Type(t)}
	}
	if raw := ctx.QueryParam("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			return c.HandleError(ctx, err, "unread must be a boolean", http.StatusBadRequest)
		}
		filter.UnreadOnly = unread
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.HandleError(ctx, err, "limit must be a non-negative integer", http.StatusBadRequest)
		}
		filter.Limit = n
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": c.notifications.Store().List(filter),
	})
}

// GetUnreadCount handles GET /api/v1/notifications/unread/count
func (c *Controller) GetUnreadCount(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]int{"unread": c.notifications.Store().UnreadCount()})
}

// MarkNotificationRead handles PUT /api/v1/notifications/:id/read
func (c *Controller) MarkNotificationRead(ctx echo.Context) error {
	if err := c.notifications.Store().MarkAsRead(ctx.Param("id")); err != nil {
		return c.HandleError(ctx, err, "notification not found", http.StatusNotFound)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// DeleteNotification handles DELETE /api/v1/notifications/:id
func (c *Controller) DeleteNotification(ctx echo.Context) error {
	c.notifications.Store().Delete(ctx.Param("id"))
	return ctx.NoContent(http.StatusNoContent)
}
