package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (h *handlers) listNotifications(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	notifications, err := h.Store.ListNotificationsFor(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, notifications)
}

// readNotification marks one of the caller's notifications as read. The
// recipient scoping means nobody can touch another user's notifications.
func (h *handlers) readNotification(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	if err := h.Store.MarkNotificationRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
