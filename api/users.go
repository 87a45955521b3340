package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

func (h *handlers) getMe(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	u, err := h.Store.GetUser(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// putMe registers or updates the caller's profile. The profile name is what
// @mentions resolve against.
func (h *handlers) putMe(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	if req.Name == "" {
		return h.respondErr(c, fmt.Errorf("%w: name is required", domain.ErrValidation))
	}
	u := &domain.User{ID: userID, Name: req.Name, Email: req.Email}
	if err := h.Store.UpsertUser(c.Request().Context(), u); err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
