package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Header carrying the caller's WebSocket connection id so its own broadcasts
// can be suppressed.
const connectionHeader = "X-Connection-ID"

const idempotencyHeader = "Idempotency-Key"

// boardWriteAttempts bounds the read-reapply loop on ETag conflicts before the
// caller is told it lost the race.
const boardWriteAttempts = 3

// Deps carries everything the handlers need.
type Deps struct {
	Store     Storage
	Auth      Authenticator
	Deduper   Deduper
	Effects   *Recorder
	Broadcast Broadcaster
	Logger    *log.Logger
}

type handlers struct {
	Deps
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	h := &handlers{d}

	e.GET("/healthz", h.healthz)

	e.GET("/api/me", h.getMe)
	e.PUT("/api/me", h.putMe)

	e.POST("/api/projects", h.createProject)
	e.GET("/api/projects", h.listProjects)
	e.GET("/api/projects/:id", h.getProject)
	e.DELETE("/api/projects/:id", h.deleteProject)
	e.GET("/api/projects/:id/activity", h.listActivity)
	e.POST("/api/projects/:id/members", h.addMember)
	e.PUT("/api/projects/:id/members/:userId", h.changeMemberRole)
	e.DELETE("/api/projects/:id/members/:userId", h.removeMember)

	e.POST("/api/boards", h.createBoard)
	e.GET("/api/boards/:id", h.getBoard)
	e.DELETE("/api/boards/:id", h.deleteBoard)
	e.POST("/api/boards/:id/columns", h.createColumn)
	e.PUT("/api/boards/:id/columns/reorder", h.reorderColumns)
	e.DELETE("/api/boards/:id/columns/:columnId", h.deleteColumn)

	e.POST("/api/tasks", h.createTask)
	e.GET("/api/tasks/:id", h.getTask)
	e.PUT("/api/tasks/:id", h.updateTask)
	e.PUT("/api/tasks/:id/move", h.moveTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.GET("/api/tasks/:id/comments", h.listComments)

	e.POST("/api/comments", h.createComment)
	e.PUT("/api/comments/:id", h.updateComment)
	e.DELETE("/api/comments/:id", h.deleteComment)

	e.GET("/api/notifications", h.listNotifications)
	e.PUT("/api/notifications/:id/read", h.readNotification)
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// requireUser authenticates the request. A nil error from the returned helper
// means the response has not been written yet.
func (h *handlers) requireUser(c echo.Context) (string, error) {
	userID, err := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", c.String(http.StatusUnauthorized, err.Error())
	}
	return userID, nil
}

// decodeBody parses a JSON request body into v, bounded and strict about
// unknown fields.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, postBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid body: %v", domain.ErrValidation, err)
	}
	return nil
}

// respondErr maps the domain error taxonomy onto HTTP statuses.
func (h *handlers) respondErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.Logger.Errorf("request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

var errDuplicateRequest = errors.New("duplicate request")

// claimIdempotency records the request's Idempotency-Key header, when present,
// so retries of an already-processed mutation are rejected. The returned
// release func rolls the claim back when the handler fails, letting the client
// retry with the same key.
func (h *handlers) claimIdempotency(c echo.Context, userID string) (func(), error) {
	noop := func() {}
	if h.Deduper == nil {
		return noop, nil
	}
	key := c.Request().Header.Get(idempotencyHeader)
	if key == "" {
		return noop, nil
	}
	ctx := c.Request().Context()
	added, err := h.Deduper.Add(ctx, userID, key)
	if err != nil {
		// Dedup is best effort, availability wins over exactly-once.
		h.Logger.Warnf("idempotency add failed: %v", err)
		return noop, nil
	}
	if !added {
		return noop, errDuplicateRequest
	}
	return func() {
		if rerr := h.Deduper.Remove(c.Request().Context(), userID, key); rerr != nil {
			h.Logger.Errorf("idempotency rollback failed, key: %s, user: %s, err: %v", key, userID, rerr)
		}
	}, nil
}

// origin returns the caller's WebSocket connection id, empty when the caller
// has no live connection.
func origin(c echo.Context) string {
	return c.Request().Header.Get(connectionHeader)
}

func (h *handlers) broadcast(origin string, m domain.Mutation) {
	if h.Broadcast == nil {
		return
	}
	h.Broadcast.Broadcast(m.Room(), origin, m)
}
