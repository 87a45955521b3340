package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

type createTaskRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	BoardID     string         `json:"boardId"`
	ColumnID    string         `json:"columnId"`
	AssignedTo  []string       `json:"assignedTo"`
	DueDate     *time.Time     `json:"dueDate"`
	Labels      []domain.Label `json:"labels"`
}

type updateTaskRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	AssignedTo  *[]string       `json:"assignedTo"`
	DueDate     *time.Time      `json:"dueDate"`
	Labels      *[]domain.Label `json:"labels"`
}

type moveTaskRequest struct {
	ColumnID       string `json:"columnId"`
	Order          int    `json:"order"`
	SourceColumnID string `json:"sourceColumnId"`
	SourceIndex    int    `json:"sourceIndex"`
}

type moveTaskResponse struct {
	Task  *domain.Task  `json:"task"`
	Board *domain.Board `json:"board"`
}

func assignmentNotifications(t *domain.Task, actor string, assignees []string) []domain.Notification {
	var out []domain.Notification
	for _, assignee := range assignees {
		if assignee == actor {
			continue
		}
		out = append(out, domain.Notification{
			ID:         uuid.NewString(),
			Recipient:  assignee,
			Sender:     actor,
			Type:       domain.NotifyAssigned,
			Message:    fmt.Sprintf("you were assigned to task %q", t.Title),
			EntityType: "task",
			EntityID:   t.ID,
			CreatedAt:  nextEventTime(),
		})
	}
	return out
}

func (h *handlers) createTask(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req createTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	if req.Title == "" {
		return h.respondErr(c, fmt.Errorf("%w: task title is required", domain.ErrValidation))
	}
	ctx := c.Request().Context()
	b, _, p, err := h.boardScope(ctx, req.BoardID, userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	release, err := h.claimIdempotency(c, userID)
	if err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}

	now := time.Now().UTC()
	t := &domain.Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		BoardID:     b.ID,
		ColumnID:    req.ColumnID,
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		Labels:      req.Labels,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, _, err = h.mutateBoard(ctx, b.ID, func(board *domain.Board) error {
		order, perr := board.PlaceTask(req.ColumnID, t.ID)
		if perr != nil {
			return perr
		}
		t.Order = order
		return nil
	})
	if err != nil {
		release()
		return h.respondErr(c, err)
	}
	if err := h.Store.InsertTask(ctx, t); err != nil {
		// Roll the placement back so the board holds no dangling id.
		if _, _, rerr := h.mutateBoard(ctx, b.ID, func(board *domain.Board) error {
			return board.RemoveTask(t.ID)
		}); rerr != nil {
			h.Logger.Errorf("placement rollback failed for task %s: %v", t.ID, rerr)
		}
		release()
		return h.respondErr(c, err)
	}

	notes := assignmentNotifications(t, userID, t.AssignedTo)
	for i := range notes {
		notes[i].ProjectID = p.ID
	}
	h.Effects.Record(newActivity(userID, domain.ActionTaskCreated, "task", t.ID, p.ID, b.ID), notes...)

	data, _ := sonic.Marshal(t)
	h.broadcast(origin(c), domain.Mutation{
		Action:       domain.MutTaskCreated,
		EntityType:   "task",
		EntityID:     t.ID,
		BoardID:      b.ID,
		Actor:        userID,
		DestColumnID: t.ColumnID,
		DestIndex:    t.Order,
		Data:         data,
	})
	return c.JSON(http.StatusCreated, t)
}

func (h *handlers) getTask(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	t, b, _, err := h.taskScope(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	if col, idx, ok := b.Locate(t.ID); ok {
		t.ColumnID = col
		t.Order = idx
	}
	return c.JSON(http.StatusOK, t)
}

// updateTask edits task fields. Column membership never changes here, that is
// what the move endpoint is for.
func (h *handlers) updateTask(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req updateTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	t, b, p, err := h.taskScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	var newlyAssigned []string
	if req.Title != nil {
		if *req.Title == "" {
			return h.respondErr(c, fmt.Errorf("%w: task title is required", domain.ErrValidation))
		}
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.AssignedTo != nil {
		known := make(map[string]struct{}, len(t.AssignedTo))
		for _, id := range t.AssignedTo {
			known[id] = struct{}{}
		}
		for _, id := range *req.AssignedTo {
			if _, ok := known[id]; !ok {
				newlyAssigned = append(newlyAssigned, id)
			}
		}
		t.AssignedTo = *req.AssignedTo
	}
	if req.DueDate != nil {
		t.DueDate = req.DueDate
	}
	if req.Labels != nil {
		t.Labels = *req.Labels
	}
	t.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateTask(ctx, t); err != nil {
		return h.respondErr(c, err)
	}

	notes := assignmentNotifications(t, userID, newlyAssigned)
	for i := range notes {
		notes[i].ProjectID = p.ID
	}
	h.Effects.Record(newActivity(userID, domain.ActionTaskUpdated, "task", t.ID, p.ID, b.ID), notes...)

	data, _ := sonic.Marshal(t)
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutTaskUpdated,
		EntityType: "task",
		EntityID:   t.ID,
		BoardID:    b.ID,
		Actor:      userID,
		Data:       data,
	})
	return c.JSON(http.StatusOK, t)
}

// moveTask relocates a task between (or within) columns. The board write is
// the linearization point; losing the optimistic retry race surfaces as 409.
func (h *handlers) moveTask(c echo.Context) (err error) {
	ctx := c.Request().Context()
	metrics, spanCtx := newMoveRequestMetrics(ctx, h.Logger)
	if spanCtx != nil {
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
	}
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	userID, authErr := h.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		err = c.String(http.StatusUnauthorized, authErr.Error())
		return err
	}

	var req moveTaskRequest
	if derr := decodeBody(c, &req); derr != nil {
		metrics.SetErrorStage("decode")
		err = h.respondErr(c, derr)
		return err
	}

	loadStart := time.Now()
	t, _, p, scopeErr := h.taskScope(ctx, c.Param("id"), userID)
	metrics.ObserveLoad(time.Since(loadStart))
	if scopeErr != nil {
		metrics.SetErrorStage("scope")
		err = h.respondErr(c, scopeErr)
		return err
	}

	release, dupErr := h.claimIdempotency(c, userID)
	if dupErr != nil {
		metrics.SetErrorStage("duplicate")
		err = c.JSON(http.StatusConflict, errorResponse{Error: dupErr.Error()})
		return err
	}

	var (
		insertedAt int
		drifted    bool
		sourceCol  string
	)
	commitStart := time.Now()
	board, retries, moveErr := h.mutateBoard(ctx, t.BoardID, func(b *domain.Board) error {
		col, idx, ok := b.Locate(t.ID)
		if !ok {
			return fmt.Errorf("%w: task %s is not on board %s", domain.ErrNotFound, t.ID, b.ID)
		}
		if req.SourceColumnID != "" && req.SourceColumnID != col {
			// The task left the claimed column while this request was in
			// flight. The caller lost the race.
			return fmt.Errorf("%w: task %s is no longer in column %s", domain.ErrConflict, t.ID, req.SourceColumnID)
		}
		hint := req.SourceIndex
		if req.SourceColumnID == "" {
			hint = idx
		}
		sourceCol = col
		var merr error
		insertedAt, drifted, merr = b.MoveTask(t.ID, col, req.ColumnID, hint, req.Order)
		return merr
	})
	metrics.ObserveCommit(time.Since(commitStart))
	metrics.SetRetries(retries)
	if moveErr != nil {
		if errors.Is(moveErr, domain.ErrConflict) {
			metrics.SetErrorStage("conflict")
		} else {
			metrics.SetErrorStage("commit")
		}
		release()
		err = h.respondErr(c, moveErr)
		return err
	}
	metrics.SetDrifted(drifted)
	if drifted {
		h.Logger.WithFields(map[string]any{
			"task":   t.ID,
			"column": sourceCol,
		}).Warn("client-supplied source index drifted from board state")
	}

	t.ColumnID = req.ColumnID
	t.Order = insertedAt
	t.UpdatedAt = time.Now().UTC()
	if uerr := h.Store.UpdateTask(ctx, t); uerr != nil {
		// The board write already committed; the stale denormalized fields
		// get re-derived from the board on the next read.
		h.Logger.Warnf("denormalized update failed for task %s: %v", t.ID, uerr)
	}

	h.Effects.Record(newActivity(userID, domain.ActionTaskMoved, "task", t.ID, p.ID, t.BoardID))
	h.broadcast(origin(c), domain.Mutation{
		Action:         domain.MutTaskMoved,
		EntityType:     "task",
		EntityID:       t.ID,
		BoardID:        t.BoardID,
		Actor:          userID,
		SourceColumnID: sourceCol,
		DestColumnID:   req.ColumnID,
		DestIndex:      insertedAt,
	})
	err = c.JSON(http.StatusOK, moveTaskResponse{Task: t, Board: board})
	return err
}

func (h *handlers) deleteTask(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, _, p, err := h.taskScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	_, _, err = h.mutateBoard(ctx, t.BoardID, func(b *domain.Board) error {
		if rerr := b.RemoveTask(t.ID); rerr != nil && !errors.Is(rerr, domain.ErrNotFound) {
			return rerr
		}
		return nil
	})
	if err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.DeleteCommentsByTask(ctx, t.ID); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.DeleteTask(ctx, t.ID); err != nil {
		return h.respondErr(c, err)
	}

	h.Effects.Record(newActivity(userID, domain.ActionTaskDeleted, "task", t.ID, p.ID, t.BoardID))
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutTaskDeleted,
		EntityType: "task",
		EntityID:   t.ID,
		BoardID:    t.BoardID,
		Actor:      userID,
	})
	return c.NoContent(http.StatusNoContent)
}
