package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

type createBoardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
}

type boardResponse struct {
	Board *domain.Board `json:"board"`
	Tasks []domain.Task `json:"tasks"`
}

// mutateBoard runs fn against a freshly read board and writes the result back
// conditionally on the read's ETag. A concurrent writer triggers a re-read and
// re-apply; after boardWriteAttempts losses the caller gets Conflict. The
// retry count is returned for instrumentation.
func (h *handlers) mutateBoard(ctx context.Context, boardID string, fn func(*domain.Board) error) (*domain.Board, int, error) {
	for attempt := 0; attempt < boardWriteAttempts; attempt++ {
		b, etag, err := h.Store.GetBoard(ctx, boardID)
		if err != nil {
			return nil, attempt, err
		}
		if err := fn(b); err != nil {
			return nil, attempt, err
		}
		b.UpdatedAt = time.Now().UTC()
		err = h.Store.UpdateBoard(ctx, b, etag)
		if err == nil {
			return b, attempt, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, attempt, err
		}
	}
	return nil, boardWriteAttempts, fmt.Errorf("%w: board %s is being modified concurrently", domain.ErrConflict, boardID)
}

func (h *handlers) createBoard(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req createBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	p, err := h.memberProject(ctx, req.ProjectID, userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	b, err := domain.NewBoard(p.ID, req.Title, req.Description)
	if err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.InsertBoard(ctx, b); err != nil {
		return h.respondErr(c, err)
	}
	h.Effects.Record(newActivity(userID, domain.ActionBoardCreated, "board", b.ID, p.ID, b.ID))
	return c.JSON(http.StatusCreated, b)
}

// getBoard returns the board plus its tasks with ColumnID and Order re-derived
// from the board, which is the source of truth for placement.
func (h *handlers) getBoard(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, _, _, err := h.boardScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	tasks, err := h.Store.ListTasksByBoard(ctx, b.ID)
	if err != nil {
		return h.respondErr(c, err)
	}
	placed := tasks[:0]
	for _, t := range tasks {
		col, idx, ok := b.Locate(t.ID)
		if !ok {
			// Half-deleted task, invisible until the cascade finishes.
			continue
		}
		t.ColumnID = col
		t.Order = idx
		placed = append(placed, t)
	}
	return c.JSON(http.StatusOK, boardResponse{Board: b, Tasks: placed})
}

func (h *handlers) deleteBoard(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, _, _, err := h.boardScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	if _, err := h.adminProject(ctx, b.ProjectID, userID); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.deleteBoardCascade(c, b, userID); err != nil {
		return h.respondErr(c, err)
	}
	h.Effects.Record(newActivity(userID, domain.ActionBoardDeleted, "board", b.ID, b.ProjectID, b.ID))
	return c.NoContent(http.StatusNoContent)
}

// deleteBoardCascade removes a board, its tasks and their comments. The
// activity entry is the caller's business: a project-level cascade is about to
// drop the activity log anyway.
func (h *handlers) deleteBoardCascade(c echo.Context, b *domain.Board, actor string) error {
	ctx := c.Request().Context()
	tasks, err := h.Store.ListTasksByBoard(ctx, b.ID)
	if err != nil {
		return err
	}
	for i := range tasks {
		if err := h.Store.DeleteCommentsByTask(ctx, tasks[i].ID); err != nil {
			return err
		}
	}
	if err := h.Store.DeleteTasksByBoard(ctx, b.ID); err != nil {
		return err
	}
	if err := h.Store.DeleteBoard(ctx, b.ID); err != nil {
		return err
	}
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutBoardDeleted,
		EntityType: "board",
		EntityID:   b.ID,
		BoardID:    b.ID,
		ProjectID:  b.ProjectID,
		Actor:      actor,
	})
	return nil
}

func (h *handlers) createColumn(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	b, _, p, err := h.boardScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	var col *domain.Column
	b, _, err = h.mutateBoard(ctx, b.ID, func(board *domain.Board) error {
		var aerr error
		col, aerr = board.AddColumn(req.Title)
		return aerr
	})
	if err != nil {
		return h.respondErr(c, err)
	}

	data, _ := sonic.Marshal(col)
	h.Effects.Record(newActivity(userID, domain.ActionColumnCreated, "column", col.ID, p.ID, b.ID))
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutColumnCreated,
		EntityType: "column",
		EntityID:   col.ID,
		BoardID:    b.ID,
		Actor:      userID,
		Data:       data,
	})
	return c.JSON(http.StatusOK, b)
}

func (h *handlers) reorderColumns(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req struct {
		ColumnOrder []string `json:"columnOrder"`
	}
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	b, _, p, err := h.boardScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	b, _, err = h.mutateBoard(ctx, b.ID, func(board *domain.Board) error {
		return board.ReorderColumns(req.ColumnOrder)
	})
	if err != nil {
		return h.respondErr(c, err)
	}

	data, _ := sonic.Marshal(req.ColumnOrder)
	h.Effects.Record(newActivity(userID, domain.ActionColumnsReordered, "board", b.ID, p.ID, b.ID))
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutColumnsReordered,
		EntityType: "board",
		EntityID:   b.ID,
		BoardID:    b.ID,
		Actor:      userID,
		Data:       data,
	})
	return c.JSON(http.StatusOK, b)
}

// deleteColumn drops a column and cascades deletion of the tasks it held.
func (h *handlers) deleteColumn(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, _, p, err := h.boardScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	columnID := c.Param("columnId")

	var orphans []string
	b, _, err = h.mutateBoard(ctx, b.ID, func(board *domain.Board) error {
		var rerr error
		orphans, rerr = board.RemoveColumn(columnID)
		return rerr
	})
	if err != nil {
		return h.respondErr(c, err)
	}

	for _, taskID := range orphans {
		if err := h.Store.DeleteCommentsByTask(ctx, taskID); err != nil {
			return h.respondErr(c, err)
		}
	}
	if err := h.Store.DeleteTasks(ctx, orphans); err != nil {
		return h.respondErr(c, err)
	}

	h.Effects.Record(newActivity(userID, domain.ActionColumnDeleted, "column", columnID, p.ID, b.ID))
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutColumnDeleted,
		EntityType: "column",
		EntityID:   columnID,
		BoardID:    b.ID,
		Actor:      userID,
	})
	return c.JSON(http.StatusOK, b)
}
