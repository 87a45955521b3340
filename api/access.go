package api

import (
	"context"
	"fmt"

	"kanban-api/domain"
)

// Access checks resolve the ownership chain task -> board -> project before
// any mutation runs. A broken link is NotFound; a resolved project the caller
// does not belong to is Forbidden.

func (h *handlers) memberProject(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	p, err := h.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.IsMember(userID) {
		return nil, fmt.Errorf("%w: not a member of project %s", domain.ErrForbidden, projectID)
	}
	return p, nil
}

func (h *handlers) adminProject(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	p, err := h.memberProject(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !p.CanAdminister(userID) {
		return nil, fmt.Errorf("%w: requires admin or owner role", domain.ErrForbidden)
	}
	return p, nil
}

// boardScope loads a board and checks the caller's membership in its project.
func (h *handlers) boardScope(ctx context.Context, boardID, userID string) (*domain.Board, string, *domain.Project, error) {
	b, etag, err := h.Store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, "", nil, err
	}
	p, err := h.memberProject(ctx, b.ProjectID, userID)
	if err != nil {
		return nil, "", nil, err
	}
	return b, etag, p, nil
}

// taskScope loads a task and walks up to its board and project.
func (h *handlers) taskScope(ctx context.Context, taskID, userID string) (*domain.Task, *domain.Board, *domain.Project, error) {
	t, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	b, _, p, err := h.boardScope(ctx, t.BoardID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return t, b, p, nil
}
