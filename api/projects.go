package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createProjectResponse struct {
	Project *domain.Project `json:"project"`
	Board   *domain.Board   `json:"board"`
}

type projectResponse struct {
	Project *domain.Project `json:"project"`
	Boards  []domain.Board  `json:"boards"`
}

type memberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func newActivity(actor, action, entityType, entityID, projectID, boardID string) *domain.Activity {
	return &domain.Activity{
		ID:         uuid.NewString(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ProjectID:  projectID,
		BoardID:    boardID,
		CreatedAt:  nextEventTime(),
	}
}

// createProject provisions a project together with its default board.
func (h *handlers) createProject(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req createProjectRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	release, err := h.claimIdempotency(c, userID)
	if err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}

	ctx := c.Request().Context()
	p, err := domain.NewProject(req.Name, req.Description, userID)
	if err != nil {
		release()
		return h.respondErr(c, err)
	}
	if err := h.Store.InsertProject(ctx, p); err != nil {
		release()
		return h.respondErr(c, err)
	}
	board := domain.DefaultBoard(p.ID, p.Name)
	if err := h.Store.InsertBoard(ctx, board); err != nil {
		release()
		return h.respondErr(c, err)
	}

	h.Effects.Record(newActivity(userID, domain.ActionProjectCreated, "project", p.ID, p.ID, ""))
	return c.JSON(http.StatusCreated, createProjectResponse{Project: p, Board: board})
}

func (h *handlers) listProjects(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	projects, err := h.Store.ListProjectsFor(c.Request().Context(), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, projects)
}

func (h *handlers) getProject(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.memberProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	boards, err := h.Store.ListBoardsByProject(ctx, p.ID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, projectResponse{Project: p, Boards: boards})
}

// deleteProject removes the project and everything hanging off it: boards,
// tasks, comments, activity and notifications.
func (h *handlers) deleteProject(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.adminProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	boards, err := h.Store.ListBoardsByProject(ctx, p.ID)
	if err != nil {
		return h.respondErr(c, err)
	}
	for i := range boards {
		if err := h.deleteBoardCascade(c, &boards[i], userID); err != nil {
			return h.respondErr(c, err)
		}
	}
	if err := h.Store.DeleteActivitiesByProject(ctx, p.ID); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.DeleteNotificationsByProject(ctx, p.ID); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.DeleteProject(ctx, p.ID); err != nil {
		return h.respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) listActivity(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.memberProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	activities, err := h.Store.ListActivitiesByProject(ctx, p.ID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, activities)
}

func (h *handlers) addMember(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req memberRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	p, err := h.adminProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	if _, err := h.Store.GetUser(ctx, req.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return h.respondErr(c, fmt.Errorf("%w: unknown user %s", domain.ErrValidation, req.UserID))
		}
		return h.respondErr(c, err)
	}
	if err := p.AddMember(req.UserID, domain.Role(req.Role)); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.UpdateProject(ctx, p); err != nil {
		return h.respondErr(c, err)
	}

	h.Effects.Record(
		newActivity(userID, domain.ActionMemberAdded, "member", req.UserID, p.ID, ""),
		domain.Notification{
			ID:         uuid.NewString(),
			Recipient:  req.UserID,
			Sender:     userID,
			Type:       domain.NotifyMemberAdded,
			Message:    fmt.Sprintf("you were added to project %q", p.Name),
			EntityType: "project",
			EntityID:   p.ID,
			ProjectID:  p.ID,
			CreatedAt:  nextEventTime(),
		},
	)
	return c.JSON(http.StatusOK, p)
}

func (h *handlers) changeMemberRole(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	ctx := c.Request().Context()
	p, err := h.adminProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	target := c.Param("userId")
	if err := p.ChangeRole(target, domain.Role(req.Role)); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.UpdateProject(ctx, p); err != nil {
		return h.respondErr(c, err)
	}
	h.Effects.Record(newActivity(userID, domain.ActionMemberRoleChange, "member", target, p.ID, ""))
	return c.JSON(http.StatusOK, p)
}

func (h *handlers) removeMember(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p, err := h.adminProject(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	target := c.Param("userId")
	if err := p.RemoveMember(target); err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.UpdateProject(ctx, p); err != nil {
		return h.respondErr(c, err)
	}
	h.Effects.Record(newActivity(userID, domain.ActionMemberRemoved, "member", target, p.ID, ""))
	return c.JSON(http.StatusOK, p)
}
