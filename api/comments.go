package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

type createCommentRequest struct {
	TaskID  string `json:"taskId"`
	Content string `json:"content"`
}

// resolveMentions maps @name tokens in content to user ids. Tokens that do not
// name a registered project member are left as plain text.
func (h *handlers) resolveMentions(ctx context.Context, p *domain.Project, content string) ([]string, error) {
	var mentions []string
	for _, token := range domain.MentionTokens(content) {
		u, err := h.Store.FindUserByName(ctx, token)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if u == nil {
			continue
		}
		if !p.IsMember(u.ID) {
			continue
		}
		mentions = append(mentions, u.ID)
	}
	return mentions, nil
}

func (h *handlers) commentNotifications(cm *domain.Comment, t *domain.Task, p *domain.Project) []domain.Notification {
	notified := map[string]struct{}{cm.Author: {}}
	var out []domain.Notification
	for _, userID := range cm.Mentions {
		if _, done := notified[userID]; done {
			continue
		}
		notified[userID] = struct{}{}
		out = append(out, domain.Notification{
			ID:         uuid.NewString(),
			Recipient:  userID,
			Sender:     cm.Author,
			Type:       domain.NotifyMentioned,
			Message:    fmt.Sprintf("you were mentioned on task %q", t.Title),
			EntityType: "comment",
			EntityID:   cm.ID,
			ProjectID:  p.ID,
			CreatedAt:  nextEventTime(),
		})
	}
	for _, assignee := range t.AssignedTo {
		if _, done := notified[assignee]; done {
			continue
		}
		notified[assignee] = struct{}{}
		out = append(out, domain.Notification{
			ID:         uuid.NewString(),
			Recipient:  assignee,
			Sender:     cm.Author,
			Type:       domain.NotifyCommented,
			Message:    fmt.Sprintf("new comment on task %q", t.Title),
			EntityType: "comment",
			EntityID:   cm.ID,
			ProjectID:  p.ID,
			CreatedAt:  nextEventTime(),
		})
	}
	return out
}

func (h *handlers) createComment(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req createCommentRequest
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	if req.Content == "" {
		return h.respondErr(c, fmt.Errorf("%w: comment content is required", domain.ErrValidation))
	}
	ctx := c.Request().Context()
	t, b, p, err := h.taskScope(ctx, req.TaskID, userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	mentions, err := h.resolveMentions(ctx, p, req.Content)
	if err != nil {
		return h.respondErr(c, err)
	}
	now := time.Now().UTC()
	cm := &domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    t.ID,
		Author:    userID,
		Content:   req.Content,
		Mentions:  mentions,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Store.InsertComment(ctx, cm); err != nil {
		return h.respondErr(c, err)
	}

	h.Effects.Record(
		newActivity(userID, domain.ActionCommentAdded, "comment", cm.ID, p.ID, b.ID),
		h.commentNotifications(cm, t, p)...,
	)

	data, _ := sonic.Marshal(cm)
	h.broadcast(origin(c), domain.Mutation{
		Action:     domain.MutCommentAdded,
		EntityType: "comment",
		EntityID:   cm.ID,
		BoardID:    b.ID,
		Actor:      userID,
		Data:       data,
	})
	return c.JSON(http.StatusCreated, cm)
}

func (h *handlers) listComments(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, _, _, err := h.taskScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	comments, err := h.Store.ListCommentsByTask(ctx, t.ID)
	if err != nil {
		return h.respondErr(c, err)
	}
	return c.JSON(http.StatusOK, comments)
}

// commentScope loads a comment and enforces the author-or-admin rule for
// edits and deletes.
func (h *handlers) commentScope(ctx context.Context, commentID, userID string) (*domain.Comment, *domain.Task, *domain.Project, error) {
	cm, err := h.Store.GetComment(ctx, commentID)
	if err != nil {
		return nil, nil, nil, err
	}
	t, _, p, err := h.taskScope(ctx, cm.TaskID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if cm.Author != userID && !p.CanAdminister(userID) {
		return nil, nil, nil, fmt.Errorf("%w: only the author or a project admin may modify this comment", domain.ErrForbidden)
	}
	return cm, t, p, nil
}

func (h *handlers) updateComment(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(c, &req); err != nil {
		return h.respondErr(c, err)
	}
	if req.Content == "" {
		return h.respondErr(c, fmt.Errorf("%w: comment content is required", domain.ErrValidation))
	}
	ctx := c.Request().Context()
	cm, t, p, err := h.commentScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}

	mentions, err := h.resolveMentions(ctx, p, req.Content)
	if err != nil {
		return h.respondErr(c, err)
	}
	previous := make(map[string]struct{}, len(cm.Mentions))
	for _, id := range cm.Mentions {
		previous[id] = struct{}{}
	}
	cm.Content = req.Content
	cm.Mentions = mentions
	cm.UpdatedAt = time.Now().UTC()
	if err := h.Store.UpdateComment(ctx, cm); err != nil {
		return h.respondErr(c, err)
	}

	// Only users mentioned for the first time get notified.
	var notes []domain.Notification
	for _, id := range mentions {
		if _, seen := previous[id]; seen || id == userID {
			continue
		}
		notes = append(notes, domain.Notification{
			ID:         uuid.NewString(),
			Recipient:  id,
			Sender:     userID,
			Type:       domain.NotifyMentioned,
			Message:    fmt.Sprintf("you were mentioned on task %q", t.Title),
			EntityType: "comment",
			EntityID:   cm.ID,
			ProjectID:  p.ID,
			CreatedAt:  nextEventTime(),
		})
	}
	if len(notes) > 0 {
		h.Effects.Record(nil, notes...)
	}
	return c.JSON(http.StatusOK, cm)
}

func (h *handlers) deleteComment(c echo.Context) error {
	userID, err := h.requireUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	cm, _, _, err := h.commentScope(ctx, c.Param("id"), userID)
	if err != nil {
		return h.respondErr(c, err)
	}
	if err := h.Store.DeleteComment(ctx, cm.ID); err != nil {
		return h.respondErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
