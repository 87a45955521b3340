package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// InsertTask persists a new task document.
func (s *Storage) InsertTask(ctx context.Context, t *domain.Task) error {
	payload, err := json.Marshal(encodeTask(t))
	if err != nil {
		return err
	}
	_, err = s.tasks.AddEntity(ctx, payload, nil)
	return mapErr(err)
}

// GetTask retrieves a task by id.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.tasks.GetEntity(ctx, id, id, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeTask(resp.Value)
}

// UpdateTask replaces the stored task document.
func (s *Storage) UpdateTask(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(encodeTask(t))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.tasks.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapErr(err)
}

// ListTasksByBoard returns all tasks whose board id matches.
func (s *Storage) ListTasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "BoardID eq '" + escapeFilterValue(boardID) + "'"
	tasks := []domain.Task{}
	err := s.listEntities(ctx, s.tasks, filter, func(data []byte) error {
		t, err := decodeTask(data)
		if err != nil {
			return err
		}
		tasks = append(tasks, *t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// DeleteTask removes a single task document.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	_, err := s.tasks.DeleteEntity(ctx, id, id, nil)
	return mapErr(err)
}

// DeleteTasks removes the given task documents, tolerating ones already gone.
func (s *Storage) DeleteTasks(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := s.DeleteTask(ctx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// DeleteTasksByBoard removes every task document belonging to the board.
func (s *Storage) DeleteTasksByBoard(ctx context.Context, boardID string) error {
	return s.deleteWhere(ctx, s.tasks, "BoardID eq '"+escapeFilterValue(boardID)+"'")
}

// InsertComment persists a new comment document.
func (s *Storage) InsertComment(ctx context.Context, c *domain.Comment) error {
	payload, err := json.Marshal(encodeComment(c))
	if err != nil {
		return err
	}
	_, err = s.comments.AddEntity(ctx, payload, nil)
	return mapErr(err)
}

// GetComment retrieves a comment by id.
func (s *Storage) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	resp, err := s.comments.GetEntity(ctx, id, id, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeComment(resp.Value)
}

// UpdateComment replaces the stored comment document.
func (s *Storage) UpdateComment(ctx context.Context, c *domain.Comment) error {
	c.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(encodeComment(c))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.comments.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapErr(err)
}

// DeleteComment removes a comment document.
func (s *Storage) DeleteComment(ctx context.Context, id string) error {
	_, err := s.comments.DeleteEntity(ctx, id, id, nil)
	return mapErr(err)
}

// ListCommentsByTask returns all comments attached to the task.
func (s *Storage) ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	filter := "TaskID eq '" + escapeFilterValue(taskID) + "'"
	comments := []domain.Comment{}
	err := s.listEntities(ctx, s.comments, filter, func(data []byte) error {
		c, err := decodeComment(data)
		if err != nil {
			return err
		}
		comments = append(comments, *c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// DeleteCommentsByTask removes every comment attached to the task.
func (s *Storage) DeleteCommentsByTask(ctx context.Context, taskID string) error {
	return s.deleteWhere(ctx, s.comments, "TaskID eq '"+escapeFilterValue(taskID)+"'")
}
