package api

import (
	"context"

	"kanban-api/domain"
)

const postBodyMaxSize = 64 * 1024 // 64 KiB

// Storage abstracts persistence for handlers.
type Storage interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	FindUserByName(ctx context.Context, name string) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error

	InsertProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	UpdateProject(ctx context.Context, p *domain.Project) error
	ListProjectsFor(ctx context.Context, userID string) ([]domain.Project, error)
	DeleteProject(ctx context.Context, id string) error

	InsertBoard(ctx context.Context, b *domain.Board) error
	GetBoard(ctx context.Context, id string) (*domain.Board, string, error)
	UpdateBoard(ctx context.Context, b *domain.Board, etag string) error
	ListBoardsByProject(ctx context.Context, projectID string) ([]domain.Board, error)
	DeleteBoard(ctx context.Context, id string) error

	InsertTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, t *domain.Task) error
	ListTasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	DeleteTasks(ctx context.Context, ids []string) error
	DeleteTasksByBoard(ctx context.Context, boardID string) error

	InsertComment(ctx context.Context, c *domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, c *domain.Comment) error
	DeleteComment(ctx context.Context, id string) error
	ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error)
	DeleteCommentsByTask(ctx context.Context, taskID string) error

	InsertActivity(ctx context.Context, a *domain.Activity) error
	ListActivitiesByProject(ctx context.Context, projectID string) ([]domain.Activity, error)
	DeleteActivitiesByProject(ctx context.Context, projectID string) error

	InsertNotification(ctx context.Context, n *domain.Notification) error
	ListNotificationsFor(ctx context.Context, recipient string) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, recipient, id string) error
	DeleteNotificationsByProject(ctx context.Context, projectID string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Broadcaster relays mutation descriptors to room subscribers on every
// instance, excluding the originating connection.
type Broadcaster interface {
	Broadcast(room, origin string, m domain.Mutation)
}

type errorResponse struct {
	Error string `json:"error"`
}
