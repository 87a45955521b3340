package domain

import (
	"encoding/json"
	"time"
)

// Activity action kinds.
const (
	ActionProjectCreated   = "project-created"
	ActionMemberAdded      = "member-added"
	ActionMemberRoleChange = "member-role-changed"
	ActionMemberRemoved    = "member-removed"
	ActionBoardCreated     = "board-created"
	ActionBoardDeleted     = "board-deleted"
	ActionColumnCreated    = "column-created"
	ActionColumnDeleted    = "column-deleted"
	ActionColumnsReordered = "columns-reordered"
	ActionTaskCreated      = "task-created"
	ActionTaskUpdated      = "task-updated"
	ActionTaskMoved        = "task-moved"
	ActionTaskDeleted      = "task-deleted"
	ActionCommentAdded     = "comment-added"
)

// Activity is an immutable audit record appended whenever a mutation
// succeeds. It is never updated or deleted except when the owning project is
// deleted.
type Activity struct {
	ID         string          `json:"id"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ProjectID  string          `json:"projectId"`
	BoardID    string          `json:"boardId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
