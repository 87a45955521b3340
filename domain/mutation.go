package domain

import "github.com/bytedance/sonic"

// Mutation actions relayed over the real-time channel.
const (
	MutTaskCreated      = "task:created"
	MutTaskUpdated      = "task:updated"
	MutTaskMoved        = "task:moved"
	MutTaskDeleted      = "task:deleted"
	MutColumnCreated    = "column:created"
	MutColumnDeleted    = "column:deleted"
	MutColumnsReordered = "columns:reordered"
	MutCommentAdded     = "comment:added"
	MutBoardDeleted     = "board:deleted"
)

// Mutation is the compact descriptor of an already-applied change, broadcast
// to the other connections in a board or project room. It carries only what a
// remote mirror needs to reconcile; a client that missed one re-fetches the
// full board instead of replaying history.
type Mutation struct {
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	BoardID    string `json:"boardId,omitempty"`
	ProjectID  string `json:"projectId,omitempty"`
	Actor      string `json:"actor,omitempty"`

	// Move reconciliation fields.
	SourceColumnID string `json:"sourceColumnId,omitempty"`
	DestColumnID   string `json:"destColumnId,omitempty"`
	DestIndex      int    `json:"destIndex,omitempty"`

	// Entity snapshot for creations, when remote mirrors need more than ids.
	Data sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// Room names a broadcast scope.
func (m Mutation) Room() string {
	if m.BoardID != "" {
		return BoardRoom(m.BoardID)
	}
	return ProjectRoom(m.ProjectID)
}

// BoardRoom returns the room name for a board's subscribers.
func BoardRoom(boardID string) string { return "board:" + boardID }

// ProjectRoom returns the room name for a project's subscribers.
func ProjectRoom(projectID string) string { return "project:" + projectID }
