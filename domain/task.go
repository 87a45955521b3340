package domain

import "time"

// Label is a colored tag attached to a task.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Task is a single board item. ColumnID and Order are denormalized copies of
// the task's position in its column's TaskIDs; the board is the source of
// truth and these fields are re-derived from it whenever the two disagree.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	BoardID     string     `json:"boardId"`
	ColumnID    string     `json:"columnId"`
	Order       int        `json:"order"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Labels      []Label    `json:"labels,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// User is a registered account, referenced by membership lists, assignments
// and mentions.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
