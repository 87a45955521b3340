package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Column is a named bucket within a board. TaskIDs is the authoritative
// position of tasks within the column; Order is a denormalized copy of the
// column's index in the board's ColumnOrder.
type Column struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Order   int      `json:"order"`
	TaskIDs []string `json:"taskIds"`
}

// Board is a Kanban view owned by one project. ColumnOrder defines display
// order and is kept as an exact permutation of the ids in Columns.
type Board struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ProjectID   string    `json:"projectId"`
	Columns     []Column  `json:"columns"`
	ColumnOrder []string  `json:"columnOrder"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var defaultColumnTitles = []string{"To Do", "In Progress", "Done"}

// NewBoard creates an empty board for the given project.
func NewBoard(projectID, title, description string) (*Board, error) {
	if title == "" {
		return nil, fmt.Errorf("board title is required: %w", ErrValidation)
	}
	if projectID == "" {
		return nil, fmt.Errorf("board project id is required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	return &Board{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		ProjectID:   projectID,
		Columns:     []Column{},
		ColumnOrder: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// DefaultBoard creates the board that accompanies a new project, seeded with
// the To Do / In Progress / Done columns. It never has zero columns.
func DefaultBoard(projectID, title string) *Board {
	b, _ := NewBoard(projectID, title, "")
	for _, t := range defaultColumnTitles {
		_, _ = b.AddColumn(t)
	}
	return b
}

func (b *Board) column(id string) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// Column returns a copy of the column with the given id.
func (b *Board) Column(id string) (Column, bool) {
	c := b.column(id)
	if c == nil {
		return Column{}, false
	}
	return *c, true
}

// AddColumn appends a new empty column to Columns and ColumnOrder.
func (b *Board) AddColumn(title string) (*Column, error) {
	if title == "" {
		return nil, fmt.Errorf("column title is required: %w", ErrValidation)
	}
	col := Column{
		ID:      uuid.NewString(),
		Title:   title,
		Order:   len(b.ColumnOrder),
		TaskIDs: []string{},
	}
	b.Columns = append(b.Columns, col)
	b.ColumnOrder = append(b.ColumnOrder, col.ID)
	return &b.Columns[len(b.Columns)-1], nil
}

// ReorderColumns replaces ColumnOrder with newOrder. newOrder must be an exact
// permutation of the current column ids; otherwise the board is left unchanged.
// Each column's denormalized Order is rewritten to its index in newOrder.
func (b *Board) ReorderColumns(newOrder []string) error {
	if len(newOrder) != len(b.Columns) {
		return fmt.Errorf("column order must list all %d columns: %w", len(b.Columns), ErrValidation)
	}
	seen := make(map[string]struct{}, len(newOrder))
	for _, id := range newOrder {
		if b.column(id) == nil {
			return fmt.Errorf("unknown column %s: %w", id, ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate column %s: %w", id, ErrValidation)
		}
		seen[id] = struct{}{}
	}
	b.ColumnOrder = append([]string(nil), newOrder...)
	for i, id := range b.ColumnOrder {
		b.column(id).Order = i
	}
	return nil
}

// RemoveColumn drops the column from Columns and ColumnOrder and returns the
// task ids it held so the caller can cascade their deletion.
func (b *Board) RemoveColumn(columnID string) ([]string, error) {
	col := b.column(columnID)
	if col == nil {
		return nil, fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	orphaned := append([]string(nil), col.TaskIDs...)
	cols := b.Columns[:0]
	for _, c := range b.Columns {
		if c.ID != columnID {
			cols = append(cols, c)
		}
	}
	b.Columns = cols
	order := b.ColumnOrder[:0]
	for _, id := range b.ColumnOrder {
		if id != columnID {
			order = append(order, id)
		}
	}
	b.ColumnOrder = order
	for i, id := range b.ColumnOrder {
		b.column(id).Order = i
	}
	return orphaned, nil
}

// PlaceTask appends the task id to the column's TaskIDs and returns the
// position it was assigned. Creation always appends at the end; column
// membership never changes again except through MoveTask.
func (b *Board) PlaceTask(columnID, taskID string) (int, error) {
	col := b.column(columnID)
	if col == nil {
		return 0, fmt.Errorf("column %s: %w", columnID, ErrNotFound)
	}
	col.TaskIDs = append(col.TaskIDs, taskID)
	return len(col.TaskIDs) - 1, nil
}

// MoveTask removes the task from the source column and inserts it into the
// destination column at destIndex (clamped to [0, len]) as one logical
// operation, so the task never belongs to zero or two columns.
//
// Removal is by id, not by the caller-supplied sourceIndex: the index is only
// a hint asserting where the caller last saw the task. The returned drifted
// flag reports a mismatch so callers can log it as a reconciliation signal.
func (b *Board) MoveTask(taskID, sourceColumnID, destColumnID string, sourceIndex, destIndex int) (insertedAt int, drifted bool, err error) {
	src := b.column(sourceColumnID)
	if src == nil {
		return 0, false, fmt.Errorf("source column %s: %w", sourceColumnID, ErrNotFound)
	}
	dst := b.column(destColumnID)
	if dst == nil {
		return 0, false, fmt.Errorf("destination column %s: %w", destColumnID, ErrNotFound)
	}
	at := -1
	for i, id := range src.TaskIDs {
		if id == taskID {
			at = i
			break
		}
	}
	if at < 0 {
		return 0, false, fmt.Errorf("task %s not in column %s: %w", taskID, sourceColumnID, ErrNotFound)
	}
	drifted = at != sourceIndex
	src.TaskIDs = append(src.TaskIDs[:at], src.TaskIDs[at+1:]...)
	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(dst.TaskIDs) {
		destIndex = len(dst.TaskIDs)
	}
	dst.TaskIDs = append(dst.TaskIDs, "")
	copy(dst.TaskIDs[destIndex+1:], dst.TaskIDs[destIndex:])
	dst.TaskIDs[destIndex] = taskID
	return destIndex, drifted, nil
}

// RemoveTask removes the task id from whichever column holds it.
func (b *Board) RemoveTask(taskID string) error {
	for i := range b.Columns {
		col := &b.Columns[i]
		for j, id := range col.TaskIDs {
			if id == taskID {
				col.TaskIDs = append(col.TaskIDs[:j], col.TaskIDs[j+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("task %s not on board %s: %w", taskID, b.ID, ErrNotFound)
}

// Locate returns the column id and position of the task on the board.
func (b *Board) Locate(taskID string) (columnID string, index int, ok bool) {
	for i := range b.Columns {
		for j, id := range b.Columns[i].TaskIDs {
			if id == taskID {
				return b.Columns[i].ID, j, true
			}
		}
	}
	return "", 0, false
}

// TaskIDs returns every task id referenced by the board's columns.
func (b *Board) TaskIDs() []string {
	var ids []string
	for i := range b.Columns {
		ids = append(ids, b.Columns[i].TaskIDs...)
	}
	return ids
}

// Validate checks the board's structural invariants: ColumnOrder is an exact
// permutation of the column ids, and no task id appears in more than one
// column or more than once within a column.
func (b *Board) Validate() error {
	if len(b.ColumnOrder) != len(b.Columns) {
		return fmt.Errorf("column order has %d entries for %d columns: %w", len(b.ColumnOrder), len(b.Columns), ErrValidation)
	}
	seen := make(map[string]struct{}, len(b.ColumnOrder))
	for _, id := range b.ColumnOrder {
		if b.column(id) == nil {
			return fmt.Errorf("column order references unknown column %s: %w", id, ErrValidation)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("column order repeats column %s: %w", id, ErrValidation)
		}
		seen[id] = struct{}{}
	}
	owners := make(map[string]string)
	for i := range b.Columns {
		col := &b.Columns[i]
		for _, tid := range col.TaskIDs {
			if prev, dup := owners[tid]; dup {
				return fmt.Errorf("task %s appears in columns %s and %s: %w", tid, prev, col.ID, ErrValidation)
			}
			owners[tid] = col.ID
		}
	}
	return nil
}
