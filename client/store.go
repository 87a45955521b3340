package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"

	"kanban-api/domain"
)

// ErrResetRequired means the mirror can no longer reconcile incrementally and
// the caller has to re-fetch the full board snapshot.
var ErrResetRequired = errors.New("board mirror out of sync, full refetch required")

// transaction is one optimistic mutation awaiting the server's verdict. The
// inverse undoes it if the server rejects it.
type transaction struct {
	id      string
	inverse func(*domain.Board) error
}

// BoardStore is a client-side mirror of a single board. Mutations are applied
// optimistically and journaled; the server's confirmation drops the journal
// entry, a rejection rolls the mutation back through its recorded inverse.
// All dependencies are injected, the store holds no global state.
type BoardStore struct {
	mu      sync.Mutex
	board   *domain.Board
	pending []transaction
}

// NewBoardStore mirrors the given snapshot.
func NewBoardStore(snapshot *domain.Board) *BoardStore {
	return &BoardStore{board: cloneBoard(snapshot)}
}

func cloneBoard(b *domain.Board) *domain.Board {
	data, err := sonic.Marshal(b)
	if err != nil {
		panic(err)
	}
	out := new(domain.Board)
	if err := sonic.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

// Board returns a copy of the mirrored state.
func (s *BoardStore) Board() *domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBoard(s.board)
}

// Pending reports how many optimistic mutations await a verdict.
func (s *BoardStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Reset replaces the mirror with a fresh snapshot and drops the journal.
func (s *BoardStore) Reset(snapshot *domain.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = cloneBoard(snapshot)
	s.pending = nil
}

// Apply runs a mutation optimistically under the given transaction id. The
// inverse is computed against the pre-mutation state before anything changes,
// so a failed apply leaves both mirror and journal untouched.
func (s *BoardStore) Apply(txnID string, m domain.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, err := s.inverseFor(m)
	if err != nil {
		return err
	}
	if err := apply(s.board, m); err != nil {
		return err
	}
	s.pending = append(s.pending, transaction{id: txnID, inverse: inv})
	return nil
}

// Confirm drops the journal entry for a server-accepted mutation.
func (s *BoardStore) Confirm(txnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pending {
		if s.pending[i].id == txnID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// Reject undoes a server-rejected mutation. Only the most recent pending
// mutation can be inverted safely; rejecting an older one means later
// mutations were layered on top of state that never existed, so the journal
// is cleared and the caller must Reset from a fresh snapshot.
func (s *BoardStore) Reject(txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.pending {
		if s.pending[i].id == txnID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	if idx != len(s.pending)-1 {
		s.pending = nil
		return ErrResetRequired
	}
	txn := s.pending[idx]
	s.pending = s.pending[:idx]
	if txn.inverse == nil {
		s.pending = nil
		return ErrResetRequired
	}
	if err := txn.inverse(s.board); err != nil {
		s.pending = nil
		return ErrResetRequired
	}
	return nil
}

// ApplyRemote replays a broadcast mutation from another connection. It uses
// the same remove-then-insert logic as local applies, so the structural
// invariant holds after every replay.
func (s *BoardStore) ApplyRemote(m domain.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Action == domain.MutBoardDeleted {
		return ErrResetRequired
	}
	if err := apply(s.board, m); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRequired, err)
	}
	return nil
}

func noInverse(*domain.Board) error { return nil }

// inverseFor captures whatever pre-state the mutation's undo needs.
func (s *BoardStore) inverseFor(m domain.Mutation) (func(*domain.Board) error, error) {
	switch m.Action {
	case domain.MutTaskCreated:
		taskID := m.EntityID
		return func(b *domain.Board) error {
			return b.RemoveTask(taskID)
		}, nil

	case domain.MutTaskMoved:
		col, idx, ok := s.board.Locate(m.EntityID)
		if !ok {
			return nil, fmt.Errorf("%w: task %s not on the board", domain.ErrNotFound, m.EntityID)
		}
		taskID, dest := m.EntityID, m.DestColumnID
		return func(b *domain.Board) error {
			_, _, err := b.MoveTask(taskID, dest, col, m.DestIndex, idx)
			return err
		}, nil

	case domain.MutTaskDeleted:
		col, idx, ok := s.board.Locate(m.EntityID)
		if !ok {
			return nil, fmt.Errorf("%w: task %s not on the board", domain.ErrNotFound, m.EntityID)
		}
		taskID := m.EntityID
		return func(b *domain.Board) error {
			return insertTaskID(b, col, taskID, idx)
		}, nil

	case domain.MutColumnCreated:
		var col domain.Column
		if err := sonic.Unmarshal(m.Data, &col); err != nil {
			return nil, fmt.Errorf("%w: bad column payload: %v", domain.ErrValidation, err)
		}
		return func(b *domain.Board) error {
			_, err := b.RemoveColumn(col.ID)
			return err
		}, nil

	case domain.MutColumnDeleted:
		snapshot, pos, err := columnSnapshot(s.board, m.EntityID)
		if err != nil {
			return nil, err
		}
		return func(b *domain.Board) error {
			return restoreColumn(b, snapshot, pos)
		}, nil

	case domain.MutColumnsReordered:
		previous := append([]string(nil), s.board.ColumnOrder...)
		return func(b *domain.Board) error {
			return b.ReorderColumns(previous)
		}, nil

	case domain.MutTaskUpdated, domain.MutCommentAdded:
		// No structural change to mirror, nothing to undo.
		return noInverse, nil

	default:
		return nil, fmt.Errorf("%w: unsupported action %q", domain.ErrValidation, m.Action)
	}
}

// apply mutates the mirror with the descriptor's remove-then-insert logic.
func apply(b *domain.Board, m domain.Mutation) error {
	switch m.Action {
	case domain.MutTaskCreated:
		if m.DestColumnID == "" {
			return fmt.Errorf("%w: created task carries no column", domain.ErrValidation)
		}
		_, err := b.PlaceTask(m.DestColumnID, m.EntityID)
		return err

	case domain.MutTaskMoved:
		src := m.SourceColumnID
		hint := -1
		if src == "" {
			col, idx, ok := b.Locate(m.EntityID)
			if !ok {
				return fmt.Errorf("%w: task %s not on the board", domain.ErrNotFound, m.EntityID)
			}
			src, hint = col, idx
		}
		_, _, err := b.MoveTask(m.EntityID, src, m.DestColumnID, hint, m.DestIndex)
		return err

	case domain.MutTaskDeleted:
		return b.RemoveTask(m.EntityID)

	case domain.MutColumnCreated:
		var col domain.Column
		if err := sonic.Unmarshal(m.Data, &col); err != nil {
			return fmt.Errorf("%w: bad column payload: %v", domain.ErrValidation, err)
		}
		if col.TaskIDs == nil {
			col.TaskIDs = []string{}
		}
		col.Order = len(b.Columns)
		b.Columns = append(b.Columns, col)
		b.ColumnOrder = append(b.ColumnOrder, col.ID)
		return nil

	case domain.MutColumnDeleted:
		_, err := b.RemoveColumn(m.EntityID)
		return err

	case domain.MutColumnsReordered:
		var order []string
		if err := sonic.Unmarshal(m.Data, &order); err != nil {
			return fmt.Errorf("%w: bad order payload: %v", domain.ErrValidation, err)
		}
		return b.ReorderColumns(order)

	case domain.MutTaskUpdated, domain.MutCommentAdded:
		return nil

	default:
		return fmt.Errorf("%w: unsupported action %q", domain.ErrValidation, m.Action)
	}
}

func insertTaskID(b *domain.Board, columnID, taskID string, idx int) error {
	for i := range b.Columns {
		if b.Columns[i].ID != columnID {
			continue
		}
		ids := b.Columns[i].TaskIDs
		if idx < 0 {
			idx = 0
		}
		if idx > len(ids) {
			idx = len(ids)
		}
		next := make([]string, 0, len(ids)+1)
		next = append(next, ids[:idx]...)
		next = append(next, taskID)
		next = append(next, ids[idx:]...)
		b.Columns[i].TaskIDs = next
		return nil
	}
	return fmt.Errorf("%w: column %s", domain.ErrNotFound, columnID)
}

func columnSnapshot(b *domain.Board, columnID string) (domain.Column, int, error) {
	for i := range b.Columns {
		if b.Columns[i].ID == columnID {
			col := b.Columns[i]
			col.TaskIDs = append([]string(nil), col.TaskIDs...)
			for pos, id := range b.ColumnOrder {
				if id == columnID {
					return col, pos, nil
				}
			}
			return col, len(b.ColumnOrder), nil
		}
	}
	return domain.Column{}, 0, fmt.Errorf("%w: column %s", domain.ErrNotFound, columnID)
}

func restoreColumn(b *domain.Board, col domain.Column, pos int) error {
	if pos > len(b.ColumnOrder) {
		pos = len(b.ColumnOrder)
	}
	b.Columns = append(b.Columns, col)
	order := make([]string, 0, len(b.ColumnOrder)+1)
	order = append(order, b.ColumnOrder[:pos]...)
	order = append(order, col.ID)
	order = append(order, b.ColumnOrder[pos:]...)
	return b.ReorderColumns(order)
}
