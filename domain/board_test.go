package domain

import (
	"errors"
	"reflect"
	"testing"
)

func mustAddColumn(t *testing.T, b *Board, title string) *Column {
	t.Helper()
	col, err := b.AddColumn(title)
	if err != nil {
		t.Fatalf("add column %q: %v", title, err)
	}
	return col
}

func TestDefaultBoardColumns(t *testing.T) {
	b := DefaultBoard("p1", "Eng board")
	if len(b.Columns) != 3 {
		t.Fatalf("expected 3 default columns, got %d", len(b.Columns))
	}
	titles := make([]string, 0, 3)
	for _, id := range b.ColumnOrder {
		col, ok := b.Column(id)
		if !ok {
			t.Fatalf("column order references missing column %s", id)
		}
		titles = append(titles, col.Title)
	}
	want := []string{"To Do", "In Progress", "Done"}
	if !reflect.DeepEqual(titles, want) {
		t.Fatalf("unexpected default columns: %v", titles)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("default board invalid: %v", err)
	}
}

func TestAddColumnEmptyTitle(t *testing.T) {
	b := DefaultBoard("p1", "b")
	if _, err := b.AddColumn(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReorderColumns(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo, inProgress, done := b.ColumnOrder[0], b.ColumnOrder[1], b.ColumnOrder[2]

	if err := b.ReorderColumns([]string{done, todo, inProgress}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if !reflect.DeepEqual(b.ColumnOrder, []string{done, todo, inProgress}) {
		t.Fatalf("unexpected order: %v", b.ColumnOrder)
	}
	for i, id := range b.ColumnOrder {
		col, _ := b.Column(id)
		if col.Order != i {
			t.Fatalf("column %s order %d, want %d", id, col.Order, i)
		}
	}
}

func TestReorderColumnsRejectsNonPermutation(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo, inProgress, done := b.ColumnOrder[0], b.ColumnOrder[1], b.ColumnOrder[2]
	before := append([]string(nil), b.ColumnOrder...)

	cases := map[string][]string{
		"missing_column": {done, todo},
		"unknown_column": {done, todo, "nope"},
		"duplicate":      {done, todo, todo},
		"superset":       {done, todo, inProgress, done},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			if err := b.ReorderColumns(order); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !reflect.DeepEqual(b.ColumnOrder, before) {
				t.Fatalf("board changed on failed reorder: %v", b.ColumnOrder)
			}
		})
	}
}

func TestPlaceTaskAppends(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo := b.ColumnOrder[0]

	ord, err := b.PlaceTask(todo, "t1")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if ord != 0 {
		t.Fatalf("expected order 0, got %d", ord)
	}
	ord, err = b.PlaceTask(todo, "t2")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if ord != 1 {
		t.Fatalf("expected order 1, got %d", ord)
	}
	col, _ := b.Column(todo)
	if !reflect.DeepEqual(col.TaskIDs, []string{"t1", "t2"}) {
		t.Fatalf("unexpected task ids: %v", col.TaskIDs)
	}
	if _, err := b.PlaceTask("nope", "t3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveTaskAcrossColumns(t *testing.T) {
	b := DefaultBoard("Eng", "Eng board")
	todo, done := b.ColumnOrder[0], b.ColumnOrder[2]
	if _, err := b.PlaceTask(todo, "fix-bug"); err != nil {
		t.Fatalf("place: %v", err)
	}

	at, drifted, err := b.MoveTask("fix-bug", todo, done, 0, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if at != 0 || drifted {
		t.Fatalf("unexpected move result at=%d drifted=%v", at, drifted)
	}
	src, _ := b.Column(todo)
	dst, _ := b.Column(done)
	if len(src.TaskIDs) != 0 {
		t.Fatalf("source not emptied: %v", src.TaskIDs)
	}
	if !reflect.DeepEqual(dst.TaskIDs, []string{"fix-bug"}) {
		t.Fatalf("unexpected destination: %v", dst.TaskIDs)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("board invalid after move: %v", err)
	}
}

func TestMoveTaskIdempotentReapplication(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo := b.ColumnOrder[0]
	for _, id := range []string{"a", "b", "c"} {
		if _, err := b.PlaceTask(todo, id); err != nil {
			t.Fatalf("place %s: %v", id, err)
		}
	}

	if _, _, err := b.MoveTask("c", todo, todo, 2, 0); err != nil {
		t.Fatalf("first move: %v", err)
	}
	col, _ := b.Column(todo)
	first := append([]string(nil), col.TaskIDs...)

	if _, _, err := b.MoveTask("c", todo, todo, 0, 0); err != nil {
		t.Fatalf("second move: %v", err)
	}
	col, _ = b.Column(todo)
	if !reflect.DeepEqual(col.TaskIDs, first) {
		t.Fatalf("re-applied move changed order: %v vs %v", col.TaskIDs, first)
	}
}

func TestMoveTaskClampsDestIndex(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo, done := b.ColumnOrder[0], b.ColumnOrder[2]
	if _, err := b.PlaceTask(todo, "t1"); err != nil {
		t.Fatalf("place: %v", err)
	}

	at, _, err := b.MoveTask("t1", todo, done, 0, 99)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if at != 0 {
		t.Fatalf("expected clamp to 0, got %d", at)
	}
}

func TestMoveTaskReportsIndexDrift(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo, done := b.ColumnOrder[0], b.ColumnOrder[2]
	for _, id := range []string{"a", "b"} {
		if _, err := b.PlaceTask(todo, id); err != nil {
			t.Fatalf("place %s: %v", id, err)
		}
	}

	// Caller claims "b" sits at index 0, but it is at index 1.
	at, drifted, err := b.MoveTask("b", todo, done, 0, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !drifted {
		t.Fatal("expected drift to be reported")
	}
	if at != 0 {
		t.Fatalf("unexpected insert index %d", at)
	}
	src, _ := b.Column(todo)
	if !reflect.DeepEqual(src.TaskIDs, []string{"a"}) {
		t.Fatalf("wrong element removed: %v", src.TaskIDs)
	}
}

func TestMoveTaskMissingFromSource(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo, done := b.ColumnOrder[0], b.ColumnOrder[2]
	if _, _, err := b.MoveTask("ghost", todo, done, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveColumnReturnsOrphanedTasks(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo := b.ColumnOrder[0]
	for _, id := range []string{"a", "b"} {
		if _, err := b.PlaceTask(todo, id); err != nil {
			t.Fatalf("place %s: %v", id, err)
		}
	}

	orphaned, err := b.RemoveColumn(todo)
	if err != nil {
		t.Fatalf("remove column: %v", err)
	}
	if !reflect.DeepEqual(orphaned, []string{"a", "b"}) {
		t.Fatalf("unexpected orphans: %v", orphaned)
	}
	if len(b.Columns) != 2 || len(b.ColumnOrder) != 2 {
		t.Fatalf("column not removed: %v", b.ColumnOrder)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("board invalid after removal: %v", err)
	}
	if _, err := b.RemoveColumn("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveTaskByID(t *testing.T) {
	b := DefaultBoard("p1", "b")
	todo := b.ColumnOrder[0]
	for _, id := range []string{"a", "b", "c"} {
		if _, err := b.PlaceTask(todo, id); err != nil {
			t.Fatalf("place %s: %v", id, err)
		}
	}

	if err := b.RemoveTask("b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	col, _ := b.Column(todo)
	if !reflect.DeepEqual(col.TaskIDs, []string{"a", "c"}) {
		t.Fatalf("unexpected remaining tasks: %v", col.TaskIDs)
	}
	if err := b.RemoveTask("b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateDetectsDoubleMembership(t *testing.T) {
	b := DefaultBoard("p1", "b")
	b.Columns[0].TaskIDs = []string{"t1"}
	b.Columns[1].TaskIDs = []string{"t1"}
	if err := b.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvariantsUnderMutationSequence(t *testing.T) {
	b := DefaultBoard("p1", "b")
	extra := mustAddColumn(t, b, "Review")
	todo := b.ColumnOrder[0]
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		if _, err := b.PlaceTask(todo, id); err != nil {
			t.Fatalf("place %s: %v", id, err)
		}
	}
	if _, _, err := b.MoveTask("t2", todo, extra.ID, 1, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := b.ReorderColumns([]string{b.ColumnOrder[3], b.ColumnOrder[0], b.ColumnOrder[2], b.ColumnOrder[1]}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if _, err := b.RemoveColumn(extra.ID); err != nil {
		t.Fatalf("remove column: %v", err)
	}
	if err := b.RemoveTask("t4"); err != nil {
		t.Fatalf("remove task: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}
