package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/bytedance/sonic"

	"kanban-api/domain"
)

func TestCreateTaskAppendsToColumn(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")

	h, bc := newTestHandlers(store, "u1")
	for i, title := range []string{"first", "second"} {
		c, rec := jsonCtx(t, http.MethodPost, "/api/tasks",
			`{"title":"`+title+`","boardId":"`+b.ID+`","columnId":"`+b.ColumnOrder[0]+`"}`)
		if err := h.createTask(c); err != nil {
			t.Fatalf("create task: %v", err)
		}
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
		}
		var task domain.Task
		if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if task.Order != i {
			t.Fatalf("expected order %d, got %d", i, task.Order)
		}
		if task.ColumnID != b.ColumnOrder[0] {
			t.Fatalf("unexpected column: %q", task.ColumnID)
		}
	}

	board, _, _ := store.GetBoard(context.Background(), b.ID)
	if got := len(board.Columns[0].TaskIDs); got != 2 {
		t.Fatalf("expected 2 placed tasks, got %d", got)
	}
	if mut, ok := bc.last(); !ok || mut.Action != domain.MutTaskCreated {
		t.Fatalf("unexpected broadcast: %#v", mut)
	}
}

func TestCreateTaskUnknownColumn(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPost, "/api/tasks",
		`{"title":"lost","boardId":"`+b.ID+`","columnId":"nope"}`)
	if err := h.createTask(c); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
	tasks, _ := store.ListTasksByBoard(context.Background(), b.ID)
	if len(tasks) != 0 {
		t.Fatalf("task should not be stored: %#v", tasks)
	}
}

func TestCreateTaskNotifiesAssignees(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPost, "/api/tasks",
		`{"title":"review","boardId":"`+b.ID+`","columnId":"`+b.ColumnOrder[0]+`","assignedTo":["u2","u1"]}`)
	if err := h.createTask(c); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}

	h.Effects.Close()
	notes, _ := store.ListNotificationsFor(context.Background(), "u2")
	if len(notes) != 1 || notes[0].Type != domain.NotifyAssigned {
		t.Fatalf("expected assignment notification, got %#v", notes)
	}
	// The actor never notifies themselves.
	own, _ := store.ListNotificationsFor(context.Background(), "u1")
	if len(own) != 0 {
		t.Fatalf("unexpected self notification: %#v", own)
	}
}

func TestMoveTaskAcrossColumns(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")
	other := seedTask(t, store, b, b.ColumnOrder[1], "parked", "u1")

	h, bc := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID+"/move",
		`{"columnId":"`+b.ColumnOrder[1]+`","order":0}`, "id", task.ID)
	if err := h.moveTask(c); err != nil {
		t.Fatalf("move task: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp moveTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Task.ColumnID != b.ColumnOrder[1] || resp.Task.Order != 0 {
		t.Fatalf("unexpected placement: %#v", resp.Task)
	}

	board, _, _ := store.GetBoard(context.Background(), b.ID)
	if len(board.Columns[0].TaskIDs) != 0 {
		t.Fatalf("source column not emptied: %#v", board.Columns[0].TaskIDs)
	}
	if got := board.Columns[1].TaskIDs; len(got) != 2 || got[0] != task.ID || got[1] != other.ID {
		t.Fatalf("unexpected destination order: %v", got)
	}
	if err := board.Validate(); err != nil {
		t.Fatalf("board invariant broken: %v", err)
	}

	mut, ok := bc.last()
	if !ok || mut.Action != domain.MutTaskMoved {
		t.Fatalf("unexpected broadcast: %#v", mut)
	}
	if mut.SourceColumnID != b.ColumnOrder[0] || mut.DestColumnID != b.ColumnOrder[1] || mut.DestIndex != 0 {
		t.Fatalf("bad reconciliation fields: %#v", mut)
	}
}

func TestMoveTaskClampsDestIndex(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID+"/move",
		`{"columnId":"`+b.ColumnOrder[2]+`","order":99}`, "id", task.ID)
	if err := h.moveTask(c); err != nil {
		t.Fatalf("move task: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp moveTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Task.Order != 0 {
		t.Fatalf("expected clamp to 0, got %d", resp.Task.Order)
	}
}

func TestMoveTaskConflictOnStaleSourceClaim(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")

	// The task actually lives in column 0; the caller claims column 1.
	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID+"/move",
		`{"columnId":"`+b.ColumnOrder[2]+`","order":0,"sourceColumnId":"`+b.ColumnOrder[1]+`"}`, "id", task.ID)
	if err := h.moveTask(c); err != nil {
		t.Fatalf("move task: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d: %s", rec.Code, rec.Body.String())
	}
	board, _, _ := store.GetBoard(context.Background(), b.ID)
	if got := board.Columns[0].TaskIDs; len(got) != 1 || got[0] != task.ID {
		t.Fatalf("board changed on conflicting move: %#v", got)
	}
}

func TestMoveTaskLoserOfRetryRaceGetsConflict(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")
	store.boardConflicts = boardWriteAttempts

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID+"/move",
		`{"columnId":"`+b.ColumnOrder[1]+`","order":0}`, "id", task.ID)
	if err := h.moveTask(c); err != nil {
		t.Fatalf("move task: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMoveTaskSameColumnIsIdempotent(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")
	seedTask(t, store, b, b.ColumnOrder[0], "other", "u1")

	h, _ := newTestHandlers(store, "u1")
	for i := 0; i < 2; i++ {
		c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID+"/move",
			`{"columnId":"`+b.ColumnOrder[0]+`","order":1}`, "id", task.ID)
		if err := h.moveTask(c); err != nil {
			t.Fatalf("move task: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
		}
	}
	board, _, _ := store.GetBoard(context.Background(), b.ID)
	if got := board.Columns[0].TaskIDs; len(got) != 2 || got[1] != task.ID {
		t.Fatalf("repeat move changed placement: %v", got)
	}
}

func TestUpdateTaskKeepsColumnMembership(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")
	before, _, _ := store.GetBoard(context.Background(), b.ID)

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/tasks/"+task.ID,
		`{"title":"ship it","assignedTo":["u2"]}`, "id", task.ID)
	if err := h.updateTask(c); err != nil {
		t.Fatalf("update task: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var updated domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if updated.Title != "ship it" {
		t.Fatalf("title not updated: %q", updated.Title)
	}

	after, _, _ := store.GetBoard(context.Background(), b.ID)
	if len(after.Columns[0].TaskIDs) != len(before.Columns[0].TaskIDs) {
		t.Fatal("field update must not touch column membership")
	}

	h.Effects.Close()
	notes, _ := store.ListNotificationsFor(context.Background(), "u2")
	if len(notes) != 1 || notes[0].Type != domain.NotifyAssigned {
		t.Fatalf("expected assignment notification, got %#v", notes)
	}
}

func TestDeleteTaskCleansUp(t *testing.T) {
	store := newFakeStore()
	_, b := seedProject(t, store, "u1")
	task := seedTask(t, store, b, b.ColumnOrder[0], "ship", "u1")
	ctx := context.Background()
	if err := store.InsertComment(ctx, &domain.Comment{ID: "c1", TaskID: task.ID, Author: "u1", Content: "wip"}); err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	h, bc := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodDelete, "/api/tasks/"+task.ID, "", "id", task.ID)
	if err := h.deleteTask(c); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := store.GetTask(ctx, task.ID); err == nil {
		t.Fatal("task still present")
	}
	if _, err := store.GetComment(ctx, "c1"); err == nil {
		t.Fatal("comment still present")
	}
	board, _, _ := store.GetBoard(ctx, b.ID)
	if len(board.Columns[0].TaskIDs) != 0 {
		t.Fatalf("task still on board: %#v", board.Columns[0].TaskIDs)
	}
	if mut, ok := bc.last(); !ok || mut.Action != domain.MutTaskDeleted {
		t.Fatalf("unexpected broadcast: %#v", mut)
	}
}
