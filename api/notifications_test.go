package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/bytedance/sonic"

	"kanban-api/domain"
)

func TestListAndReadNotifications(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	for _, n := range []domain.Notification{
		{ID: "n1", Recipient: "u1", Type: domain.NotifyAssigned},
		{ID: "n2", Recipient: "u1", Type: domain.NotifyMentioned},
		{ID: "n3", Recipient: "u2", Type: domain.NotifyCommented},
	} {
		n := n
		if err := store.InsertNotification(ctx, &n); err != nil {
			t.Fatalf("insert notification: %v", err)
		}
	}

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodGet, "/api/notifications", "")
	if err := h.listNotifications(c); err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	var notes []domain.Notification
	if err := sonic.Unmarshal(rec.Body.Bytes(), &notes); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notes))
	}

	c, rec = jsonCtx(t, http.MethodPut, "/api/notifications/n1/read", "", "id", "n1")
	if err := h.readNotification(c); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 got %d", rec.Code)
	}
	after, _ := store.ListNotificationsFor(ctx, "u1")
	for _, n := range after {
		if n.ID == "n1" && !n.Read {
			t.Fatal("notification not marked read")
		}
	}
}

func TestReadNotificationScopedToRecipient(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	n := domain.Notification{ID: "n1", Recipient: "u2", Type: domain.NotifyAssigned}
	if err := store.InsertNotification(ctx, &n); err != nil {
		t.Fatalf("insert notification: %v", err)
	}

	h, _ := newTestHandlers(store, "u1")
	c, rec := jsonCtx(t, http.MethodPut, "/api/notifications/n1/read", "", "id", "n1")
	if err := h.readNotification(c); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}
