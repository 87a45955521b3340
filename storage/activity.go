package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// InsertActivity appends an immutable audit record.
func (s *Storage) InsertActivity(ctx context.Context, a *domain.Activity) error {
	payload, err := json.Marshal(encodeActivity(a))
	if err != nil {
		return err
	}
	_, err = s.activities.AddEntity(ctx, payload, nil)
	return mapErr(err)
}

// ListActivitiesByProject returns the audit trail for a project.
func (s *Storage) ListActivitiesByProject(ctx context.Context, projectID string) ([]domain.Activity, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(projectID) + "'"
	activities := []domain.Activity{}
	err := s.listEntities(ctx, s.activities, filter, func(data []byte) error {
		a, err := decodeActivity(data)
		if err != nil {
			return err
		}
		activities = append(activities, *a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// DeleteActivitiesByProject purges the audit trail when its project goes away.
func (s *Storage) DeleteActivitiesByProject(ctx context.Context, projectID string) error {
	return s.deleteWhere(ctx, s.activities, "PartitionKey eq '"+escapeFilterValue(projectID)+"'")
}

// InsertNotification persists a notification and enqueues a delivery message
// for the external delivery worker. A failed enqueue does not fail the insert;
// the notification is still visible through the API.
func (s *Storage) InsertNotification(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(encodeNotification(n))
	if err != nil {
		return err
	}
	if _, err := s.notifications.AddEntity(ctx, payload, nil); err != nil {
		return mapErr(err)
	}
	if s.notifyQueue != nil {
		msg, err := json.Marshal(n)
		if err == nil {
			_, _ = s.notifyQueue.EnqueueMessage(ctx, string(msg), nil)
		}
	}
	return nil
}

// ListNotificationsFor returns all notifications addressed to the recipient.
func (s *Storage) ListNotificationsFor(ctx context.Context, recipient string) ([]domain.Notification, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(recipient) + "'"
	notifications := []domain.Notification{}
	err := s.listEntities(ctx, s.notifications, filter, func(data []byte) error {
		n, err := decodeNotification(data)
		if err != nil {
			return err
		}
		notifications = append(notifications, *n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag on a recipient's notification.
func (s *Storage) MarkNotificationRead(ctx context.Context, recipient, id string) error {
	resp, err := s.notifications.GetEntity(ctx, recipient, id, nil)
	if err != nil {
		return mapErr(err)
	}
	n, err := decodeNotification(resp.Value)
	if err != nil {
		return err
	}
	n.Read = true
	payload, err := json.Marshal(encodeNotification(n))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.notifications.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapErr(err)
}

// DeleteNotificationsByProject purges notifications referencing the project.
func (s *Storage) DeleteNotificationsByProject(ctx context.Context, projectID string) error {
	return s.deleteWhere(ctx, s.notifications, "ProjectID eq '"+escapeFilterValue(projectID)+"'")
}
