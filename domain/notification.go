package domain

import "time"

// Notification type kinds.
const (
	NotifyAssigned    = "assigned"
	NotifyMentioned   = "mentioned"
	NotifyCommented   = "commented"
	NotifyMemberAdded = "member-added"
)

// Notification is delivered to a single recipient as a side effect of a
// write. Read is the only mutable field.
type Notification struct {
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Sender     string    `json:"sender,omitempty"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	ProjectID  string    `json:"projectId,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}
