package storage

import (
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// Nested structures (columns, members, labels) are JSON-encoded into string
// properties so each aggregate stays a single table entity and every write to
// it is atomic.

type userEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Email string `json:"Email,omitempty"`
}

type projectEntity struct {
	aztables.Entity
	Name        string `json:"Name"`
	Description string `json:"Description,omitempty"`
	OwnerID     string `json:"OwnerID"`
	Members     string `json:"Members"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type boardEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	ProjectID   string `json:"ProjectID"`
	Columns     string `json:"Columns"`
	ColumnOrder string `json:"ColumnOrder"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description,omitempty"`
	BoardID     string `json:"BoardID"`
	ColumnID    string `json:"ColumnID"`
	Order       int    `json:"Order"`
	AssignedTo  string `json:"AssignedTo,omitempty"`
	DueDate     string `json:"DueDate,omitempty"`
	Labels      string `json:"Labels,omitempty"`
	CreatedBy   string `json:"CreatedBy"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type commentEntity struct {
	aztables.Entity
	TaskID    string `json:"TaskID"`
	Author    string `json:"Author"`
	Content   string `json:"Content"`
	Mentions  string `json:"Mentions,omitempty"`
	CreatedAt string `json:"CreatedAt"`
	UpdatedAt string `json:"UpdatedAt"`
}

type activityEntity struct {
	aztables.Entity
	Actor      string `json:"Actor"`
	Action     string `json:"Action"`
	EntityType string `json:"EntityType"`
	EntityID   string `json:"EntityID"`
	ProjectID  string `json:"ProjectID"`
	BoardID    string `json:"BoardID,omitempty"`
	Payload    string `json:"Payload,omitempty"`
	CreatedAt  string `json:"CreatedAt"`
}

type notificationEntity struct {
	aztables.Entity
	Sender     string `json:"Sender,omitempty"`
	Type       string `json:"Type"`
	Message    string `json:"Message"`
	EntityType string `json:"EntityType"`
	EntityID   string `json:"EntityID"`
	ProjectID  string `json:"ProjectID,omitempty"`
	Read       bool   `json:"Read"`
	CreatedAt  string `json:"CreatedAt"`
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func encodeProject(p *domain.Project) projectEntity {
	return projectEntity{
		Entity:      aztables.Entity{PartitionKey: p.ID, RowKey: p.ID},
		Name:        p.Name,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		Members:     encodeJSON(p.Members),
		CreatedAt:   encodeTime(p.CreatedAt),
		UpdatedAt:   encodeTime(p.UpdatedAt),
	}
}

func decodeProject(data []byte) (*domain.Project, error) {
	var ent projectEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	p := &domain.Project{
		ID:          ent.RowKey,
		Name:        ent.Name,
		Description: ent.Description,
		OwnerID:     ent.OwnerID,
		Members:     []domain.Member{},
		CreatedAt:   decodeTime(ent.CreatedAt),
		UpdatedAt:   decodeTime(ent.UpdatedAt),
	}
	if ent.Members != "" {
		if err := json.Unmarshal([]byte(ent.Members), &p.Members); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func encodeBoard(b *domain.Board) boardEntity {
	return boardEntity{
		Entity:      aztables.Entity{PartitionKey: b.ID, RowKey: b.ID},
		Title:       b.Title,
		Description: b.Description,
		ProjectID:   b.ProjectID,
		Columns:     encodeJSON(b.Columns),
		ColumnOrder: encodeJSON(b.ColumnOrder),
		CreatedAt:   encodeTime(b.CreatedAt),
		UpdatedAt:   encodeTime(b.UpdatedAt),
	}
}

func decodeBoard(data []byte) (*domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	b := &domain.Board{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		ProjectID:   ent.ProjectID,
		Columns:     []domain.Column{},
		ColumnOrder: []string{},
		CreatedAt:   decodeTime(ent.CreatedAt),
		UpdatedAt:   decodeTime(ent.UpdatedAt),
	}
	if ent.Columns != "" {
		if err := json.Unmarshal([]byte(ent.Columns), &b.Columns); err != nil {
			return nil, err
		}
	}
	if ent.ColumnOrder != "" {
		if err := json.Unmarshal([]byte(ent.ColumnOrder), &b.ColumnOrder); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func encodeTask(t *domain.Task) taskEntity {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.ID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		BoardID:     t.BoardID,
		ColumnID:    t.ColumnID,
		Order:       t.Order,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   encodeTime(t.CreatedAt),
		UpdatedAt:   encodeTime(t.UpdatedAt),
	}
	if len(t.AssignedTo) > 0 {
		ent.AssignedTo = encodeJSON(t.AssignedTo)
	}
	if len(t.Labels) > 0 {
		ent.Labels = encodeJSON(t.Labels)
	}
	if t.DueDate != nil {
		ent.DueDate = encodeTime(*t.DueDate)
	}
	return ent
}

func decodeTask(data []byte) (*domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	t := &domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		BoardID:     ent.BoardID,
		ColumnID:    ent.ColumnID,
		Order:       ent.Order,
		CreatedBy:   ent.CreatedBy,
		CreatedAt:   decodeTime(ent.CreatedAt),
		UpdatedAt:   decodeTime(ent.UpdatedAt),
	}
	if ent.AssignedTo != "" {
		if err := json.Unmarshal([]byte(ent.AssignedTo), &t.AssignedTo); err != nil {
			return nil, err
		}
	}
	if ent.Labels != "" {
		if err := json.Unmarshal([]byte(ent.Labels), &t.Labels); err != nil {
			return nil, err
		}
	}
	if ent.DueDate != "" {
		due := decodeTime(ent.DueDate)
		t.DueDate = &due
	}
	return t, nil
}

func encodeComment(c *domain.Comment) commentEntity {
	ent := commentEntity{
		Entity:    aztables.Entity{PartitionKey: c.ID, RowKey: c.ID},
		TaskID:    c.TaskID,
		Author:    c.Author,
		Content:   c.Content,
		CreatedAt: encodeTime(c.CreatedAt),
		UpdatedAt: encodeTime(c.UpdatedAt),
	}
	if len(c.Mentions) > 0 {
		ent.Mentions = encodeJSON(c.Mentions)
	}
	return ent
}

func decodeComment(data []byte) (*domain.Comment, error) {
	var ent commentEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	c := &domain.Comment{
		ID:        ent.RowKey,
		TaskID:    ent.TaskID,
		Author:    ent.Author,
		Content:   ent.Content,
		CreatedAt: decodeTime(ent.CreatedAt),
		UpdatedAt: decodeTime(ent.UpdatedAt),
	}
	if ent.Mentions != "" {
		if err := json.Unmarshal([]byte(ent.Mentions), &c.Mentions); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func encodeActivity(a *domain.Activity) activityEntity {
	return activityEntity{
		Entity:     aztables.Entity{PartitionKey: a.ProjectID, RowKey: a.ID},
		Actor:      a.Actor,
		Action:     a.Action,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		ProjectID:  a.ProjectID,
		BoardID:    a.BoardID,
		Payload:    string(a.Payload),
		CreatedAt:  encodeTime(a.CreatedAt),
	}
}

func decodeActivity(data []byte) (*domain.Activity, error) {
	var ent activityEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	a := &domain.Activity{
		ID:         ent.RowKey,
		Actor:      ent.Actor,
		Action:     ent.Action,
		EntityType: ent.EntityType,
		EntityID:   ent.EntityID,
		ProjectID:  ent.ProjectID,
		BoardID:    ent.BoardID,
		CreatedAt:  decodeTime(ent.CreatedAt),
	}
	if ent.Payload != "" {
		a.Payload = json.RawMessage(ent.Payload)
	}
	return a, nil
}

func encodeNotification(n *domain.Notification) notificationEntity {
	return notificationEntity{
		Entity:     aztables.Entity{PartitionKey: n.Recipient, RowKey: n.ID},
		Sender:     n.Sender,
		Type:       n.Type,
		Message:    n.Message,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		ProjectID:  n.ProjectID,
		Read:       n.Read,
		CreatedAt:  encodeTime(n.CreatedAt),
	}
}

func decodeNotification(data []byte) (*domain.Notification, error) {
	var ent notificationEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	return &domain.Notification{
		ID:         ent.RowKey,
		Recipient:  ent.PartitionKey,
		Sender:     ent.Sender,
		Type:       ent.Type,
		Message:    ent.Message,
		EntityType: ent.EntityType,
		EntityID:   ent.EntityID,
		ProjectID:  ent.ProjectID,
		Read:       ent.Read,
		CreatedAt:  decodeTime(ent.CreatedAt),
	}, nil
}
