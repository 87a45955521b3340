package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"kanban-api/domain"
)

// Tables holds the per-collection table names.
type Tables struct {
	Users         string
	Projects      string
	Boards        string
	Tasks         string
	Comments      string
	Activities    string
	Notifications string
}

// Storage provides access to the underlying document collections and the
// notification delivery queue.
type Storage struct {
	users         *aztables.Client
	projects      *aztables.Client
	boards        *aztables.Client
	tasks         *aztables.Client
	comments      *aztables.Client
	activities    *aztables.Client
	notifications *aztables.Client
	notifyQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, notifyQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, notifyQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		users:         svc.NewClient(tables.Users),
		projects:      svc.NewClient(tables.Projects),
		boards:        svc.NewClient(tables.Boards),
		tasks:         svc.NewClient(tables.Tasks),
		comments:      svc.NewClient(tables.Comments),
		activities:    svc.NewClient(tables.Activities),
		notifications: svc.NewClient(tables.Notifications),
		notifyQueue:   nq,
	}, nil
}

// mapErr translates transport-level failures into the domain taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return fmt.Errorf("%s: %w", respErr.ErrorCode, domain.ErrNotFound)
		case 409:
			return fmt.Errorf("%s: %w", respErr.ErrorCode, domain.ErrConflict)
		case 412:
			return fmt.Errorf("%s: %w", respErr.ErrorCode, domain.ErrConflict)
		}
	}
	return err
}

func (s *Storage) listEntities(ctx context.Context, client *aztables.Client, filter string, visit func([]byte) error) error {
	var opts *aztables.ListEntitiesOptions
	if filter != "" {
		opts = &aztables.ListEntitiesOptions{Filter: &filter}
	}
	pager := client.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return mapErr(err)
		}
		for _, e := range resp.Entities {
			if err := visit(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Storage) deleteWhere(ctx context.Context, client *aztables.Client, filter string) error {
	type key struct{ pk, rk string }
	var keys []key
	err := s.listEntities(ctx, client, filter, func(data []byte) error {
		var ent aztables.Entity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		keys = append(keys, key{ent.PartitionKey, ent.RowKey})
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := client.DeleteEntity(ctx, k.pk, k.rk, nil); err != nil {
			if errors.Is(mapErr(err), domain.ErrNotFound) {
				continue
			}
			return mapErr(err)
		}
	}
	return nil
}

// GetUser retrieves a user record.
func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.users.GetEntity(ctx, id, id, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &domain.User{ID: ent.RowKey, Name: ent.Name, Email: ent.Email}, nil
}

// FindUserByName resolves a mention token to a user record. Returns
// ErrNotFound when no user carries the name.
func (s *Storage) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	filter := "Name eq '" + escapeFilterValue(name) + "'"
	var found *domain.User
	err := s.listEntities(ctx, s.users, filter, func(data []byte) error {
		if found != nil {
			return nil
		}
		var ent userEntity
		if err := json.Unmarshal(data, &ent); err != nil {
			return err
		}
		found = &domain.User{ID: ent.RowKey, Name: ent.Name, Email: ent.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: user named %q", domain.ErrNotFound, name)
	}
	return found, nil
}

// UpsertUser creates or replaces a user record.
func (s *Storage) UpsertUser(ctx context.Context, u *domain.User) error {
	ent := userEntity{Entity: aztables.Entity{PartitionKey: u.ID, RowKey: u.ID}, Name: u.Name, Email: u.Email}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.users.UpsertEntity(ctx, payload, nil)
	return mapErr(err)
}

// InsertProject persists a new project.
func (s *Storage) InsertProject(ctx context.Context, p *domain.Project) error {
	payload, err := json.Marshal(encodeProject(p))
	if err != nil {
		return err
	}
	_, err = s.projects.AddEntity(ctx, payload, nil)
	return mapErr(err)
}

// GetProject retrieves a project by id.
func (s *Storage) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	resp, err := s.projects.GetEntity(ctx, id, id, nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeProject(resp.Value)
}

// UpdateProject replaces the stored project document.
func (s *Storage) UpdateProject(ctx context.Context, p *domain.Project) error {
	p.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(encodeProject(p))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.projects.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapErr(err)
}

// ListProjectsFor returns every project where userID appears in the members
// list. Membership lives inside the project document, so this scans the
// collection and filters in memory.
func (s *Storage) ListProjectsFor(ctx context.Context, userID string) ([]domain.Project, error) {
	projects := []domain.Project{}
	err := s.listEntities(ctx, s.projects, "", func(data []byte) error {
		p, err := decodeProject(data)
		if err != nil {
			return err
		}
		if p.IsMember(userID) {
			projects = append(projects, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// DeleteProject removes the project document only; callers cascade children
// through DeleteProjectCascade.
func (s *Storage) DeleteProject(ctx context.Context, id string) error {
	_, err := s.projects.DeleteEntity(ctx, id, id, nil)
	return mapErr(err)
}

func escapeFilterValue(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, v[i])
	}
	return string(out)
}
