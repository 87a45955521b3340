package api

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// fakeStore is an in-memory Storage with the same ETag semantics as the real
// one. boardConflicts makes the next N board writes fail with Conflict so the
// optimistic retry loop can be exercised.
type fakeStore struct {
	mu sync.Mutex

	users         map[string]domain.User
	projects      map[string]domain.Project
	boards        map[string]*domain.Board
	boardVersions map[string]int
	tasks         map[string]domain.Task
	comments      map[string]domain.Comment
	activities    []domain.Activity
	notifications []domain.Notification

	boardConflicts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]domain.User{},
		projects:      map[string]domain.Project{},
		boards:        map[string]*domain.Board{},
		boardVersions: map[string]int{},
		tasks:         map[string]domain.Task{},
		comments:      map[string]domain.Comment{},
	}
}

func clone[T any](src *T) *T {
	data, err := sonic.Marshal(src)
	if err != nil {
		panic(err)
	}
	dst := new(T)
	if err := sonic.Unmarshal(data, dst); err != nil {
		panic(err)
	}
	return dst
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, id)
}

func (f *fakeStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

func (f *fakeStore) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == name {
			found := u
			return &found, nil
		}
	}
	return nil, notFound("user named", name)
}

func (f *fakeStore) UpsertUser(ctx context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) InsertProject(ctx context.Context, p *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = *clone(p)
	return nil
}

func (f *fakeStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	return clone(&p), nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.ID]; !ok {
		return notFound("project", p.ID)
	}
	f.projects[p.ID] = *clone(p)
	return nil
}

func (f *fakeStore) ListProjectsFor(ctx context.Context, userID string) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if p.IsMember(userID) {
			out = append(out, *clone(&p))
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, id)
	return nil
}

func (f *fakeStore) InsertBoard(ctx context.Context, b *domain.Board) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = clone(b)
	f.boardVersions[b.ID] = 1
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, id string) (*domain.Board, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return nil, "", notFound("board", id)
	}
	return clone(b), strconv.Itoa(f.boardVersions[id]), nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, b *domain.Board, etag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[b.ID]; !ok {
		return notFound("board", b.ID)
	}
	if f.boardConflicts > 0 {
		f.boardConflicts--
		return fmt.Errorf("%w: simulated precondition failure", domain.ErrConflict)
	}
	if etag != "" && etag != strconv.Itoa(f.boardVersions[b.ID]) {
		return fmt.Errorf("%w: stale board etag", domain.ErrConflict)
	}
	f.boards[b.ID] = clone(b)
	f.boardVersions[b.ID]++
	return nil
}

func (f *fakeStore) ListBoardsByProject(ctx context.Context, projectID string) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Board
	for _, b := range f.boards {
		if b.ProjectID == projectID {
			out = append(out, *clone(b))
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.boards, id)
	delete(f.boardVersions, id)
	return nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = *clone(t)
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	return clone(&t), nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; !ok {
		return notFound("task", t.ID)
	}
	f.tasks[t.ID] = *clone(t)
	return nil
}

func (f *fakeStore) ListTasksByBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for _, t := range f.tasks {
		if t.BoardID == boardID {
			out = append(out, *clone(&t))
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) DeleteTasks(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.tasks, id)
	}
	return nil
}

func (f *fakeStore) DeleteTasksByBoard(ctx context.Context, boardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tasks {
		if t.BoardID == boardID {
			delete(f.tasks, id)
		}
	}
	return nil
}

func (f *fakeStore) InsertComment(ctx context.Context, c *domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = *clone(c)
	return nil
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, notFound("comment", id)
	}
	return clone(&c), nil
}

func (f *fakeStore) UpdateComment(ctx context.Context, c *domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[c.ID]; !ok {
		return notFound("comment", c.ID)
	}
	f.comments[c.ID] = *clone(c)
	return nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.comments, id)
	return nil
}

func (f *fakeStore) ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Comment
	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, *clone(&c))
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteCommentsByTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.comments {
		if c.TaskID == taskID {
			delete(f.comments, id)
		}
	}
	return nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, a *domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, *clone(a))
	return nil
}

func (f *fakeStore) ListActivitiesByProject(ctx context.Context, projectID string) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activity
	for _, a := range f.activities {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteActivitiesByProject(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.activities[:0]
	for _, a := range f.activities {
		if a.ProjectID != projectID {
			kept = append(kept, a)
		}
	}
	f.activities = kept
	return nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, *clone(n))
	return nil
}

func (f *fakeStore) ListNotificationsFor(ctx context.Context, recipient string) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, recipient, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].Recipient == recipient {
			f.notifications[i].Read = true
			return nil
		}
	}
	return notFound("notification", id)
}

func (f *fakeStore) DeleteNotificationsByProject(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.notifications[:0]
	for _, n := range f.notifications {
		if n.ProjectID != projectID {
			kept = append(kept, n)
		}
	}
	f.notifications = kept
	return nil
}

type fakeAuth struct {
	userID string
	err    error
}

func (a fakeAuth) UserIDFromAuthHeader(string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.userID, nil
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	mutations []domain.Mutation
	rooms     []string
	origins   []string
}

func (b *fakeBroadcaster) Broadcast(room, origin string, m domain.Mutation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
	b.origins = append(b.origins, origin)
	b.mutations = append(b.mutations, m)
}

func (b *fakeBroadcaster) last() (domain.Mutation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.mutations) == 0 {
		return domain.Mutation{}, false
	}
	return b.mutations[len(b.mutations)-1], true
}

// newTestHandlers wires a handlers value around a fake store for one caller.
func newTestHandlers(store *fakeStore, userID string) (*handlers, *fakeBroadcaster) {
	bc := &fakeBroadcaster{}
	logger := log.New()
	return &handlers{Deps{
		Store:     store,
		Auth:      fakeAuth{userID: userID},
		Effects:   NewRecorder(store, logger),
		Broadcast: bc,
		Logger:    logger,
	}}, bc
}
