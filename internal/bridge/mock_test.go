package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/status"
	"github.com/MMOzz/OSTKanBridge/internal/store"
	"github.com/MMOzz/OSTKanBridge/internal/syncerr"
)

// mockStore is an in-memory store.Store with the same uniqueness rules as
// the SQL backends.
type mockStore struct {
	mu       sync.Mutex
	mappings map[int64]*model.Mapping
	rules    map[int64]*model.RoutingRule
	events   []*model.SyncEvent

	// updateErr, when set, is returned by UpdateState.
	updateErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		mappings: make(map[int64]*model.Mapping),
		rules:    make(map[int64]*model.RoutingRule),
	}
}

func (s *mockStore) GetBySource(_ context.Context, id int64) (*model.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *mockStore) GetByTarget(_ context.Context, id int64) (*model.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.TargetID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) InsertIfAbsent(_ context.Context, m *model.Mapping) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.SourceID]; ok {
		return false, nil
	}
	for _, existing := range s.mappings {
		if existing.TargetID == m.TargetID {
			return false, nil
		}
	}
	cp := *m
	cp.CreatedAt = time.Now().UTC()
	cp.LastSyncedAt = cp.CreatedAt
	s.mappings[m.SourceID] = &cp
	return true, nil
}

func (s *mockStore) UpdateState(_ context.Context, id int64, sourceState, targetState string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	m, ok := s.mappings[id]
	if !ok {
		return store.ErrNotFound
	}
	m.LastSourceState = sourceState
	m.LastTargetState = targetState
	m.LastSyncedAt = time.Now().UTC()
	return nil
}

func (s *mockStore) ListMappings(context.Context) ([]*model.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (s *mockStore) DeleteMapping(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.mappings, id)
	return nil
}

func (s *mockStore) UpsertRoutingRule(_ context.Context, r *model.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rules[r.CategoryID] = &cp
	return nil
}

func (s *mockStore) GetRoutingRule(_ context.Context, id int64) (*model.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *mockStore) ListRoutingRules(context.Context) ([]*model.RoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.RoutingRule
	for _, r := range s.rules {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *mockStore) DeleteRoutingRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, id)
	return nil
}

func (s *mockStore) AppendEvent(_ context.Context, ev *model.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.ID = int64(len(s.events) + 1)
	ev.CreatedAt = time.Now().UTC()
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

func (s *mockStore) ListEvents(_ context.Context, limit int) ([]*model.SyncEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.SyncEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *mockStore) Ping(context.Context) error { return nil }
func (s *mockStore) Close() error               { return nil }

// kinds returns the kinds of all recorded events, oldest first.
func (s *mockStore) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func (s *mockStore) count(kind string) int {
	n := 0
	for _, k := range s.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (s *mockStore) details(kind string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev.Detail)
		}
	}
	return out
}

func (s *mockStore) mapping(id int64) *model.Mapping {
	m, err := s.GetBySource(context.Background(), id)
	if err != nil {
		return nil
	}
	return m
}

// mockSource is an in-memory osTicket.
type mockSource struct {
	mu       sync.Mutex
	entities map[int64]*model.SourceEntity
	changed  []int64 // ids reported by ListChangedSince
	attrs    map[int64]map[string]string
	notes    []model.NoteTarget

	setStatusCalls int
	listErr        error
	setStatusErr   error
	noteErr        error
	attrErr        error
}

func newMockSource(entities ...model.SourceEntity) *mockSource {
	s := &mockSource{
		entities: make(map[int64]*model.SourceEntity),
		attrs:    make(map[int64]map[string]string),
	}
	for i := range entities {
		e := entities[i]
		s.entities[e.ID] = &e
	}
	return s
}

func (s *mockSource) ListEligibleNew(_ context.Context, exclude []int64, limit int) ([]model.SourceEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []model.SourceEntity
	for _, e := range s.entities {
		if !skip[e.ID] {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockSource) ListChangedSince(_ context.Context, ids []int64, _ time.Duration) ([]model.SourceEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.SourceEntity
	for _, id := range s.changed {
		if e, ok := s.entities[id]; ok && want[id] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *mockSource) GetAttribute(_ context.Context, id int64, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[id][name], nil
}

func (s *mockSource) SetAttribute(_ context.Context, id int64, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrErr != nil {
		return s.attrErr
	}
	if s.attrs[id] == nil {
		s.attrs[id] = make(map[string]string)
	}
	s.attrs[id][name] = value
	return nil
}

func (s *mockSource) AddNote(_ context.Context, target model.NoteTarget, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteErr != nil {
		return s.noteErr
	}
	s.notes = append(s.notes, target)
	return nil
}

func (s *mockSource) SetStatus(_ context.Context, id int64, st string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusCalls++
	if s.setStatusErr != nil {
		return s.setStatusErr
	}
	e, ok := s.entities[id]
	if !ok {
		return syncerr.LookupMissf("mock.SetStatus", "task %d not found", id)
	}
	e.Status = st
	return nil
}

func (s *mockSource) GetStatus(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return "", syncerr.LookupMissf("mock.GetStatus", "task %d not found", id)
	}
	return e.Status, nil
}

func (s *mockSource) ListCategories(context.Context) ([]model.Category, error) {
	return nil, nil
}

func (s *mockSource) setStatus(id int64, st string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[id].Status = st
	s.changed = append(s.changed, id)
}

func (s *mockSource) statusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusCalls
}

// mockTarget is an in-memory Kanboard with one board layout shared by all
// projects.
type mockTarget struct {
	mu       sync.Mutex
	columns  []model.Column
	tasks    map[int64]*model.TargetTask
	nextID   int64
	moves    []int64 // column ids passed to MoveToColumn
	comments map[int64]int

	createErr  error
	moveErr    error
	commentErr error
	getErr     error
}

func newMockTarget() *mockTarget {
	return &mockTarget{
		columns: []model.Column{
			{ID: 1, Name: "Backlog"},
			{ID: 2, Name: "Ready"},
			{ID: 3, Name: "Work in progress"},
			{ID: 4, Name: "Done"},
		},
		tasks:    make(map[int64]*model.TargetTask),
		nextID:   100,
		comments: make(map[int64]int),
	}
}

func (t *mockTarget) CreateTask(_ context.Context, containerID int64, title, _ string, columnID int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.createErr != nil {
		return 0, t.createErr
	}
	t.nextID++
	if columnID == 0 {
		columnID = t.columns[0].ID
	}
	t.tasks[t.nextID] = &model.TargetTask{ID: t.nextID, ContainerID: containerID, ColumnID: columnID, Title: title}
	return t.nextID, nil
}

func (t *mockTarget) GetTask(_ context.Context, id int64) (*model.TargetTask, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getErr != nil {
		return nil, t.getErr
	}
	task, ok := t.tasks[id]
	if !ok {
		return nil, syncerr.LookupMissf("mock.GetTask", "task %d not found", id)
	}
	cp := *task
	return &cp, nil
}

func (t *mockTarget) MoveToColumn(_ context.Context, taskID, _, columnID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.moveErr != nil {
		return t.moveErr
	}
	task, ok := t.tasks[taskID]
	if !ok {
		return syncerr.Remotef("mock.MoveToColumn", "task %d not found", taskID)
	}
	task.ColumnID = columnID
	t.moves = append(t.moves, columnID)
	return nil
}

func (t *mockTarget) AddComment(_ context.Context, taskID int64, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.commentErr != nil {
		return t.commentErr
	}
	t.comments[taskID]++
	return nil
}

func (t *mockTarget) ListColumns(context.Context, int64) ([]model.Column, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Column(nil), t.columns...), nil
}

func (t *mockTarget) ListContainers(context.Context) ([]model.Container, error) {
	return []model.Container{{ID: 1, Name: "Support"}, {ID: 9, Name: "Network"}}, nil
}

// moveTo simulates a user dragging a card.
func (t *mockTarget) moveTo(taskID, columnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[taskID].ColumnID = columnID
}

func (t *mockTarget) taskCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

func (t *mockTarget) moveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.moves)
}

var errBoom = errors.New("boom")

type fixture struct {
	store  *mockStore
	source *mockSource
	target *mockTarget
	bridge *Bridge
}

func newFixture(t *testing.T, entities ...model.SourceEntity) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMockStore(),
		source: newMockSource(entities...),
		target: newMockTarget(),
	}
	f.bridge = f.newBridge(t)
	return f
}

// newBridge builds another Bridge over the same collaborators.
func (f *fixture) newBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := New(Deps{
		Store:       f.store,
		Source:      f.source,
		Target:      f.target,
		Translation: status.Default(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Options{
		DefaultContainer: 1,
		SourceBaseURL:    "https://helpdesk.example.com/",
		TargetBaseURL:    "https://board.example.com",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func entity(id int64, number, st string) model.SourceEntity {
	return model.SourceEntity{
		ID:        id,
		Number:    number,
		Title:     "Printer on fire",
		Status:    st,
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
	}
}
