package state

import (
	"fmt"
	"sync"
	"time"

	"politerm/internal/protocol"
)

// Store maps task ids to their state for the lifetime of a run. Entries are
// never evicted. All mutation goes through Update.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*TaskState
	order []string
	now   func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		tasks: make(map[string]*TaskState),
		now:   now,
	}
}

// GetOrCreate returns the task, inserting a fresh active entry that waits
// for a Planner plan when the id is new.
func (s *Store) GetOrCreate(taskID string) TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[taskID]; ok {
		return task.Clone()
	}
	now := s.now().UTC()
	task := &TaskState{
		TaskID:         taskID,
		ExpectedSender: protocol.Planner,
		ExpectedKind:   protocol.KindPlan,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tasks[taskID] = task
	s.order = append(s.order, taskID)
	return task.Clone()
}

// Update applies fn to a working copy of the task and stores it when fn
// succeeds. Finished tasks are immutable and the round may only stay or grow
// by one per update.
func (s *Store) Update(taskID string, fn func(*TaskState) error) (TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[taskID]
	if !ok {
		return TaskState{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if current.Status.Terminal() {
		return current.Clone(), fmt.Errorf("%w: %s is %s", ErrTerminal, taskID, current.Status)
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return current.Clone(), err
	}
	if delta := working.Round - current.Round; delta != 0 && delta != 1 {
		return current.Clone(), fmt.Errorf("%w: %s %d -> %d", ErrRoundSkip, taskID, current.Round, working.Round)
	}
	working.TaskID = current.TaskID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = s.now().UTC()
	s.tasks[taskID] = &working
	return working.Clone(), nil
}

func (s *Store) Snapshot(taskID string) (TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return TaskState{}, false
	}
	return task.Clone(), true
}

// List returns every task in creation order.
func (s *Store) List() []TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]TaskState, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id].Clone())
	}
	return tasks
}

// Pending returns the ids of tasks that have not finished.
func (s *Store) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.order {
		if !s.tasks[id].Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}
