package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/docuchat/rag-server/internal/pkg/errors"
)

// TaskStatus is the lifecycle state of an upload task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task tracks the progress of one uploaded document.
type Task struct {
	ID            string     `json:"task_id"`
	Filename      string     `json:"file_name"`
	DocID         string     `json:"doc_id"`
	Status        TaskStatus `json:"status"`
	ChunksCreated int        `json:"chunks_created"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TaskStore is an in-memory store of upload tasks.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
	}
}

// Create registers a new pending task for an uploaded file.
func (s *TaskStore) Create(filename, docID string) Task {
	now := time.Now().UTC()
	task := &Task{
		ID:        newTaskID(),
		Filename:  filename,
		DocID:     docID,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	return *task
}

// Get returns a task by ID.
func (s *TaskStore) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, errors.NotFoundError("task " + id)
	}
	return *task, nil
}

// MarkProcessing transitions a task to the processing state.
func (s *TaskStore) MarkProcessing(id string) {
	s.update(id, func(t *Task) {
		t.Status = TaskProcessing
	})
}

// MarkCompleted transitions a task to completed with its chunk count.
func (s *TaskStore) MarkCompleted(id string, chunksCreated int) {
	s.update(id, func(t *Task) {
		t.Status = TaskCompleted
		t.ChunksCreated = chunksCreated
	})
}

// MarkFailed transitions a task to failed with the error message.
func (s *TaskStore) MarkFailed(id string, err error) {
	s.update(id, func(t *Task) {
		t.Status = TaskFailed
		if err != nil {
			t.Error = err.Error()
		}
	})
}

// Count returns the number of tracked tasks.
func (s *TaskStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *TaskStore) update(id string, fn func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return
	}
	fn(task)
	task.UpdatedAt = time.Now().UTC()
}

func newTaskID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
