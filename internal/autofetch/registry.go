package autofetch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/romfetch-downloader/romfetch/internal/rom"
)

// TaskStatus is the lifecycle of one background fetch.
type TaskStatus string

const (
	TaskRunning  TaskStatus = "running"
	TaskComplete TaskStatus = "complete"
	TaskFailed   TaskStatus = "failed"
)

// TaskState is a point-in-time snapshot of a background fetch.
type TaskState struct {
	ID         string
	RomName    string
	SystemName string
	Status     TaskStatus
	Percent    int
	Message    string
	ResultPath string
	Error      string
}

// Registry tracks background fetches by ID so callers can poll their
// progress. A single mutex guards the whole table; fetches are rare and
// updates cheap.
type Registry struct {
	fetcher *Fetcher

	mu    sync.Mutex
	tasks map[string]*TaskState
}

// NewRegistry creates an empty registry over a fetcher.
func NewRegistry(fetcher *Fetcher) *Registry {
	return &Registry{
		fetcher: fetcher,
		tasks:   make(map[string]*TaskState),
	}
}

// Start launches a fetch in the background and returns its ID.
func (reg *Registry) Start(ctx context.Context, r rom.Info) string {
	id := uuid.NewString()

	reg.mu.Lock()
	reg.tasks[id] = &TaskState{
		ID:         id,
		RomName:    r.Name,
		SystemName: r.SystemName,
		Status:     TaskRunning,
		Message:    "starting",
	}
	reg.mu.Unlock()

	go reg.run(ctx, id, r)
	return id
}

func (reg *Registry) run(ctx context.Context, id string, r rom.Info) {
	report := func(percent int, message string) {
		reg.mu.Lock()
		if task, ok := reg.tasks[id]; ok {
			task.Percent = percent
			task.Message = message
		}
		reg.mu.Unlock()
	}

	resultPath, err := reg.fetcher.Fetch(ctx, r, report)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	task, ok := reg.tasks[id]
	if !ok {
		return
	}
	if err != nil {
		task.Status = TaskFailed
		task.Error = err.Error()
		return
	}
	task.Status = TaskComplete
	task.Percent = 100
	task.ResultPath = resultPath
}

// Get returns a snapshot of one task.
func (reg *Registry) Get(id string) (TaskState, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	task, ok := reg.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

// List returns snapshots of all known tasks.
func (reg *Registry) List() []TaskState {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]TaskState, 0, len(reg.tasks))
	for _, task := range reg.tasks {
		out = append(out, *task)
	}
	return out
}

// Remove drops a finished task from the registry. Running tasks are kept
// so their goroutine always has a row to update.
func (reg *Registry) Remove(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	task, ok := reg.tasks[id]
	if !ok || task.Status == TaskRunning {
		return false
	}
	delete(reg.tasks, id)
	return true
}
