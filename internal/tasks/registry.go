package tasks

import (
	"sync"
	"time"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

// Persistence is the narrow durability boundary Registry needs; satisfied
// by *taskstore.Store. Kept local so this package never imports taskstore
// and can be tested without a database.
type Persistence interface {
	SaveTask(t *BackgroundTask) error
	ListTasks() ([]*BackgroundTask, error)
	DeleteTask(name string) error
}

// Registry is the in-memory index of registered background tasks, backed
// by durable storage (spec §4.7). It mirrors the teacher's split between
// an in-memory task queue and a SQLite-backed store: reads never touch
// disk, writes go through both.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*BackgroundTask
	store Persistence
}

// NewRegistry builds an empty Registry. Call Load to hydrate it from store.
func NewRegistry(store Persistence) *Registry {
	return &Registry{
		tasks: make(map[string]*BackgroundTask),
		store: store,
	}
}

// Load populates the in-memory index from durable storage. Call once at
// startup before the scheduler begins ticking.
func (r *Registry) Load() error {
	defs, err := r.store.ListTasks()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range defs {
		r.tasks[d.Name] = d
	}
	return nil
}

// Register upserts a task definition, replacing any prior definition under
// the same name (spec §4.7). The Enabled flag is stored as given.
func (r *Registry) Register(t *BackgroundTask) error {
	now := time.Now().UTC()
	r.mu.Lock()
	if existing, ok := r.tasks[t.Name]; ok {
		t.CreatedAt = existing.CreatedAt
	} else {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.tasks[t.Name] = t
	r.mu.Unlock()

	return r.store.SaveTask(t)
}

// Unregister removes a task definition entirely.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	delete(r.tasks, name)
	r.mu.Unlock()
	return r.store.DeleteTask(name)
}

// SetEnabled flips a task's enabled flag without touching any other field.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	t, ok := r.tasks[name]
	if !ok {
		r.mu.Unlock()
		return apperr.New(apperr.TaskNotFound, "task "+name+" not registered")
	}
	t.Enabled = enabled
	t.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	return r.store.SaveTask(t)
}

// Get returns the task registered under name.
func (r *Registry) Get(name string) (*BackgroundTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, apperr.New(apperr.TaskNotFound, "task "+name+" not registered")
	}
	return t, nil
}

// ListAll returns every registered task, enabled or not.
func (r *Registry) ListAll() []*BackgroundTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BackgroundTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	return out
}

// ListCronTasks returns enabled tasks with a cron trigger.
func (r *Registry) ListCronTasks() []*BackgroundTask {
	return r.listEnabledByKind(TriggerCron)
}

// ListIdleTasks returns enabled tasks with an idle trigger.
func (r *Registry) ListIdleTasks() []*BackgroundTask {
	return r.listEnabledByKind(TriggerIdle)
}

func (r *Registry) listEnabledByKind(kind TriggerKind) []*BackgroundTask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*BackgroundTask
	for _, t := range r.tasks {
		if t.Enabled && t.Trigger.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
