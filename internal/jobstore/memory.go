package jobstore

import (
	"context"
	"sync"

	"cronbot/internal/job"
)

// Memory keeps jobs in process memory.
type Memory struct {
	mu    sync.Mutex
	jobs  map[string]job.Job
	order []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: map[string]job.Job{}}
}

func (m *Memory) Put(_ context.Context, j job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(j)
	return nil
}

func (m *Memory) putLocked(j job.Job) {
	if _, ok := m.jobs[j.ID]; !ok {
		m.order = append(m.order, j.ID)
	}
	m.jobs[j.ID] = j.Clone()
}

func (m *Memory) Get(_ context.Context, id string) (job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id), nil
}

func (m *Memory) deleteLocked(id string) bool {
	if _, ok := m.jobs[id]; !ok {
		return false
	}
	delete(m.jobs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

func (m *Memory) List(_ context.Context) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(), nil
}

func (m *Memory) listLocked() []job.Job {
	out := make([]job.Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id].Clone())
	}
	return out
}

func (m *Memory) Close() error { return nil }
