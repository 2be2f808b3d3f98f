// Package jobmgr runs named, cancellable background jobs.
//
// Jobs derive their contexts from the manager's parent context, so shutting
// the parent down cancels everything. Stopping a job by name cancels it and
// waits for it to return, which makes "cancel the pending retry before it
// fires" a one-liner for callers.
package jobmgr

import (
	"context"
	"fmt"
	"sync"
)

// ExitFunc receives the terminal result of every job.
type ExitFunc func(name string, err error)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks background jobs. Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	parent context.Context
	jobs   map[string]*job
	onExit ExitFunc
}

// New creates a Manager whose jobs are children of parent. onExit may be nil.
func New(parent context.Context, onExit ExitFunc) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	return &Manager{
		parent: parent,
		jobs:   make(map[string]*job),
		onExit: onExit,
	}
}

// Start launches run in its own goroutine under the given name. A second
// Start with the same name fails while the first is still running. Jobs
// remove themselves on completion.
func (m *Manager) Start(name string, run func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(m.parent)
	j := &job{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("job %q is already running", name)
	}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		err := run(ctx)
		cancel()

		m.mu.Lock()
		delete(m.jobs, name)
		m.mu.Unlock()
		close(j.done)

		if m.onExit != nil {
			m.onExit(name, err)
		}
	}()
	return nil
}

// Stop cancels the named job and waits for it to return. Reports whether a
// job by that name was running.
func (m *Manager) Stop(name string) bool {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return false
	}
	j.cancel()
	<-j.done
	return true
}

// StopAll cancels every running job and waits for all of them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	running := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		running = append(running, j)
	}
	m.mu.Unlock()

	for _, j := range running {
		j.cancel()
	}
	for _, j := range running {
		<-j.done
	}
}

// Has reports whether a job with the given name is running.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// Running returns the names of the currently running jobs.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	return names
}
