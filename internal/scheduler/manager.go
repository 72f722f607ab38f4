package scheduler

import (
	"context"
	"sync"
)

// Manager owns the loops of every enabled source.
type Manager struct {
	mu    sync.RWMutex
	loops map[string]*Loop
	order []string
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{loops: make(map[string]*Loop)}
}

// Add registers loop under its source name, replacing any previous loop.
func (m *Manager) Add(loop *Loop) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.loops[loop.Name()]; !exists {
		m.order = append(m.order, loop.Name())
	}
	m.loops[loop.Name()] = loop
}

// Get returns the loop for source.
func (m *Manager) Get(source string) (*Loop, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loop, ok := m.loops[source]
	return loop, ok
}

// Loops returns the loops in registration order.
func (m *Manager) Loops() []*Loop {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loops := make([]*Loop, 0, len(m.order))
	for _, name := range m.order {
		loops = append(loops, m.loops[name])
	}
	return loops
}

// Start starts every loop.
func (m *Manager) Start(ctx context.Context) {
	for _, loop := range m.Loops() {
		loop.Start(ctx)
	}
}

// Stop stops every loop concurrently and waits for all of them.
func (m *Manager) Stop() {
	var wg sync.WaitGroup
	for _, loop := range m.Loops() {
		wg.Add(1)
		go func(l *Loop) {
			defer wg.Done()
			l.Stop()
		}(loop)
	}
	wg.Wait()
}
