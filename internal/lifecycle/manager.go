// Package lifecycle closes the process's long-lived resources (the
// persistence backend, the event bus, the expiry worker) in reverse
// registration order at shutdown, attempting every close even when an
// earlier one fails.
package lifecycle

import (
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager collects resources to close at shutdown.
type Manager struct {
	mu        sync.Mutex
	closed    bool
	resources []resource
}

type resource struct {
	name   string
	closer io.Closer
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a resource. Resources close LIFO, so register in
// construction order.
func (m *Manager) Register(name string, closer io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, closer: closer})
}

// RegisterFunc registers a bare cleanup function.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close closes every registered resource in reverse registration order,
// logging each failure and returning the first error. Calling Close
// again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for i := len(m.resources) - 1; i >= 0; i-- {
		res := m.resources[i]
		if err := res.closer.Close(); err != nil {
			log.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
