// Package pool tracks the live data-source connections held by this
// node. The manager never dials anything itself; callers hand it
// connections they opened and ask for them back by source id. Releasing
// a source that holds no connection is a no-op, so release fan-out can
// reach every node without coordination.
package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ChasLui/nocodb/core"
)

// Connection is the caller-owned handle the manager tracks. Database
// handles, HTTP clients with keep-alives, and test doubles all fit.
type Connection interface {
	Close() error
}

type trackedConnection struct {
	conn     Connection
	openedAt time.Time
}

type Option func(*Manager)

type Manager struct {
	mu      sync.RWMutex
	conns   map[string]trackedConnection
	logger  core.Logger
	metrics core.MetricsRecorder
	now     func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(m *Manager) {
		if recorder != nil {
			m.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func New(opts ...Option) *Manager {
	manager := &Manager{
		conns:   map[string]trackedConnection{},
		metrics: core.NopMetricsRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	return manager
}

// Track stores the connection under the source id. A connection already
// tracked for the same source is closed and replaced.
func (m *Manager) Track(sourceID string, conn Connection) error {
	if m == nil {
		return fmt.Errorf("pool: manager is nil")
	}
	id := strings.TrimSpace(sourceID)
	if id == "" {
		return fmt.Errorf("pool: source id is required")
	}
	if conn == nil {
		return fmt.Errorf("pool: connection is required")
	}

	m.mu.Lock()
	previous, replaced := m.conns[id]
	m.conns[id] = trackedConnection{conn: conn, openedAt: m.now()}
	m.mu.Unlock()

	if replaced && previous.conn != nil {
		if err := previous.conn.Close(); err != nil {
			m.logClose(id, err)
		}
	}
	return nil
}

// Get returns the tracked connection for a source, if any.
func (m *Manager) Get(sourceID string) (Connection, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	tracked, ok := m.conns[strings.TrimSpace(sourceID)]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return tracked.conn, true
}

// ReleaseLocal closes and forgets the connection for a source. An
// untracked source id is a no-op.
func (m *Manager) ReleaseLocal(ctx context.Context, sourceID string) {
	if m == nil {
		return
	}
	id := strings.TrimSpace(sourceID)
	if id == "" {
		return
	}

	m.mu.Lock()
	tracked, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	outcome := "absent"
	if ok {
		outcome = "closed"
		if tracked.conn != nil {
			if err := tracked.conn.Close(); err != nil {
				m.logClose(id, err)
				outcome = "close_failed"
			}
		}
	}
	if m.metrics != nil {
		m.metrics.IncCounter(ctx, "integrations.pool.released.total", 1, map[string]string{
			"outcome": outcome,
		})
	}
}

// ReleaseAll closes every tracked connection. Used on shutdown.
func (m *Manager) ReleaseAll(ctx context.Context) {
	if m == nil {
		return
	}
	m.mu.Lock()
	drained := m.conns
	m.conns = map[string]trackedConnection{}
	m.mu.Unlock()

	for id, tracked := range drained {
		if tracked.conn == nil {
			continue
		}
		if err := tracked.conn.Close(); err != nil {
			m.logClose(id, err)
		}
	}
	if m.metrics != nil && len(drained) > 0 {
		m.metrics.IncCounter(ctx, "integrations.pool.released.total", int64(len(drained)), map[string]string{
			"outcome": "shutdown",
		})
	}
}

// Size reports how many connections the manager currently tracks.
func (m *Manager) Size() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) logClose(sourceID string, err error) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.Error("connection close failed", "source_id", sourceID, "error", err.Error())
}

var _ core.ConnectionReleaser = (*Manager)(nil)
