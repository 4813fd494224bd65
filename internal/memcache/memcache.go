// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memcache

import (
	"sync"
	"time"

	"github.com/jeranaias/persona-chat/internal/logging"
	"github.com/jeranaias/persona-chat/internal/model"
)

const (
	// DefaultRetention is the number of recent messages kept per tracked
	// session.
	DefaultRetention = 10

	// DefaultCapacity is the number of sessions tracked before the
	// least-recently-touched ones are evicted.
	DefaultCapacity = 20

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Minute
)

// =============================================================================
// MANAGER
// =============================================================================

// entry holds the retained tail of one session's log.
type entry struct {
	messages  []*model.Message
	touchedAt time.Time
}

// Stats reports the aggregate tracked state.
type Stats struct {
	TotalSessions int
	TotalMessages int
}

// Manager is the retention side-cache. All operations are safe for
// concurrent use.
type Manager struct {
	mu        sync.Mutex
	retention int
	capacity  int
	sessions  map[string]*entry
	order     []string // touch order, oldest first
}

// NewManager creates a manager with the given per-session retention
// window and session capacity. Non-positive values fall back to the
// defaults.
func NewManager(retention, capacity int) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		retention: retention,
		capacity:  capacity,
		sessions:  make(map[string]*entry),
	}
}

// =============================================================================
// TRACKING
// =============================================================================

// RegisterSession starts tracking a session's log. Only the retention
// window of most recent messages is kept; the copies are clones so the
// cache never aliases the store's live log.
func (m *Manager) RegisterSession(id string, messages []*model.Message) {
	m.UpdateSession(id, messages)
}

// UpdateSession refreshes a tracked session's retained tail and marks it
// most recently touched.
func (m *Manager) UpdateSession(id string, messages []*model.Message) {
	if id == "" {
		return
	}

	tail := messages
	if len(tail) > m.retention {
		tail = tail[len(tail)-m.retention:]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[id] = &entry{
		messages:  model.CloneLog(tail),
		touchedAt: time.Now(),
	}
	m.touchLocked(id)
}

// UnregisterSession stops tracking a session, e.g. on explicit close.
func (m *Manager) UnregisterSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

// Messages returns the retained tail for a session, or nil if untracked.
func (m *Manager) Messages(id string) []*model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return model.CloneLog(e.messages)
}

// =============================================================================
// EVICTION
// =============================================================================

// CleanupOldSessions evicts sessions beyond the capacity bound, least
// recently touched first. Returns the number of evicted sessions. The
// result is deterministic for a given sequence of touches.
func (m *Manager) CleanupOldSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for len(m.sessions) > m.capacity && len(m.order) > 0 {
		oldest := m.order[0]
		m.removeLocked(oldest)
		evicted++
	}

	if evicted > 0 {
		logging.WithField("evicted", evicted).Debug("memcache: evicted inactive sessions")
	}
	return evicted
}

// Stats returns the aggregate tracked state. Message counts never exceed
// the per-session retention window.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TotalSessions: len(m.sessions)}
	for _, e := range m.sessions {
		stats.TotalMessages += len(e.messages)
	}
	return stats
}

// =============================================================================
// BACKGROUND SWEEP
// =============================================================================

// StartSweeper runs CleanupOldSessions at a fixed interval for the life
// of the process, independent of any single session's lifecycle. The
// returned function stops the sweeper.
func (m *Manager) StartSweeper(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				m.CleanupOldSessions()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// =============================================================================
// INTERNAL
// =============================================================================

// touchLocked moves id to the most-recent end of the order list.
func (m *Manager) touchLocked(id string) {
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append(m.order, id)
}

// removeLocked drops a session from the cache and the order list.
func (m *Manager) removeLocked(id string) {
	delete(m.sessions, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
