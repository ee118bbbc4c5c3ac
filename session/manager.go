package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
)

// ManagerConfig holds session manager configuration
type ManagerConfig struct {
	MaxSessions     int           `json:"max_sessions"`     // Oldest idle session is evicted beyond this
	IdleTTL         time.Duration `json:"idle_ttl"`         // Sessions unused this long are closed
	CleanupInterval time.Duration `json:"cleanup_interval"` // How often to look for idle sessions
}

// DefaultManagerConfig returns a default manager configuration
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		MaxSessions:     64,
		IdleTTL:         30 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Manager keeps live sessions in an LRU with idle expiry. Sessions leaving the
// manager, by eviction, expiry or removal, are closed.
type Manager struct {
	sessions *lru.Cache[string, *Session]
	config   *ManagerConfig
	logger   *logging.Logger
	metrics  *metrics.PrometheusMetrics

	// ids removed on purpose, so the eviction callback can tell them apart
	removing sync.Map
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates a new session manager
func NewManager(config *ManagerConfig, logger *logging.Logger, m *metrics.PrometheusMetrics) (*Manager, error) {
	if config == nil {
		config = DefaultManagerConfig()
	}
	mgr := &Manager{
		config:   config,
		logger:   logging.OrNop(logger).WithComponent("sessions"),
		metrics:  m,
		stopChan: make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[string, *Session](config.MaxSessions, mgr.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	mgr.sessions = cache

	if config.IdleTTL > 0 && config.CleanupInterval > 0 {
		go mgr.cleanup()
	}
	return mgr, nil
}

func (m *Manager) onEvict(id string, s *Session) {
	_, removed := m.removing.LoadAndDelete(id)
	if err := s.Close(context.Background()); err != nil {
		m.logger.Warn("Failed to close session", "session_id", id, "error", err.Error())
	}
	m.metrics.SessionClosed(!removed)
	if !removed {
		m.logger.Info("Session evicted", "session_id", id)
	}
}

// Add registers a new session.
func (m *Manager) Add(s *Session) {
	m.sessions.Add(s.ID, s)
	m.metrics.SessionOpened()
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if m.expired(s) {
		m.sessions.Remove(id)
		return nil, fmt.Errorf("%w: %s expired", ErrUnknownSession, id)
	}
	s.touch()
	return s, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) error {
	if !m.sessions.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.removing.Store(id, struct{}{})
	if !m.sessions.Remove(id) {
		m.removing.Delete(id)
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return nil
}

// IDs returns live session ids, most recently used last.
func (m *Manager) IDs() []string {
	return m.sessions.Keys()
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}

func (m *Manager) expired(s *Session) bool {
	return m.config.IdleTTL > 0 && time.Since(s.IdleSince()) > m.config.IdleTTL
}

// cleanup periodically closes idle sessions
func (m *Manager) cleanup() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) cleanupExpired() {
	for _, id := range m.sessions.Keys() {
		if s, ok := m.sessions.Peek(id); ok && m.expired(s) {
			m.sessions.Remove(id)
		}
	}
}

// Close stops the cleanup loop and closes every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.sessions.Purge()
}
