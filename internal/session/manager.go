package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"stream-clipper/internal/buffer"
	"stream-clipper/internal/domain"
)

// ErrStaleSession is returned when a transition names a session that has
// since been replaced by a newer start.
var ErrStaleSession = errors.New("stale session")

// ErrNotLive is returned when stopping a session that is not live.
var ErrNotLive = errors.New("no live session")

// Manager tracks the single capture session and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Session
	events  *EventBus
	now     func() time.Time
}

// NewManager creates a manager in idle state. events may be nil.
func NewManager(events *EventBus) *Manager {
	return &Manager{
		current: domain.Session{Status: domain.SessionStatusIdle},
		events:  events,
		now:     time.Now,
	}
}

// Begin replaces whatever session exists with a new one in starting state.
// Starting is reachable from every state, which is how a restart supersedes
// a running capture.
func (m *Manager) Begin(id, sourceURL string) error {
	m.mu.Lock()
	if id == "" {
		m.mu.Unlock()
		return errors.New("session id is required")
	}
	if !isValidTransition(m.current.Status, domain.SessionStatusStarting) {
		from := m.current.Status
		m.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", from, domain.SessionStatusStarting)
	}
	m.current = domain.Session{
		ID:        id,
		Status:    domain.SessionStatusStarting,
		SourceURL: sourceURL,
		StartedAt: m.now().UTC(),
	}
	snapshot := m.current
	m.mu.Unlock()

	m.publishStatus(snapshot, "connecting to "+sourceURL)
	return nil
}

// MarkLive records that the buffer manifest exists and playback can begin.
func (m *Manager) MarkLive(id, deliveryURL, bufferDir string) error {
	snapshot, err := m.transition(id, domain.SessionStatusLive, func(s *domain.Session) {
		s.DeliveryURL = deliveryURL
		s.BufferDir = bufferDir
		s.ManifestPath = buffer.ManifestPath(bufferDir)
		s.Error = ""
	})
	if err != nil {
		return err
	}
	m.publishStatus(snapshot, "live")
	return nil
}

// MarkFailed records a start that never produced a manifest.
func (m *Manager) MarkFailed(id string, cause error) error {
	msg := "capture failed"
	if cause != nil {
		msg = cause.Error()
	}
	snapshot, err := m.transition(id, domain.SessionStatusFailed, func(s *domain.Session) {
		s.Error = msg
	})
	if err != nil {
		return err
	}
	m.publishStatus(snapshot, msg)
	return nil
}

// MarkStopped freezes the live session. The buffer stays available.
func (m *Manager) MarkStopped() error {
	m.mu.Lock()
	if m.current.Status != domain.SessionStatusLive {
		m.mu.Unlock()
		return ErrNotLive
	}
	m.current.Status = domain.SessionStatusStopped
	snapshot := m.current
	m.mu.Unlock()

	m.publishStatus(snapshot, "stopped")
	return nil
}

// Current returns a snapshot of the current session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsActive reports whether a capture subprocess should be running.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// Events returns the bus transitions are published to.
func (m *Manager) Events() *EventBus {
	return m.events
}

// Publish stamps the current session id on event and stores it.
func (m *Manager) Publish(event Event) {
	if m.events == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = m.Current().ID
	}
	m.events.Publish(event)
}

func (m *Manager) transition(id string, to domain.SessionStatus, apply func(*domain.Session)) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != m.current.ID {
		return m.current, ErrStaleSession
	}
	if m.current.Status == to {
		return m.current, nil
	}
	if !isValidTransition(m.current.Status, to) {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, to)
	}
	m.current.Status = to
	if apply != nil {
		apply(&m.current)
	}
	return m.current, nil
}

func (m *Manager) publishStatus(s domain.Session, msg string) {
	if m.events == nil {
		return
	}
	eventType := EventTypeStatus
	if s.Status == domain.SessionStatusFailed {
		eventType = EventTypeError
	}
	m.events.Publish(Event{
		SessionID: s.ID,
		Type:      eventType,
		Status:    s.Status,
		Message:   msg,
	})
}

// isActive checks if a status means a subprocess is expected to run.
func isActive(status domain.SessionStatus) bool {
	switch status {
	case domain.SessionStatusStarting, domain.SessionStatusLive:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed session state machine edges.
func isValidTransition(from, to domain.SessionStatus) bool {
	switch from {
	case domain.SessionStatusIdle:
		return to == domain.SessionStatusStarting
	case domain.SessionStatusStarting:
		return to == domain.SessionStatusLive || to == domain.SessionStatusFailed || to == domain.SessionStatusStarting
	case domain.SessionStatusLive:
		return to == domain.SessionStatusStopped || to == domain.SessionStatusStarting
	case domain.SessionStatusStopped, domain.SessionStatusFailed:
		return to == domain.SessionStatusStarting
	default:
		return false
	}
}
