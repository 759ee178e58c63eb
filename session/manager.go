package session

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/errors"
)

// Manager keeps the live sessions of this process. Each session gets its own
// directory under the base directory.
type Manager struct {
	baseDir string

	mu       sync.RWMutex
	sessions map[string]*Session
	// busy holds the ids of sessions with a stage in progress.
	busy map[string]struct{}
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		baseDir:  baseDir,
		sessions: map[string]*Session{},
		busy:     map[string]struct{}{},
	}
}

func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) Create() (*Session, error) {
	id := uuid.NewString()
	s, err := Open(id, filepath.Join(m.baseDir, id))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session": id,
		"dir":     s.Dir,
	}).Debug("Session created")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("Manager.Get", nil, "Session not found")
	}
	return s, nil
}

// Acquire marks the session busy until release is called. A busy session
// cannot be acquired again, closed or expired.
func (m *Manager) Acquire(id string) (s *Session, release func(), err error) {
	const op = "Manager.Acquire"

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil, errors.NotFound(op, nil, "Session not found")
	}
	if _, busy := m.busy[id]; busy {
		return nil, nil, errors.Conflict(op, nil, "Session is busy")
	}
	m.busy[id] = struct{}{}

	var once sync.Once
	return s, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.busy, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Manager) Busy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, busy := m.busy[id]
	return busy
}

// Close forgets the session and releases its lock. When remove is set the
// directory is deleted as well.
func (m *Manager) Close(id string, remove bool) error {
	const op = "Manager.Close"

	m.mu.Lock()
	s, ok := m.sessions[id]
	if _, busy := m.busy[id]; ok && busy {
		m.mu.Unlock()
		return errors.Conflict(op, nil, "Session is busy")
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return errors.NotFound(op, nil, "Session not found")
	}
	if remove {
		return s.Remove()
	}
	return s.Close()
}

// CloseAll releases every session lock, keeping the directories for the
// retention sweep.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if err := s.Close(); err != nil {
			logrus.WithError(err).WithField("session", id).Warn("Failed to release session lock")
		}
		delete(m.sessions, id)
	}
}

// Expire closes idle sessions last updated before the cutoff so the
// retention sweep can take their directory locks. Directories are kept.
// It returns the expired ids.
func (m *Manager) Expire(before time.Time) []string {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if _, busy := m.busy[id]; busy || !s.UpdatedAt().Before(before) {
			continue
		}
		idle = append(idle, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		if err := s.Close(); err != nil {
			logrus.WithError(err).WithField("session", s.ID).Warn("Failed to release session lock")
		}
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		logrus.WithField("sessions", len(ids)).Info("Expired idle sessions")
	}
	return ids
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
