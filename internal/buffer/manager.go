package buffer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ManifestName is the playlist file written into every buffer directory.
const ManifestName = "stream.m3u8"

const dirPrefix = "clipper-hls-"

// Manager owns the on-disk directory of the current rolling buffer. Only one
// buffer exists at a time, so the directory path is its identity.
type Manager struct {
	root string
	log  *slog.Logger

	mu      sync.Mutex
	current string

	now       func() time.Time
	newID     func() string
	mkdirAll  func(path string, perm os.FileMode) error
	removeAll func(path string) error
}

// NewManager creates buffers under root (the OS temp dir when empty).
func NewManager(root string, log *slog.Logger) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		root:      root,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		mkdirAll:  os.MkdirAll,
		removeAll: os.RemoveAll,
	}
}

// Root returns the parent directory of all buffers.
func (m *Manager) Root() string {
	return m.root
}

// Current returns the active buffer directory, or "" before the first prepare.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// PrepareFresh removes the previous buffer and creates an empty, uniquely
// named directory. Failing to remove the old one never blocks the new one.
func (m *Manager) PrepareFresh() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != "" {
		m.discardLocked(m.current)
		m.current = ""
	}

	id := m.newID()
	if len(id) > 8 {
		id = id[:8]
	}
	dir := filepath.Join(m.root, fmt.Sprintf("%s%d-%s", dirPrefix, m.now().UnixMilli(), id))
	if err := m.mkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create buffer directory %s: %w", dir, err)
	}

	m.current = dir
	m.log.Debug("buffer directory prepared", "dir", dir)
	return dir, nil
}

// Discard removes a buffer directory. Errors are logged and swallowed.
func (m *Manager) Discard(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discardLocked(dir)
	if dir == m.current {
		m.current = ""
	}
}

func (m *Manager) discardLocked(dir string) {
	if dir == "" {
		return
	}
	if err := m.removeAll(dir); err != nil {
		m.log.Warn("buffer cleanup failed", "dir", dir, "error", err)
		return
	}
	m.log.Debug("buffer directory removed", "dir", dir)
}

// ManifestPath returns the playlist path inside dir.
func ManifestPath(dir string) string {
	return filepath.Join(dir, ManifestName)
}
