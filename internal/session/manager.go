package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DiscoveryDirName is the per-workspace directory holding the discovery file.
	DiscoveryDirName = ".valkyrie"
	// DiscoveryFileName is the name of the discovery file.
	DiscoveryFileName = "session"
	// SocketDirName is the name of the socket directory in the runtime dir.
	SocketDirName = "valkyrie-lsp"

	socketPrefix = "valkyrie-"
	socketExt    = ".sock"
)

// ErrStaleDiscovery is returned when a discovery file points at a daemon that
// is gone.
var ErrStaleDiscovery = errors.New("session: stale discovery file")

// Manager tracks the live sessions of a daemon.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	socketDir string
}

type entry struct {
	session *Session
	remote  string
}

// NewManager creates a manager using the default socket directory.
func NewManager() *Manager {
	return NewManagerWithDir(DefaultSocketDir())
}

// NewManagerWithDir creates a manager using socketDir for sockets.
func NewManagerWithDir(socketDir string) *Manager {
	return &Manager{
		sessions:  make(map[string]*entry),
		socketDir: socketDir,
	}
}

// DefaultSocketDir returns a per-user directory for sockets.
// Uses XDG_RUNTIME_DIR when set, TMPDIR with the uid otherwise.
func DefaultSocketDir() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, SocketDirName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", SocketDirName, os.Getuid()))
}

// SocketDir returns the manager's socket directory.
func (m *Manager) SocketDir() string {
	return m.socketDir
}

// EnsureSocketDir creates the socket directory with owner-only permissions.
func (m *Manager) EnsureSocketDir() error {
	if err := os.MkdirAll(m.socketDir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	info, err := os.Stat(m.socketDir)
	if err != nil {
		return err
	}

	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o700 {
		if err := os.Chmod(m.socketDir, 0o700); err != nil {
			return fmt.Errorf("failed to set socket directory permissions: %w", err)
		}
	}
	return nil
}

// SocketPath returns the socket path for name inside the socket directory.
func (m *Manager) SocketPath(name string) string {
	return filepath.Join(m.socketDir, name+socketExt)
}

// ProcessSocketPath returns the socket path of the daemon running as pid.
func (m *Manager) ProcessSocketPath(pid int) string {
	return m.SocketPath(socketPrefix + strconv.Itoa(pid))
}

// socketPID extracts the pid from a socket named by ProcessSocketPath.
func socketPID(name string) (int, bool) {
	digits, ok := strings.CutPrefix(strings.TrimSuffix(name, socketExt), socketPrefix)
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(digits)
	return pid, err == nil && pid > 0
}

// Add registers a live session.
func (m *Manager) Add(s *Session, remote string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = &entry{session: s, remote: remote}
}

// Remove forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns snapshots of all live sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, e := range m.sessions {
		infos = append(infos, e.session.Info())
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return infos
}

// Remote returns the remote address a session connected from.
func (m *Manager) Remote(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.sessions[id]; ok {
		return e.remote
	}
	return ""
}

// CleanupStaleSockets removes sockets older than maxAge from the socket
// directory. A socket whose name carries the pid of a running process is
// kept at any age.
func (m *Manager) CleanupStaleSockets(maxAge time.Duration) error {
	entries, err := os.ReadDir(m.socketDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != socketExt {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) <= maxAge {
			continue
		}
		if pid, ok := socketPID(e.Name()); ok && IsProcessAlive(pid) {
			continue
		}
		os.Remove(filepath.Join(m.socketDir, e.Name()))
	}
	return nil
}

// Discovery is written to <workspace>/.valkyrie/session so editors can find a
// running daemon.
type Discovery struct {
	SocketPath string    `json:"socket_path"`
	PID        int       `json:"pid"`
	CreatedAt  time.Time `json:"created_at"`
}

func discoveryPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DiscoveryDirName, DiscoveryFileName)
}

// WriteDiscovery records socketPath for workspaceRoot.
func WriteDiscovery(workspaceRoot, socketPath string) error {
	dir := filepath.Join(workspaceRoot, DiscoveryDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", DiscoveryDirName, err)
	}

	data, err := json.MarshalIndent(Discovery{
		SocketPath: socketPath,
		PID:        os.Getpid(),
		CreatedAt:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal discovery file: %w", err)
	}

	if err := os.WriteFile(discoveryPath(workspaceRoot), data, 0o644); err != nil {
		return fmt.Errorf("failed to write discovery file: %w", err)
	}
	return nil
}

// ReadDiscovery loads the discovery file of workspaceRoot. A file whose
// socket or process is gone is removed and reported as ErrStaleDiscovery.
func ReadDiscovery(workspaceRoot string) (*Discovery, error) {
	path := discoveryPath(workspaceRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no discovery file found: %w", err)
	}

	var d Discovery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse discovery file: %w", err)
	}

	if _, err := os.Stat(d.SocketPath); err != nil || !IsProcessAlive(d.PID) {
		os.Remove(path)
		return nil, ErrStaleDiscovery
	}
	return &d, nil
}

// RemoveDiscovery deletes the discovery file of workspaceRoot.
func RemoveDiscovery(workspaceRoot string) {
	os.Remove(discoveryPath(workspaceRoot))
}

// IsProcessAlive checks if a process with the given PID is still running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds. Send signal 0 to check if alive.
	return process.Signal(syscall.Signal(0)) == nil
}
