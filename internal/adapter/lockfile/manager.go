package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/port"
	"github.com/google/uuid"
)

const (
	lockExt     = ".lock"
	progressExt = ".progress"
	guardName   = ".guard"
)

var ErrLockLost = errors.New("lock no longer held")

// Manager keeps one lock file per derivative name in a shared directory.
// Any process pointed at the same directory takes part in the exclusion.
//
// A lock is live while its heartbeat is younger than staleAfter and, when
// it was taken on this host, its owning process still exists. Unreadable
// lock files are live until their mtime is older than staleAfter.
type Manager struct {
	dir        string
	staleAfter time.Duration
	host       string
	pid        int

	now   func() time.Time
	alive func(pid int) bool

	mu sync.Mutex
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLiveness replaces the same-host process liveness probe.
func WithLiveness(alive func(pid int) bool) Option {
	return func(m *Manager) { m.alive = alive }
}

// WithIdentity overrides the host name and pid recorded in new locks.
func WithIdentity(host string, pid int) Option {
	return func(m *Manager) {
		m.host = host
		m.pid = pid
	}
}

func NewManager(dir string, staleAfter time.Duration, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	m := &Manager{
		dir:        dir,
		staleAfter: staleAfter,
		host:       host,
		pid:        os.Getpid(),
		now:        time.Now,
		alive:      processAlive,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) lockPath(name string) string {
	return filepath.Join(m.dir, name+lockExt)
}

func (m *Manager) ProgressPath(name string) string {
	return filepath.Join(m.dir, name+progressExt)
}

// Acquire creates the lock for name. A stale lock left by a dead holder is
// reclaimed, together with its progress file.
func (m *Manager) Acquire(name, jobID string) (port.Lock, error) {
	unlock, err := m.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	path := m.lockPath(name)
	for range 2 {
		now := m.now().UTC()
		info := domain.LockInfo{
			Name:      name,
			Token:     uuid.NewString(),
			JobID:     jobID,
			Host:      m.host,
			OwnerPID:  m.pid,
			CreatedAt: now,
			Heartbeat: now,
		}

		err := createExclusive(path, info)
		if err == nil {
			return &lock{m: m, path: path, info: info}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", name, err)
		}

		current, live, err := m.inspectPath(path)
		if err != nil {
			return nil, err
		}
		if live {
			return nil, domain.ErrJobRunning
		}

		owner := "unreadable"
		if current != nil {
			owner = fmt.Sprintf("job %s on %s pid %d", current.JobID, current.Host, current.OwnerPID)
		}
		logger.Warn.Printf("reclaiming stale lock %s (%s)", name, owner)
		m.removeLocked(name)
	}

	return nil, domain.ErrJobRunning
}

// Inspect reads the lock for name. It returns a nil info and live=false
// when no lock exists, and a nil info with the mtime-based verdict when the
// file cannot be parsed.
func (m *Manager) Inspect(name string) (*domain.LockInfo, bool, error) {
	return m.inspectPath(m.lockPath(name))
}

// Sweep removes every stale lock in the directory and returns how many
// were reclaimed.
func (m *Manager) Sweep() (int, error) {
	unlock, err := m.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("read lock directory: %w", err)
	}

	reclaimed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), lockExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), lockExt)

		_, live, err := m.inspectPath(m.lockPath(name))
		if err != nil {
			logger.Error.Printf("inspect lock %s: %v", name, err)
			continue
		}
		if live {
			continue
		}
		m.removeLocked(name)
		reclaimed++
	}
	return reclaimed, nil
}

func (m *Manager) inspectPath(path string) (*domain.LockInfo, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read lock: %w", err)
	}

	var info domain.LockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.Token == "" {
		st, statErr := os.Stat(path)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("stat lock: %w", statErr)
		}
		return nil, m.now().Sub(st.ModTime()) < m.staleAfter, nil
	}

	return &info, m.isLive(&info), nil
}

// isLive decides whether a parsed lock still guards its derivative. On
// this host a running encoder keeps the lock live even when its owner died
// or stopped heartbeating, since it still writes the partial output. Owner
// liveness is only checked on this host; other hosts are judged by the
// heartbeat alone.
func (m *Manager) isLive(info *domain.LockInfo) bool {
	if info.Host == m.host {
		if info.PID > 0 && m.alive(info.PID) {
			return true
		}
		if !m.alive(info.OwnerPID) {
			return false
		}
	}
	return info.HeartbeatAge(m.now()) < m.staleAfter
}

// removeLocked deletes the lock and progress files for name. The guard
// must be held.
func (m *Manager) removeLocked(name string) {
	for _, p := range []string{m.lockPath(name), m.ProgressPath(name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error.Printf("remove %s: %v", p, err)
		}
	}
}

// guard serializes lock file mutations within this process and, through
// flock on a shared file, across processes.
func (m *Manager) guard() (func(), error) {
	m.mu.Lock()

	f, err := os.OpenFile(filepath.Join(m.dir, guardName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("open lock guard: %w", err)
	}
	if err := flock(f); err != nil {
		_ = f.Close()
		m.mu.Unlock()
		return nil, fmt.Errorf("acquire lock guard: %w", err)
	}

	return func() {
		_ = funlock(f)
		_ = f.Close()
		m.mu.Unlock()
	}, nil
}

func createExclusive(path string, info domain.LockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// writeAtomic replaces path through a temp file and rename so readers never
// see a partial document.
func writeAtomic(path string, info domain.LockInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

type lock struct {
	m    *Manager
	path string

	mu       sync.Mutex
	info     domain.LockInfo
	released bool
}

func (l *lock) Info() domain.LockInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// SetPID records the encoder process id and refreshes the heartbeat.
func (l *lock) SetPID(pid int) error {
	return l.update(func(info *domain.LockInfo) { info.PID = pid })
}

func (l *lock) Heartbeat() error {
	return l.update(func(*domain.LockInfo) {})
}

func (l *lock) update(change func(*domain.LockInfo)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLockLost
	}

	unlock, err := l.m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if !l.ownedLocked() {
		return ErrLockLost
	}

	next := l.info
	change(&next)
	next.Heartbeat = l.m.now().UTC()
	if err := writeAtomic(l.path, next); err != nil {
		return fmt.Errorf("write lock %s: %w", l.info.Name, err)
	}
	l.info = next
	return nil
}

// Release removes the lock file if it still carries this holder's token.
// Releasing twice is a no-op.
func (l *lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	unlock, err := l.m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if !l.ownedLocked() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock %s: %w", l.info.Name, err)
	}
	return nil
}

func (l *lock) ownedLocked() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	var current domain.LockInfo
	if err := json.Unmarshal(data, &current); err != nil {
		return false
	}
	return current.Token == l.info.Token
}

var _ port.JobLocker = (*Manager)(nil)
