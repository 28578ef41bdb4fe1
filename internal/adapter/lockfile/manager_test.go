package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const staleAfter = 30 * time.Second

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now()}
	base := []Option{
		WithClock(clock.Now),
		WithIdentity("test-host", 1000),
		WithLiveness(func(int) bool { return true }),
	}
	m, err := NewManager(t.TempDir(), staleAfter, append(base, opts...)...)
	require.NoError(t, err)
	return m, clock
}

func readLock(t *testing.T, m *Manager, name string) domain.LockInfo {
	t.Helper()
	data, err := os.ReadFile(m.lockPath(name))
	require.NoError(t, err)
	var info domain.LockInfo
	require.NoError(t, json.Unmarshal(data, &info))
	return info
}

func TestAcquire_Exclusive(t *testing.T) {
	m, _ := newTestManager(t)

	l, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", l.Info().JobID)
	assert.Equal(t, "test-host", l.Info().Host)
	assert.Equal(t, 1000, l.Info().OwnerPID)
	assert.NotEmpty(t, l.Info().Token)

	_, err = m.Acquire("movie.mp4", "job-2")
	assert.ErrorIs(t, err, domain.ErrJobRunning)

	other, err := m.Acquire("other.mp4", "job-3")
	require.NoError(t, err)
	require.NoError(t, other.Release())
}

func TestAcquire_AfterRelease(t *testing.T) {
	m, _ := newTestManager(t)

	l, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "second release is a no-op")

	_, err = os.Stat(m.lockPath("movie.mp4"))
	assert.True(t, os.IsNotExist(err))

	l2, err := m.Acquire("movie.mp4", "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", l2.Info().JobID)
}

func TestAcquire_ReclaimsStaleHeartbeat(t *testing.T) {
	m, clock := newTestManager(t)

	_, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.ProgressPath("movie.mp4"), []byte("frame=10"), 0644))

	clock.Advance(staleAfter + time.Second)

	l, err := m.Acquire("movie.mp4", "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", l.Info().JobID)

	_, err = os.Stat(m.ProgressPath("movie.mp4"))
	assert.True(t, os.IsNotExist(err), "stale progress file must be removed")
}

func TestAcquire_ReclaimsDeadOwnerOnSameHost(t *testing.T) {
	var ownerAlive atomic.Bool
	ownerAlive.Store(true)
	m, _ := newTestManager(t, WithLiveness(func(int) bool { return ownerAlive.Load() }))

	_, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)

	_, err = m.Acquire("movie.mp4", "job-2")
	require.ErrorIs(t, err, domain.ErrJobRunning)

	ownerAlive.Store(false)

	l, err := m.Acquire("movie.mp4", "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", l.Info().JobID)
}

func TestAcquire_LiveEncoderOutlivesDeadOwner(t *testing.T) {
	const encoderPID = 5150
	var encoderAlive atomic.Bool
	encoderAlive.Store(true)
	m, clock := newTestManager(t, WithLiveness(func(pid int) bool {
		return pid == encoderPID && encoderAlive.Load()
	}))

	info := domain.LockInfo{
		Name:      "movie.mp4",
		Token:     "crashed",
		JobID:     "job-old",
		Host:      "test-host",
		OwnerPID:  999,
		PID:       encoderPID,
		CreatedAt: clock.Now(),
		Heartbeat: clock.Now(),
	}
	require.NoError(t, writeAtomic(m.lockPath("movie.mp4"), info))
	require.NoError(t, os.WriteFile(m.ProgressPath("movie.mp4"), []byte("frame=10"), 0644))

	_, err := m.Acquire("movie.mp4", "job-new")
	require.ErrorIs(t, err, domain.ErrJobRunning)

	clock.Advance(staleAfter + time.Second)
	_, err = m.Acquire("movie.mp4", "job-new")
	require.ErrorIs(t, err, domain.ErrJobRunning, "running encoder keeps the lock past the heartbeat window")

	n, err := m.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = os.Stat(m.ProgressPath("movie.mp4"))
	require.NoError(t, err, "progress of a running encoder must be kept")

	got, live, err := m.Inspect("movie.mp4")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, "job-old", got.JobID)

	encoderAlive.Store(false)

	l, err := m.Acquire("movie.mp4", "job-new")
	require.NoError(t, err)
	assert.Equal(t, "job-new", l.Info().JobID)
}

func TestAcquire_ForeignHostIgnoresEncoderPID(t *testing.T) {
	m, clock := newTestManager(t)

	info := domain.LockInfo{
		Name:      "movie.mp4",
		Token:     "foreign",
		JobID:     "job-remote",
		Host:      "other-host",
		OwnerPID:  4242,
		PID:       4243,
		CreatedAt: clock.Now(),
		Heartbeat: clock.Now(),
	}
	require.NoError(t, writeAtomic(m.lockPath("movie.mp4"), info))

	clock.Advance(staleAfter)

	_, err := m.Acquire("movie.mp4", "job-1")
	assert.NoError(t, err)
}

func TestAcquire_ForeignHostTrustsHeartbeat(t *testing.T) {
	m, clock := newTestManager(t, WithLiveness(func(int) bool { return false }))

	info := domain.LockInfo{
		Name:      "movie.mp4",
		Token:     "foreign",
		JobID:     "job-remote",
		Host:      "other-host",
		OwnerPID:  4242,
		CreatedAt: clock.Now(),
		Heartbeat: clock.Now(),
	}
	require.NoError(t, writeAtomic(m.lockPath("movie.mp4"), info))

	_, err := m.Acquire("movie.mp4", "job-1")
	assert.ErrorIs(t, err, domain.ErrJobRunning)

	clock.Advance(staleAfter)

	_, err = m.Acquire("movie.mp4", "job-1")
	assert.NoError(t, err)
}

func TestAcquire_CorruptLock(t *testing.T) {
	m, _ := newTestManager(t, WithClock(time.Now))

	path := m.lockPath("movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := m.Acquire("movie.mp4", "job-1")
	require.ErrorIs(t, err, domain.ErrJobRunning, "fresh unreadable lock counts as live")

	old := time.Now().Add(-2 * staleAfter)
	require.NoError(t, os.Chtimes(path, old, old))

	l, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", readLock(t, m, "movie.mp4").JobID)
	require.NoError(t, l.Release())
}

func TestAcquire_Concurrent(t *testing.T) {
	m, _ := newTestManager(t)

	const workers = 20
	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		running  atomic.Int32
	)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Acquire("movie.mp4", "job")
			switch err {
			case nil:
				acquired.Add(1)
			case domain.ErrJobRunning:
				running.Add(1)
			default:
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
	assert.Equal(t, int32(workers-1), running.Load())
}

func TestAcquire_ConcurrentManagers(t *testing.T) {
	dir := t.TempDir()

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
	)
	for i := range 8 {
		m, err := NewManager(dir, staleAfter, WithIdentity("test-host", 2000+i))
		require.NoError(t, err)
		m.alive = func(int) bool { return true }

		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire("movie.mp4", "job"); err == nil {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

func TestLock_SetPIDAndHeartbeat(t *testing.T) {
	// Only the owner is alive, so the heartbeat alone keeps the lock.
	m, clock := newTestManager(t, WithLiveness(func(pid int) bool { return pid == 1000 }))

	l, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	created := l.Info().Heartbeat

	clock.Advance(5 * time.Second)
	require.NoError(t, l.SetPID(777))

	onDisk := readLock(t, m, "movie.mp4")
	assert.Equal(t, 777, onDisk.PID)
	assert.True(t, onDisk.Heartbeat.After(created))
	assert.Equal(t, l.Info().Token, onDisk.Token)

	clock.Advance(staleAfter - time.Second)
	require.NoError(t, l.Heartbeat())

	clock.Advance(staleAfter - time.Second)
	_, err = m.Acquire("movie.mp4", "job-2")
	assert.ErrorIs(t, err, domain.ErrJobRunning, "heartbeat keeps the lock live")
	assert.Equal(t, 777, readLock(t, m, "movie.mp4").PID)
}

func TestLock_LostAfterReclaim(t *testing.T) {
	m, clock := newTestManager(t)

	first, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)

	clock.Advance(staleAfter + time.Second)
	second, err := m.Acquire("movie.mp4", "job-2")
	require.NoError(t, err)

	assert.ErrorIs(t, first.Heartbeat(), ErrLockLost)
	require.NoError(t, first.Release())

	_, err = os.Stat(m.lockPath("movie.mp4"))
	require.NoError(t, err, "release by a former holder must not remove the new lock")
	assert.Equal(t, second.Info().Token, readLock(t, m, "movie.mp4").Token)
}

func TestLock_HeartbeatAfterRelease(t *testing.T) {
	m, _ := newTestManager(t)

	l, err := m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)
	require.NoError(t, l.Release())

	assert.ErrorIs(t, l.Heartbeat(), ErrLockLost)
	assert.ErrorIs(t, l.SetPID(1), ErrLockLost)
}

func TestInspect(t *testing.T) {
	m, clock := newTestManager(t)

	info, live, err := m.Inspect("movie.mp4")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.False(t, live)

	_, err = m.Acquire("movie.mp4", "job-1")
	require.NoError(t, err)

	info, live, err = m.Inspect("movie.mp4")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "job-1", info.JobID)
	assert.True(t, live)

	clock.Advance(staleAfter)
	info, live, err = m.Inspect("movie.mp4")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.False(t, live)
}

func TestSweep(t *testing.T) {
	m, clock := newTestManager(t)

	_, err := m.Acquire("old-a.mp4", "job-1")
	require.NoError(t, err)
	_, err = m.Acquire("old-b.jpg", "job-2")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.ProgressPath("old-a.mp4"), []byte("x"), 0644))

	clock.Advance(staleAfter + time.Second)

	fresh, err := m.Acquire("fresh.mp4", "job-3")
	require.NoError(t, err)

	n, err := m.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "fresh.mp4.lock")
	assert.NotContains(t, names, "old-a.mp4.lock")
	assert.NotContains(t, names, "old-a.mp4.progress")
	assert.NotContains(t, names, "old-b.jpg.lock")

	require.NoError(t, fresh.Release())
}

func TestProgressPath(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, filepath.Join(m.Dir(), "movie_5s.jpg.progress"), m.ProgressPath("movie_5s.jpg"))
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
	assert.False(t, processAlive(0))
	assert.False(t, processAlive(-1))
}

var _ port.Lock = (*lock)(nil)
