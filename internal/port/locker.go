package port

import "github.com/bnema/transcoder/internal/domain"

// JobLocker guards derivative names against duplicate concurrent jobs.
// Acquire returns domain.ErrJobRunning while another live holder exists.
type JobLocker interface {
	Acquire(name, jobID string) (Lock, error)
	Inspect(name string) (*domain.LockInfo, bool, error)
	Sweep() (int, error)
	ProgressPath(name string) string
}

type Lock interface {
	Info() domain.LockInfo
	SetPID(pid int) error
	Heartbeat() error
	Release() error
}
