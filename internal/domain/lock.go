package domain

import "time"

// LockInfo is the content of a job lock file.
type LockInfo struct {
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	JobID     string    `json:"job_id"`
	Host      string    `json:"host"`
	OwnerPID  int       `json:"owner_pid"`
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
	Heartbeat time.Time `json:"heartbeat"`
}

// HeartbeatAge returns how long ago the holder last refreshed the lock.
func (l *LockInfo) HeartbeatAge(now time.Time) time.Duration {
	return now.Sub(l.Heartbeat)
}
