package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/infrastructure/metrics"
	"github.com/bnema/transcoder/internal/port"
	"github.com/dustin/go-humanize"
)

// progressTailBytes is how much of the encoder output is kept in the
// error message of a failed job.
const progressTailBytes = 512

// Supervisor owns the encoder processes spawned by this instance. Each one
// gets a goroutine that keeps its lock alive, waits for exit and installs
// or discards the output.
type Supervisor struct {
	store     port.JobStore
	locks     port.JobLocker
	publisher port.Publisher
	events    EventPublisher
	outputURL string
	heartbeat time.Duration

	mu      sync.Mutex
	running map[string]*supervised
	wg      sync.WaitGroup
}

type supervised struct {
	job         *domain.Job
	lock        port.Lock
	proc        port.Process
	partialPath string
}

// NewSupervisor creates a Supervisor. publisher and events may be nil.
func NewSupervisor(
	store port.JobStore,
	locks port.JobLocker,
	publisher port.Publisher,
	events EventPublisher,
	outputURL string,
	heartbeat time.Duration,
) *Supervisor {
	return &Supervisor{
		store:     store,
		locks:     locks,
		publisher: publisher,
		events:    events,
		outputURL: outputURL,
		heartbeat: heartbeat,
		running:   make(map[string]*supervised),
	}
}

// Running returns a copy of the job supervised for name, or nil.
func (s *Supervisor) Running(name string) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	sv, ok := s.running[name]
	if !ok {
		return nil
	}
	job := *sv.job
	return &job
}

func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Track hands a started encoder to the supervisor. The encoder writes to
// partialPath, which is renamed onto job.OutputPath on success.
func (s *Supervisor) Track(job *domain.Job, lock port.Lock, proc port.Process, partialPath string) {
	owned := *job
	sv := &supervised{job: &owned, lock: lock, proc: proc, partialPath: partialPath}

	s.mu.Lock()
	s.running[job.Name] = sv
	s.mu.Unlock()

	metrics.JobsRunning.Inc()
	s.publish(&owned, "")

	s.wg.Add(1)
	go s.supervise(sv)
}

func (s *Supervisor) supervise(sv *supervised) {
	defer s.wg.Done()

	exited := make(chan error, 1)
	go func() { exited <- sv.proc.Wait() }()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			s.finish(sv, err)
			return
		case <-ticker.C:
			if err := sv.lock.Heartbeat(); err != nil {
				logger.Warn.Printf("job %s: heartbeat for %s failed: %v", sv.job.ID, logger.SanitizeForLog(sv.job.Name), err)
			}
		}
	}
}

func (s *Supervisor) finish(sv *supervised, waitErr error) {
	ctx := context.Background()
	job := sv.job

	if waitErr == nil {
		if err := os.Rename(sv.partialPath, job.OutputPath); err != nil {
			waitErr = fmt.Errorf("install derivative: %w", err)
		}
	}

	if waitErr != nil {
		s.fail(ctx, sv, waitErr)
	} else {
		s.complete(ctx, sv)
	}

	s.mu.Lock()
	if s.running[job.Name] == sv {
		delete(s.running, job.Name)
	}
	s.mu.Unlock()
	metrics.JobsRunning.Dec()

	if err := sv.lock.Release(); err != nil {
		logger.Error.Printf("job %s: release lock: %v", job.ID, err)
	}

	if waitErr == nil && s.publisher != nil {
		if err := s.publisher.Publish(ctx, job.Name, job.OutputPath); err != nil {
			logger.Error.Printf("job %s: publish %s: %v", job.ID, logger.SanitizeForLog(job.Name), err)
		}
	}

	s.publish(job, s.outputURLFor(job))
}

func (s *Supervisor) complete(ctx context.Context, sv *supervised) {
	job := sv.job

	if err := s.store.Complete(ctx, job.ID); err != nil {
		logger.Error.Printf("job %s: mark done: %v", job.ID, err)
	}
	s.settle(job, domain.JobStatusDone, "")

	removeIfExists(s.locks.ProgressPath(job.Name))

	size := "unknown size"
	if info, err := os.Stat(job.OutputPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	elapsed := job.Duration()
	logger.Info.Printf("job %s: %s ready (%s) in %s", job.ID, logger.SanitizeForLog(job.Name), size, elapsed.Round(time.Millisecond))

	metrics.JobsFinishedTotal.WithLabelValues(string(job.Kind), string(domain.JobStatusDone)).Inc()
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(elapsed.Seconds())
}

func (s *Supervisor) fail(ctx context.Context, sv *supervised, cause error) {
	job := sv.job
	removeIfExists(sv.partialPath)

	msg := cause.Error()
	if tail := readTail(s.locks.ProgressPath(job.Name), progressTailBytes); tail != "" {
		msg += ": " + tail
	}

	if err := s.store.Fail(ctx, job.ID, msg); err != nil {
		logger.Error.Printf("job %s: mark failed: %v", job.ID, err)
	}
	s.settle(job, domain.JobStatusFailed, msg)

	logger.Error.Printf("job %s: %s failed: %v", job.ID, logger.SanitizeForLog(job.Name), cause)
	metrics.JobsFinishedTotal.WithLabelValues(string(job.Kind), string(domain.JobStatusFailed)).Inc()
}

// settle records the terminal status on the supervised copy of the job.
func (s *Supervisor) settle(job *domain.Job, status domain.JobStatus, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = status
	job.ErrorMessage = msg
	job.CompletedAt.Time, job.CompletedAt.Valid = time.Now().UTC(), true
}

func (s *Supervisor) outputURLFor(job *domain.Job) string {
	if job.Status != domain.JobStatusDone {
		return ""
	}
	return s.outputURL + job.Name
}

func (s *Supervisor) publish(job *domain.Job, url string) {
	if s.events == nil {
		return
	}
	s.events.Publish(job.Name, Event{
		Type:    "status",
		JobID:   job.ID,
		Name:    job.Name,
		Status:  string(job.Status),
		Message: job.ErrorMessage,
		URL:     url,
	})
}

// Shutdown kills every supervised encoder and waits for the supervising
// goroutines to record the outcome, or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, sv := range s.running {
		logger.Info.Printf("killing encoder for job %s (pid %d)", sv.job.ID, sv.proc.PID())
		if err := sv.proc.Kill(); err != nil {
			logger.Warn.Printf("kill job %s: %v", sv.job.ID, err)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every supervised job has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn.Printf("remove %s: %v", path, err)
	}
}

// readTail returns up to n trailing bytes of the file at path, trimmed.
func readTail(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	if info.Size() > n {
		if _, err := f.Seek(info.Size()-n, io.SeekStart); err != nil {
			return ""
		}
	}

	data, err := io.ReadAll(io.LimitReader(f, n))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
}
