package service

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/transcoder/config"
	"github.com/bnema/transcoder/internal/adapter/converter/ffmpeg"
	"github.com/bnema/transcoder/internal/adapter/lockfile"
	"github.com/bnema/transcoder/internal/adapter/storage/sqlite"
	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid    int
	output string
	done   chan error
	once   sync.Once
}

func (p *fakeProcess) PID() int    { return p.pid }
func (p *fakeProcess) Wait() error { return <-p.done }

func (p *fakeProcess) Kill() error {
	p.exit(errors.New("signal: killed"))
	return nil
}

// Succeed writes the encoder output and exits cleanly.
func (p *fakeProcess) Succeed(data string) error {
	if err := os.WriteFile(p.output, []byte(data), 0644); err != nil {
		return err
	}
	p.exit(nil)
	return nil
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() { p.done <- err })
}

type fakeRunner struct {
	mu       sync.Mutex
	startErr error
	cmds     []domain.Command
	procs    []*fakeProcess
}

func (r *fakeRunner) Start(cmd domain.Command, progressPath string) (port.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cmds = append(r.cmds, cmd)
	if r.startErr != nil {
		return nil, r.startErr
	}

	if err := os.WriteFile(progressPath, []byte("frame=1 fps=0.0\n"), 0644); err != nil {
		return nil, err
	}

	p := &fakeProcess{
		pid:    40000 + len(r.procs),
		output: cmd.Args[len(cmd.Args)-1],
		done:   make(chan error, 1),
	}
	r.procs = append(r.procs, p)
	return p, nil
}

func (r *fakeRunner) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func (r *fakeRunner) Proc(i int) *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[i]
}

func (r *fakeRunner) ExitAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.procs {
		p.exit(err)
	}
}

func (r *fakeRunner) Cmd(i int) domain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmds[i]
}

type harness struct {
	transcoder *Transcoder
	supervisor *Supervisor
	runner     *fakeRunner
	prober     port.Prober
	store      *sqlite.Store
	locks      *lockfile.Manager
	events     *EventBus
	mediaDir   string
	outputDir  string
	lockDir    string
}

type harnessOption func(*config.Transcoder, *harnessDeps)

type harnessDeps struct {
	prober    port.Prober
	publisher port.Publisher
}

func withProber(p port.Prober) harnessOption {
	return func(_ *config.Transcoder, d *harnessDeps) { d.prober = p }
}

func withPublisher(p port.Publisher) harnessOption {
	return func(_ *config.Transcoder, d *harnessDeps) { d.publisher = p }
}

func withoutThumbnailDefaults() harnessOption {
	return func(c *config.Transcoder, _ *harnessDeps) { c.DefaultThumbnailOptions = nil }
}

const testStaleAfter = time.Minute

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	root := t.TempDir()
	h := &harness{
		runner:    &fakeRunner{},
		events:    NewEventBus(),
		mediaDir:  filepath.Join(root, "media"),
		outputDir: filepath.Join(root, "out"),
		lockDir:   filepath.Join(root, "locks"),
	}
	require.NoError(t, os.MkdirAll(h.mediaDir, 0755))

	cfg := config.Transcoder{
		EncoderPath:             "/usr/bin/ffmpeg",
		ProberPath:              "/usr/bin/ffprobe",
		ProberOptions:           "-v quiet -print_format json -show_format -show_streams",
		OutputDir:               h.outputDir,
		OutputURL:               "/derivatives/",
		DefaultVideoOptions:     domain.Options{"fileSuffix": ".mp4", "bitRate": "800k"},
		DefaultThumbnailOptions: domain.Options{"fileSuffix": ".jpg", "timeInSecs": 1},
	}
	deps := &harnessDeps{}
	for _, opt := range opts {
		opt(&cfg, deps)
	}
	h.prober = deps.prober

	store, err := sqlite.NewStore(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.store = store

	locks, err := lockfile.NewManager(h.lockDir, testStaleAfter)
	require.NoError(t, err)
	h.locks = locks

	h.supervisor = NewSupervisor(store, locks, deps.publisher, h.events, cfg.OutputURL, 10*time.Millisecond)
	t.Cleanup(func() {
		h.runner.ExitAll(errors.New("test ended"))
		h.supervisor.Wait()
	})

	builder := ffmpeg.NewBuilder(cfg.EncoderPath, cfg.ProberPath, cfg.ProberOptions)
	h.transcoder = NewTranscoder(cfg, builder, h.runner, h.prober, locks, store, h.supervisor)
	return h
}

// writeSource creates a source file in the media dir with the given mtime.
func (h *harness) writeSource(t *testing.T, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(h.mediaDir, name)
	require.NoError(t, os.WriteFile(path, []byte("source"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (h *harness) writeDerivative(t *testing.T, name string, mtime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(h.outputDir, 0755))
	path := filepath.Join(h.outputDir, name)
	require.NoError(t, os.WriteFile(path, []byte("derivative"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

type staticSource string

func (s staticSource) ResolveLocalPath() (string, error) { return string(s), nil }

type remoteSource struct{}

func (remoteSource) ResolveLocalPath() (string, error) {
	return "", domain.ErrUnsupportedSource
}

func writeLockFile(t *testing.T, dir string, info domain.LockInfo) {
	t.Helper()
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, info.Name+".lock"), data, 0644))
}

// orphanedLock describes a lock left by a crashed server on this host
// whose encoder is still running. The test process stands in for the
// encoder; the owner pid is beyond any pid_max.
func orphanedLock(t *testing.T, name, jobID string) domain.LockInfo {
	t.Helper()
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	old := time.Now().Add(-2 * testStaleAfter)
	return domain.LockInfo{
		Name:      name,
		Token:     "crashed-owner",
		JobID:     jobID,
		Host:      host,
		OwnerPID:  1 << 30,
		PID:       os.Getpid(),
		CreatedAt: old,
		Heartbeat: old,
	}
}
