package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/transcoder/config"
	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/infrastructure/metrics"
	"github.com/bnema/transcoder/internal/port"
)

// Transcoder answers derivative requests. A request either finds a fresh
// derivative, finds one in production, or starts its production in the
// background; it never waits for the encoder.
type Transcoder struct {
	cfg        config.Transcoder
	options    *OptionResolver
	builder    port.CommandBuilder
	runner     port.ProcessRunner
	prober     port.Prober
	locks      port.JobLocker
	store      port.JobStore
	supervisor *Supervisor
}

func NewTranscoder(
	cfg config.Transcoder,
	builder port.CommandBuilder,
	runner port.ProcessRunner,
	prober port.Prober,
	locks port.JobLocker,
	store port.JobStore,
	supervisor *Supervisor,
) *Transcoder {
	return &Transcoder{
		cfg:        cfg,
		options:    NewOptionResolver(cfg.DefaultVideoOptions, cfg.DefaultThumbnailOptions),
		builder:    builder,
		runner:     runner,
		prober:     prober,
		locks:      locks,
		store:      store,
		supervisor: supervisor,
	}
}

// VideoURL returns the URL of the H.264 derivative of src, dispatching the
// encode when no fresh derivative exists.
func (t *Transcoder) VideoURL(ctx context.Context, src port.Source, opts domain.Options) (domain.Result, error) {
	return t.request(ctx, domain.KindVideo, src, opts)
}

// ThumbnailURL returns the URL of a still extracted from src.
func (t *Transcoder) ThumbnailURL(ctx context.Context, src port.Source, opts domain.Options) (domain.Result, error) {
	return t.request(ctx, domain.KindThumbnail, src, opts)
}

// VideoFilename returns the derivative name VideoURL would use.
func (t *Transcoder) VideoFilename(src port.Source, opts domain.Options) (string, error) {
	return t.filename(domain.KindVideo, src, opts)
}

func (t *Transcoder) ThumbnailFilename(src port.Source, opts domain.Options) (string, error) {
	return t.filename(domain.KindThumbnail, src, opts)
}

// Filename dispatches on kind.
func (t *Transcoder) Filename(kind domain.Kind, src port.Source, opts domain.Options) (string, error) {
	return t.filename(kind, src, opts)
}

func (t *Transcoder) filename(kind domain.Kind, src port.Source, partial domain.Options) (string, error) {
	path, err := src.ResolveLocalPath()
	if err != nil {
		return "", err
	}
	opts, err := t.options.Resolve(kind, partial)
	if err != nil {
		return "", err
	}
	return domain.DerivativeName(path, opts), nil
}

// Job returns the persisted state of a dispatched job.
func (t *Transcoder) Job(ctx context.Context, id string) (*domain.Job, error) {
	return t.store.Get(ctx, id)
}

// FileInfo probes src. A missing source, a prober failure and unparseable
// prober output all yield nil without error.
func (t *Transcoder) FileInfo(ctx context.Context, src port.Source) (*domain.ProbeResult, error) {
	path, err := src.ResolveLocalPath()
	if err != nil {
		return nil, err
	}

	if err := statSource(path); err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out, err := t.prober.Output(ctx, t.builder.Probe(path))
	if err != nil {
		logger.Warn.Printf("probe %s: %v", logger.SanitizeForLog(path), err)
		return nil, nil
	}

	result, err := domain.ParseProbe(out)
	if err != nil {
		logger.Warn.Printf("probe %s: %v", logger.SanitizeForLog(path), err)
		return nil, nil
	}
	logProbe(path, result)
	return result, nil
}

func logProbe(path string, result *domain.ProbeResult) {
	w, h := result.Dimensions()
	fps := 0.0
	if vs := result.VideoStream(); vs != nil {
		fps = domain.ParseFrameRate(vs.RFrameRate)
	}
	audio := "none"
	if as := result.AudioStream(); as != nil {
		audio = as.CodecName
	}
	logger.Debug.Printf("probed %s: %dx%d %.2ffps %.1fs audio=%s",
		logger.SanitizeForLog(path), w, h, fps, result.DurationSeconds(), audio)
}

func (t *Transcoder) request(ctx context.Context, kind domain.Kind, src port.Source, partial domain.Options) (domain.Result, error) {
	result, err := t.resolve(ctx, kind, src, partial)
	if errors.Is(err, domain.ErrSourceNotFound) {
		result, err = domain.Result{Status: domain.ResultNotFound}, nil
	}
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(string(kind), "error").Inc()
		return result, err
	}
	metrics.RequestsTotal.WithLabelValues(string(kind), string(result.Status)).Inc()
	return result, nil
}

func (t *Transcoder) resolve(ctx context.Context, kind domain.Kind, src port.Source, partial domain.Options) (domain.Result, error) {
	path, err := src.ResolveLocalPath()
	if err != nil {
		return domain.Result{}, err
	}

	if err := statSource(path); err != nil {
		return domain.Result{}, err
	}

	opts, err := t.options.Resolve(kind, partial)
	if err != nil {
		return domain.Result{}, err
	}

	name := domain.DerivativeName(path, opts)
	dst := filepath.Join(t.cfg.OutputDir, name)

	fresh, err := IsFresh(path, dst)
	if err != nil {
		return domain.Result{}, err
	}
	if fresh {
		metrics.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
		return t.done(name), nil
	}

	if job := t.supervisor.Running(name); job != nil {
		return domain.Result{Status: domain.ResultPending, Name: name, Job: job}, nil
	}

	return t.dispatch(ctx, kind, path, name, dst, opts)
}

func (t *Transcoder) dispatch(ctx context.Context, kind domain.Kind, path, name, dst string, opts domain.Options) (domain.Result, error) {
	partial := partialPath(dst)

	var cmd domain.Command
	switch kind {
	case domain.KindVideo:
		cmd = t.builder.Video(path, partial, opts)
	case domain.KindThumbnail:
		cmd = t.builder.Thumbnail(path, partial, opts)
	default:
		return domain.Result{}, fmt.Errorf("unknown derivative kind %q", kind)
	}

	job := domain.NewJob(kind, name, path, dst, cmd)

	lock, err := t.locks.Acquire(name, job.ID)
	if errors.Is(err, domain.ErrJobRunning) {
		return t.pendingElsewhere(ctx, name), nil
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("acquire lock: %w", err)
	}

	// Another holder may have finished between the freshness check and
	// the acquire.
	if fresh, err := IsFresh(path, dst); err == nil && fresh {
		_ = lock.Release()
		return t.done(name), nil
	}

	if err := os.MkdirAll(t.cfg.OutputDir, 0755); err != nil {
		_ = lock.Release()
		return domain.Result{}, fmt.Errorf("create output directory: %w", err)
	}

	if err := t.store.Create(ctx, job); err != nil {
		_ = lock.Release()
		return domain.Result{}, fmt.Errorf("record job: %w", err)
	}

	proc, err := t.runner.Start(cmd, t.locks.ProgressPath(name))
	if err != nil {
		_ = lock.Release()
		logger.Error.Printf("job %s: start encoder for %s: %v", job.ID, logger.SanitizeForLog(name), err)
		if failErr := t.store.Fail(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error.Printf("job %s: mark failed: %v", job.ID, failErr)
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = err.Error()
		metrics.JobsFinishedTotal.WithLabelValues(string(kind), string(domain.JobStatusFailed)).Inc()
		return domain.Result{Status: domain.ResultPending, Name: name, Job: job}, nil
	}

	pid := proc.PID()
	if err := lock.SetPID(pid); err != nil {
		logger.Warn.Printf("job %s: record pid in lock: %v", job.ID, err)
	}
	if err := t.store.MarkRunning(ctx, job.ID, pid); err != nil {
		logger.Error.Printf("job %s: mark running: %v", job.ID, err)
	}
	job.Status = domain.JobStatusRunning
	job.PID = pid
	job.StartedAt.Time, job.StartedAt.Valid = time.Now().UTC(), true

	metrics.JobsStartedTotal.WithLabelValues(string(kind)).Inc()
	logger.Info.Printf("job %s: encoding %s from %s (pid %d)", job.ID, logger.SanitizeForLog(name), logger.SanitizeForLog(path), pid)

	t.supervisor.Track(job, lock, proc, partial)

	return domain.Result{Status: domain.ResultPending, Name: name, Job: job}, nil
}

// pendingElsewhere answers for a derivative whose lock another process
// holds. The job handle is attached when the job store knows it.
func (t *Transcoder) pendingElsewhere(ctx context.Context, name string) domain.Result {
	result := domain.Result{Status: domain.ResultPending, Name: name}
	job, err := t.store.LatestByName(ctx, name)
	if err == nil && !job.Status.Terminal() {
		result.Job = job
	}
	return result
}

func (t *Transcoder) done(name string) domain.Result {
	return domain.Result{Status: domain.ResultDone, Name: name, URL: t.cfg.OutputURL + name}
}

// partialPath names the hidden file the encoder writes before the result
// is renamed into place. The extension is kept so the encoder can still
// infer the container.
func partialPath(dst string) string {
	dir, base := filepath.Split(dst)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+base[:len(base)-len(ext)]+".part"+ext)
}

// statSource returns domain.ErrSourceNotFound when nothing usable exists
// at path. Directories count as missing.
func statSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, domain.ErrSourceNotFound)
		}
		return fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, domain.ErrSourceNotFound)
	}
	return nil
}
