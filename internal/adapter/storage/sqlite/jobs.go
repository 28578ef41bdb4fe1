package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
)

const jobColumns = `id, name, kind, source_path, output_path, args, status, pid,
	error_message, created_at, started_at, completed_at`

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	args, err := json.Marshal(job.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, kind, source_path, output_path, args, status, pid, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, string(job.Kind), job.SourcePath, job.OutputPath, string(args),
		string(job.Status), job.PID, job.ErrorMessage, job.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// LatestByName returns the most recently created job for a derivative.
func (s *Store) LatestByName(ctx context.Context, name string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, name)
	return scanJob(row)
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (`+placeholders+`)
		ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) MarkRunning(ctx context.Context, id string, pid int) error {
	return s.update(ctx, `
		UPDATE jobs SET status = ?, pid = ?, started_at = ?
		WHERE id = ?`,
		string(domain.JobStatusRunning), pid, time.Now().UTC(), id)
}

func (s *Store) Complete(ctx context.Context, id string) error {
	return s.update(ctx, `
		UPDATE jobs SET status = ?, error_message = '', completed_at = ?
		WHERE id = ?`,
		string(domain.JobStatusDone), time.Now().UTC(), id)
}

func (s *Store) Fail(ctx context.Context, id string, errMsg string) error {
	return s.update(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		string(domain.JobStatusFailed), errMsg, time.Now().UTC(), id)
}

// DeleteFinishedBefore prunes terminal jobs completed before cutoff.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(domain.JobStatusDone), string(domain.JobStatusFailed), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job    domain.Job
		kind   string
		status string
		args   string
	)
	err := row.Scan(
		&job.ID, &job.Name, &kind, &job.SourcePath, &job.OutputPath, &args, &status, &job.PID,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Kind = domain.Kind(kind)
	job.Status = domain.JobStatus(status)
	if err := json.Unmarshal([]byte(args), &job.Args); err != nil {
		return nil, fmt.Errorf("decode args for job %s: %w", job.ID, err)
	}
	return &job, nil
}

var _ port.JobStore = (*Store)(nil)
