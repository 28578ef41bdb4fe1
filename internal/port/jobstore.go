package port

import (
	"context"
	"time"

	"github.com/bnema/transcoder/internal/domain"
)

type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	LatestByName(ctx context.Context, name string) (*domain.Job, error)
	ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error)
	MarkRunning(ctx context.Context, id string, pid int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, errMsg string) error
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
