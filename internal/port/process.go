package port

import (
	"context"

	"github.com/bnema/transcoder/internal/domain"
)

// Process is a spawned encoder.
type Process interface {
	PID() int
	Wait() error
	Kill() error
}

// ProcessRunner starts commands in the background with their combined
// output appended to progressPath.
type ProcessRunner interface {
	Start(cmd domain.Command, progressPath string) (Process, error)
}

// Prober runs a command synchronously and returns its standard output.
type Prober interface {
	Output(ctx context.Context, cmd domain.Command) ([]byte, error)
}
