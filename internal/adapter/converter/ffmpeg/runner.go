package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
)

var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("path contains null byte")
)

func validatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return ErrInvalidPath
	}
	return nil
}

func validateCommand(cmd domain.Command) error {
	if err := validatePath(cmd.Path); err != nil {
		return fmt.Errorf("invalid program path: %w", err)
	}
	for _, arg := range cmd.Args {
		if strings.ContainsRune(arg, 0) {
			return fmt.Errorf("invalid argument %q: %w", arg, ErrInvalidPath)
		}
	}
	return nil
}

// Runner spawns encoder processes detached from the caller. The process
// keeps running when the request that started it returns.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

func (r *Runner) Start(cmd domain.Command, progressPath string) (port.Process, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if err := validatePath(progressPath); err != nil {
		return nil, fmt.Errorf("invalid progress path: %w", err)
	}

	progress, err := os.OpenFile(progressPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open progress file: %w", err)
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Stdout = progress
	c.Stderr = progress
	c.Stdin = nil
	c.SysProcAttr = detachedAttr()

	if err := c.Start(); err != nil {
		_ = progress.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &process{cmd: c, progress: progress}, nil
}

type process struct {
	cmd      *exec.Cmd
	progress *os.File
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Wait() error {
	err := p.cmd.Wait()
	_ = p.progress.Close()
	return err
}

func (p *process) Kill() error {
	return p.cmd.Process.Kill()
}

// CommandProber runs the prober synchronously.
type CommandProber struct{}

func NewProber() *CommandProber {
	return &CommandProber{}
}

func (p *CommandProber) Output(ctx context.Context, cmd domain.Command) ([]byte, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	var stderr bytes.Buffer
	c.Stderr = &stderr

	out, err := c.Output()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w - %s", cmd.Path, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

var (
	_ port.ProcessRunner = (*Runner)(nil)
	_ port.Prober        = (*CommandProber)(nil)
)
