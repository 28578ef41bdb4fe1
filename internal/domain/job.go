package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job records one dispatch of the encoder for a derivative.
type Job struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         Kind         `json:"kind"`
	SourcePath   string       `json:"source_path"`
	OutputPath   string       `json:"output_path"`
	Args         []string     `json:"args"`
	Status       JobStatus    `json:"status"`
	PID          int          `json:"pid"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    sql.NullTime `json:"-"`
	CompletedAt  sql.NullTime `json:"-"`
}

func NewJob(kind Kind, name, sourcePath, outputPath string, cmd Command) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       kind,
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Args:       cmd.Argv(),
		Status:     JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Duration returns how long the job ran, or zero if it never started or
// has not finished.
func (j *Job) Duration() time.Duration {
	if !j.StartedAt.Valid || !j.CompletedAt.Valid {
		return 0
	}
	return j.CompletedAt.Time.Sub(j.StartedAt.Time)
}

// Command is an external program invocation. It is never passed through a
// shell.
type Command struct {
	Path string
	Args []string
}

// Argv returns the program path followed by its arguments.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Path)
	return append(argv, c.Args...)
}

type ResultStatus string

const (
	ResultDone     ResultStatus = "done"
	ResultPending  ResultStatus = "pending"
	ResultNotFound ResultStatus = "not_found"
)

// Result is what a derivative request yields. URL is only set when the
// derivative is ready; Job is set when a job was dispatched or is known to
// be in flight.
type Result struct {
	Status ResultStatus `json:"status"`
	Name   string       `json:"name,omitempty"`
	URL    string       `json:"url"`
	Job    *Job         `json:"job,omitempty"`
}
