package domain

import "errors"

var (
	ErrNotFound          = errors.New("resource not found")
	ErrSourceNotFound    = errors.New("source media not found")
	ErrUnsupportedSource = errors.New("paths not available for non-local sources")
	ErrMissingDefaults   = errors.New("no default options configured")
	ErrJobRunning        = errors.New("derivative job already running")
)
