package logger

import (
	"io"
	"log"
	"os"
	"strings"
)

var (
	Info  *log.Logger
	Error *log.Logger
	Debug *log.Logger
	Warn  *log.Logger
)

const logFlags = log.Ldate | log.Ltime | log.LUTC | log.Lshortfile

func init() {
	Setup(os.Stdout, "info")
}

// Setup points every logger at w. Levels below level are discarded; the
// recognized levels are debug, info, warn and error.
func Setup(w io.Writer, level string) {
	rank := levelRank(level)

	Debug = log.New(writerFor(w, rank <= 0), "DEBUG: ", logFlags)
	Info = log.New(writerFor(w, rank <= 1), "INFO: ", logFlags)
	Warn = log.New(writerFor(w, rank <= 2), "WARN: ", logFlags)
	Error = log.New(w, "ERROR: ", logFlags)
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}

func writerFor(w io.Writer, enabled bool) io.Writer {
	if enabled {
		return w
	}
	return io.Discard
}
