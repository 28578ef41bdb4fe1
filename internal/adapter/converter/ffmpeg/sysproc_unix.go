//go:build unix

package ffmpeg

import "syscall"

// detachedAttr puts the encoder in its own process group so terminal
// signals aimed at the server do not reach it.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
