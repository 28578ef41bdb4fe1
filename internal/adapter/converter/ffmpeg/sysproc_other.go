//go:build !unix

package ffmpeg

import "syscall"

func detachedAttr() *syscall.SysProcAttr {
	return nil
}
