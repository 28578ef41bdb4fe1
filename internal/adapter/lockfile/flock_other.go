//go:build !unix

package lockfile

import "os"

// Without flock the in-process mutex and O_EXCL creation are the only
// guards.
func flock(*os.File) error { return nil }

func funlock(*os.File) error { return nil }

// Liveness cannot be probed here; the heartbeat alone decides.
func processAlive(pid int) bool { return pid > 0 }
