//go:build unix && !linux

package platform

import "golang.org/x/sys/unix"

func DisableCoreDumps() error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})
}
