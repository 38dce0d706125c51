package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps zeroes RLIMIT_CORE and marks the process non-dumpable so
// key material cannot be written to a core file or read through /proc.
func DisableCoreDumps() error {
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0}); err != nil {
		return err
	}
	return unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0)
}
