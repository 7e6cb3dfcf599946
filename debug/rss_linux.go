//go:build linux

package debug

import "golang.org/x/sys/unix"

// processRSS returns the peak resident set size; getrusage reports ru_maxrss
// in KiB on Linux.
func processRSS() (uint64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	return uint64(ru.Maxrss) * 1024, true
}
