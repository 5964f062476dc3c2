//go:build linux

package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequentialRead hints the OS that f is read mostly sequentially.
//
// if prefetch is set, then the OS is hinted to prefetch f data.
func fadviseSequentialRead(f *os.File, prefetch bool) error {
	advice := unix.FADV_SEQUENTIAL
	if prefetch {
		advice = unix.FADV_WILLNEED
	}
	return unix.Fadvise(int(f.Fd()), 0, 0, advice)
}
