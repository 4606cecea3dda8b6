//go:build linux || darwin

package blockfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive enforces "the image file is exclusively owned by one
// filesystem instance while loaded" (spec §3) with an OS-level advisory
// lock, instead of leaving it as a documentation-only rule.
func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
