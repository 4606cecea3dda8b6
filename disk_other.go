//go:build !linux && !darwin

package blockfs

import "os"

// lockExclusive is a no-op on platforms without flock semantics; exclusive
// ownership is documented but not enforced there.
func lockExclusive(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) error {
	return nil
}
