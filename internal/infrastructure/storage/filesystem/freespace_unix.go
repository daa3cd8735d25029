//go:build !windows

package filesystem

import (
	"os"
	"path/filepath"
	"syscall"
)

// freeSpace reports the bytes available to this process on the volume
// holding path. The path itself may not exist yet; the nearest existing
// parent is probed instead.
func freeSpace(path string) (int64, error) {
	probe := path
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(probe, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
