//go:build windows

package filesystem

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
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

	name, err := windows.UTF16PtrFromString(probe)
	if err != nil {
		return 0, err
	}
	var availableToCaller, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(name, &availableToCaller, &total, &totalFree); err != nil {
		return 0, err
	}
	return int64(availableToCaller), nil
}
