package shm

import (
	"os"

	"golang.org/x/sys/unix"
)

// Unlink removes the segment name. Mappings that already exist stay valid.
// An already removed name yields an error matching fs.ErrNotExist.
func Unlink(name string) error {
	path, err := segmentPath(name)
	if err != nil {
		return &os.PathError{Op: "shm_unlink", Path: name, Err: err}
	}

	return unlink("shm_unlink", name, path)
}

// UnlinkSemaphore removes the semaphore name. Open handles stay valid.
// An already removed name yields an error matching fs.ErrNotExist.
func UnlinkSemaphore(name string) error {
	path, err := semaphorePath(name)
	if err != nil {
		return &os.PathError{Op: "sem_unlink", Path: name, Err: err}
	}

	return unlink("sem_unlink", name, path)
}

func unlink(op, name, path string) error {
	if err := unix.Unlink(path); err != nil {
		return &os.PathError{Op: op, Path: name, Err: err}
	}

	return nil
}
