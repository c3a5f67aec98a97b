package shm

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Dir is where POSIX shared memory objects live on Linux. shm_open(3) and
// sem_open(3) in glibc resolve names against it, so objects created here are
// visible to C peers under the same names.
const Dir = "/dev/shm"

const (
	segmentPerm   = 0770
	semaphorePerm = 0700

	// NAME_MAX less the "sem." prefix glibc adds for semaphores.
	maxNameLen = 255 - 4
)

// ValidName reports whether name is usable as a POSIX shared memory or
// semaphore name: an optional leading slash followed by a non-empty
// component without further slashes.
func ValidName(name string) bool {
	_, err := trimName(name)
	return err == nil
}

func trimName(name string) (string, error) {
	n := strings.TrimPrefix(name, "/")

	switch {
	case n == "", n == ".", n == "..":
		return "", ErrInvalidName
	case len(n) > maxNameLen:
		return "", ErrInvalidName
	case strings.ContainsRune(n, '/'), strings.ContainsRune(n, 0):
		return "", ErrInvalidName
	}

	return n, nil
}

// segmentPath maps "/name" to the file shm_open would use.
func segmentPath(name string) (string, error) {
	n, err := trimName(name)
	if err != nil {
		return "", err
	}

	return Dir + "/" + n, nil
}

// semaphorePath maps "/name" to the file sem_open would use.
func semaphorePath(name string) (string, error) {
	n, err := trimName(name)
	if err != nil {
		return "", err
	}

	return Dir + "/sem." + n, nil
}

func shmOpen(path string, flag int, perm uint32) (*os.File, error) {
	fd, err := unix.Open(path, flag|unix.O_NOFOLLOW|unix.O_CLOEXEC, perm)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	return os.NewFile(uintptr(fd), path), nil
}
