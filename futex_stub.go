//go:build !linux || !(amd64 || arm64)

package shm

import "time"

const futexSupported = false

func futexWait(addr *uint32, val uint32, timeout time.Duration) error {
	return ErrUnsupported
}

func futexWake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}
