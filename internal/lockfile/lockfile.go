// Package lockfile implements the process-wide advisory lock that keeps two
// RawSampler instances from writing the same log tree concurrently.
package lockfile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/keisuke0821/elenc/internal/elerrors"
)

// Lock is a held advisory lock. Release deletes the lock file.
type Lock struct {
	path string
}

// Acquire creates path exclusively and writes the current process id into it
// in ASCII. If the file already exists, it returns elerrors.ErrLocked.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("lockfile %s: %w", path, elerrors.ErrLocked)
		}
		return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("lockfile: write %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	return os.Remove(l.path)
}
