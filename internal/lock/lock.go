package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DefaultFile is the lock file name used when none is configured.
const DefaultFile = "solr-backups.lock"

type Lock struct {
	file *flock.Flock
}

// Acquire obtains a filesystem lock so two backup/restore runs never drive
// the same cluster from one host at once.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), DefaultFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another solr backup/restore run is in progress (lock: %s)", path)
	}
	return &Lock{file: lock}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Path()
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
