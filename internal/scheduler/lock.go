package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AcquireLock takes an exclusive, non-blocking file lock held for the
// process lifetime so at most one scheduler instance runs per deployment.
// Returns acquired=false when another instance already holds it; the
// caller is expected to exit cleanly in that case.
func AcquireLock(path string) (*flock.Flock, bool, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return nil, false, fmt.Errorf("create lock directory: %w", err)
		}
	}

	lock := flock.New(path)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	return lock, acquired, nil
}
