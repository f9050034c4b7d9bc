package config

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var runLock *flock.Flock

// AcquireLock takes the single-instance lock. Mirrors throttle by client IP,
// so two romfetch processes downloading at once defeat the queue's pacing;
// the lock keeps one process per user in charge of transfers.
// Returns false when another instance already holds it.
func AcquireLock() (bool, error) {
	stateDir := GetStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return false, err
	}

	runLock = flock.New(filepath.Join(stateDir, "romfetch.lock"))
	return runLock.TryLock()
}

// ReleaseLock releases the single-instance lock if held.
func ReleaseLock() {
	if runLock != nil {
		_ = runLock.Unlock()
		runLock = nil
	}
}
