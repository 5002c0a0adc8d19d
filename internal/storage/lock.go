package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// InstanceLock is the lock file a long-running rca process writes next to a
// SQLite database. Only the holder runs background event retention against it.
type InstanceLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// LockPath returns the lock file used for dbPath.
func LockPath(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return filepath.Join(filepath.Dir(absPath), filepath.Base(absPath)+".lock"), nil
}

// AcquireInstanceLock claims dbPath for holder. A lock left by a process that
// no longer exists is taken over.
// Returns the lock file path for ReleaseInstanceLock.
func AcquireInstanceLock(dbPath, holder string) (lockPath string, err error) {
	lockPath, err = LockPath(dbPath)
	if err != nil {
		return "", err
	}

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing InstanceLock
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("%s is already running against %s (PID %d on %s, started %s)",
					existing.Holder, dbPath, existing.PID, existing.Hostname,
					existing.StartedAt.Format(time.RFC3339))
			}
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := InstanceLock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create instance lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseInstanceLock removes the lock file. An empty path is a no-op.
func ReleaseInstanceLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove instance lock: %w", err)
	}

	return nil
}

// isProcessAlive reports whether pid exists on hostname.
// Processes on other hosts cannot be checked and count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks the pid without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: the process exists but belongs to someone else
	if err == syscall.EPERM {
		return true
	}

	return false
}
