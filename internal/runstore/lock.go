package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

// RunLock guards a run directory against two processes generating into it.
// The lock is a directory because os.Mkdir is atomic on every platform.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	Command   string `json:"command,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireRunLock(runDir, command string) (RunLock, error) {
	target := strings.TrimSpace(runDir)
	if target == "" {
		return RunLock{}, fmt.Errorf("run directory is required")
	}
	if err := Mkdir(target); err != nil {
		return RunLock{}, err
	}

	lockDir := filepath.Join(target, runLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner runLockOwner
			if readErr := ReadJSON(filepath.Join(lockDir, runLockOwnerFile), &owner); readErr == nil && owner.PID > 0 {
				return RunLock{}, fmt.Errorf(
					"run directory is locked: %s (pid=%d command=%s created_at=%s host=%s)",
					target, owner.PID, owner.Command, owner.CreatedAt, owner.Hostname,
				)
			}
			return RunLock{}, fmt.Errorf("run directory is locked: %s", target)
		}
		return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		Command:   command,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, runLockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}
	return RunLock{lockDir: lockDir}, nil
}

func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	if err := os.RemoveAll(l.lockDir); err != nil {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
