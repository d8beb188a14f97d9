package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// PIDInfo contains gateway process metadata stored in the PID file.
type PIDInfo struct {
	PID        int       `json:"pid"`
	VarDir     string    `json:"var_dir,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	ListenAddr string    `json:"listen_addr,omitempty"`
}

// WritePIDFileJSON writes process information to the PID file in JSON format.
func WritePIDFileJSON(path string, info PIDInfo) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal PID info: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// ReadPIDFileJSON reads process information from the PID file.
func ReadPIDFileJSON(path string) (PIDInfo, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304 - path from internal var directory
	if err != nil {
		// Return error without wrapping to preserve os.IsNotExist check
		return PIDInfo{}, err
	}

	var info PIDInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return PIDInfo{}, fmt.Errorf("invalid PID file format: %w", err)
	}
	return info, nil
}

// CheckPIDFileJSON checks if the PID file exists and if the process is running.
// Returns: (running bool, PIDInfo, error)
// - running: true if process is running, false if stale or doesn't exist
// - PIDInfo: process metadata from the file (PID=0 if file doesn't exist)
// - error: any error reading the file (nil if file doesn't exist).
func CheckPIDFileJSON(path string) (bool, PIDInfo, error) {
	info, err := ReadPIDFileJSON(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, PIDInfo{}, nil
		}
		return false, PIDInfo{}, err
	}

	running := isProcessRunning(info.PID)

	return running, info, nil
}

// ValidatePIDVarDir reports whether the PID file's var directory matches the
// expected one. Empty var dirs (e.g. a PID file from a different build)
// return false — the flock is the arbiter for running-process detection when
// instance affinity cannot be confirmed.
func ValidatePIDVarDir(info PIDInfo, expectedVarDir string) bool {
	if info.VarDir == "" {
		return false
	}
	return filepath.Clean(info.VarDir) == filepath.Clean(expectedVarDir)
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// isProcessRunning checks if a process with the given PID is running.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		// On Unix, FindProcess always succeeds
		return false
	}

	// Signal 0 checks existence/permission without actually signaling.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	if err == syscall.ESRCH {
		return false
	}

	if err == syscall.EPERM {
		// Process exists but we don't have permission to signal it.
		return true
	}

	return false
}
