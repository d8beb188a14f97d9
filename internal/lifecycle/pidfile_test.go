package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWritePIDFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	info := PIDInfo{
		PID:        os.Getpid(),
		VarDir:     "/test/var",
		StartedAt:  time.Now().UTC(),
		ListenAddr: "127.0.0.1:8443",
	}

	if err := WritePIDFileJSON(pidPath, info); err != nil {
		t.Fatalf("WritePIDFileJSON failed: %v", err)
	}

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Fatal("PID file was not created")
	}

	data, err := os.ReadFile(pidPath) //nolint:gosec // G304 - test fixture path
	if err != nil {
		t.Fatalf("Failed to read PID file: %v", err)
	}

	var readInfo PIDInfo
	if err := json.Unmarshal(data, &readInfo); err != nil {
		t.Fatalf("PID file is not valid JSON: %v", err)
	}

	if readInfo.PID != info.PID {
		t.Fatalf("PID mismatch: got %d, want %d", readInfo.PID, info.PID)
	}
	if readInfo.VarDir != info.VarDir {
		t.Fatalf("VarDir mismatch: got %s, want %s", readInfo.VarDir, info.VarDir)
	}
	if readInfo.ListenAddr != info.ListenAddr {
		t.Fatalf("ListenAddr mismatch: got %s, want %s", readInfo.ListenAddr, info.ListenAddr)
	}
}

func TestWritePIDFileJSONCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "subdir", "test.pid")

	if err := WritePIDFileJSON(pidPath, PIDInfo{PID: os.Getpid()}); err != nil {
		t.Fatalf("WritePIDFileJSON failed: %v", err)
	}

	if _, err := os.Stat(filepath.Dir(pidPath)); os.IsNotExist(err) {
		t.Fatal("PID file directory was not created")
	}
}

func TestReadPIDFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	original := PIDInfo{
		PID:        12345,
		VarDir:     "/test/var",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		ListenAddr: "0.0.0.0:9000",
	}

	data, _ := json.Marshal(original)
	if err := os.WriteFile(pidPath, data, 0600); err != nil {
		t.Fatalf("Failed to write test PID file: %v", err)
	}

	info, err := ReadPIDFileJSON(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFileJSON failed: %v", err)
	}

	if info.PID != original.PID {
		t.Fatalf("PID mismatch: got %d, want %d", info.PID, original.PID)
	}
	if info.VarDir != original.VarDir {
		t.Fatalf("VarDir mismatch: got %s, want %s", info.VarDir, original.VarDir)
	}
	if info.ListenAddr != original.ListenAddr {
		t.Fatalf("ListenAddr mismatch: got %s, want %s", info.ListenAddr, original.ListenAddr)
	}
}

func TestReadPIDFileJSON_NotExist(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	_, err := ReadPIDFileJSON(pidPath)
	if err == nil {
		t.Fatal("expected error reading non-existent PID file")
	}
	if !os.IsNotExist(err) {
		t.Errorf("expected IsNotExist error, got: %v", err)
	}
}

func TestReadPIDFileJSON_InvalidContent(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	if err := os.WriteFile(pidPath, []byte("not json"), 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := ReadPIDFileJSON(pidPath)
	if err == nil {
		t.Fatal("expected error reading malformed PID file")
	}
}

func TestCheckPIDFileJSON_Running(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	info := PIDInfo{PID: os.Getpid(), VarDir: "/test/var"}
	if err := WritePIDFileJSON(pidPath, info); err != nil {
		t.Fatalf("WritePIDFileJSON failed: %v", err)
	}

	running, readInfo, err := CheckPIDFileJSON(pidPath)
	if err != nil {
		t.Fatalf("CheckPIDFileJSON failed: %v", err)
	}
	if !running {
		t.Fatal("expected process to be running")
	}
	if readInfo.PID != os.Getpid() {
		t.Fatalf("PID mismatch: got %d, want %d", readInfo.PID, os.Getpid())
	}
	if readInfo.VarDir != "/test/var" {
		t.Fatalf("VarDir mismatch: got %s, want /test/var", readInfo.VarDir)
	}
}

func TestCheckPIDFileJSON_Stale(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	info := PIDInfo{PID: 999999, VarDir: "/test/var"}
	if err := WritePIDFileJSON(pidPath, info); err != nil {
		t.Fatalf("WritePIDFileJSON failed: %v", err)
	}

	running, readInfo, err := CheckPIDFileJSON(pidPath)
	if err != nil {
		t.Fatalf("CheckPIDFileJSON failed: %v", err)
	}
	if running {
		t.Fatal("expected process to not be running (stale PID)")
	}
	if readInfo.PID != 999999 {
		t.Fatalf("PID mismatch: got %d, want 999999", readInfo.PID)
	}
}

func TestCheckPIDFileJSON_NotExist(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	running, info, err := CheckPIDFileJSON(pidPath)
	if err != nil {
		t.Fatalf("CheckPIDFileJSON failed: %v", err)
	}
	if running {
		t.Fatal("expected running to be false for non-existent PID file")
	}
	if info.PID != 0 {
		t.Fatalf("expected PID to be 0 for non-existent file, got %d", info.PID)
	}
}

func TestValidatePIDVarDir(t *testing.T) {
	tests := []struct {
		name     string
		info     PIDInfo
		expected string
		want     bool
	}{
		{
			name:     "matching var dirs",
			info:     PIDInfo{PID: 123, VarDir: "/test/var"},
			expected: "/test/var",
			want:     true,
		},
		{
			name:     "different var dirs",
			info:     PIDInfo{PID: 123, VarDir: "/test/var1"},
			expected: "/test/var2",
			want:     false,
		},
		{
			name:     "empty var dir in PID file — cannot confirm match",
			info:     PIDInfo{PID: 123, VarDir: ""},
			expected: "/test/var",
			want:     false,
		},
		{
			name:     "empty expected dir with non-empty PID var dir",
			info:     PIDInfo{PID: 123, VarDir: "/test/var"},
			expected: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePIDVarDir(tt.info, tt.expected)
			if got != tt.want {
				t.Errorf("ValidatePIDVarDir() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemovePIDFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	if err := WritePIDFileJSON(pidPath, PIDInfo{PID: os.Getpid()}); err != nil {
		t.Fatalf("WritePIDFileJSON failed: %v", err)
	}

	if err := RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("PID file was not removed")
	}
}

func TestRemovePIDFileNotExist(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "nonexistent.pid")

	if err := RemovePIDFile(pidPath); err != nil {
		t.Fatalf("RemovePIDFile failed on non-existent file: %v", err)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Fatal("expected current process to be running")
	}
	if isProcessRunning(999999) {
		t.Fatal("expected non-existent process to not be running")
	}
}
