package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockGatewayServer implements GatewayServer for testing.
type mockGatewayServer struct {
	port       int
	startErr   error
	startedVal atomic.Bool
	stoppedVal atomic.Bool
}

func (m *mockGatewayServer) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.startedVal.Store(true)
	return nil
}

func (m *mockGatewayServer) Stop() error {
	m.stoppedVal.Store(true)
	return nil
}

func (m *mockGatewayServer) Port() int {
	return m.port
}

func runAndAwaitStart(t *testing.T, lc *Lifecycle) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- lc.Run(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	return errCh
}

func TestLifecycleRun(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	server := &mockGatewayServer{port: 9100}
	lc := NewLifecycle(server, pidPath, "")

	errCh := runAndAwaitStart(t, lc)
	t.Cleanup(func() {
		lc.Shutdown()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
	})

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Fatal("PID file was not created")
	}
	if !server.startedVal.Load() {
		t.Fatal("server was not started")
	}

	lc.Shutdown()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("lc.Run() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}

	if !server.stoppedVal.Load() {
		t.Fatal("server was not stopped")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("PID file was not removed after shutdown")
	}
}

func TestLifecycleWithPortFile(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")
	portPath := filepath.Join(tmpDir, "var", "gateway.port")

	server := &mockGatewayServer{port: 9123}
	lc := NewLifecycle(server, pidPath, portPath)

	errCh := runAndAwaitStart(t, lc)
	t.Cleanup(func() {
		lc.Shutdown()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
	})

	port, err := ReadPortFile(portPath)
	if err != nil {
		t.Fatalf("failed to read port file: %v", err)
	}
	if port != 9123 {
		t.Fatalf("expected port 9123, got %d", port)
	}

	lc.Shutdown()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("lc.Run() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}

	if _, err := os.Stat(portPath); !os.IsNotExist(err) {
		t.Fatal("port file was not removed after shutdown")
	}
}

func TestLifecycleShutdownWithTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "t.pid")

	server := &mockGatewayServer{port: 9000}
	lc := NewLifecycle(server, pidPath, "")

	errCh := runAndAwaitStart(t, lc)

	if err := lc.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("shutdown with timeout failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("lc.Run() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not finish after shutdown signal")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("PID file was not removed")
	}
}

func TestLifecycleDoubleShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	server := &mockGatewayServer{port: 9000}
	lc := NewLifecycle(server, pidPath, "")

	errCh := runAndAwaitStart(t, lc)

	lc.Shutdown()
	lc.Shutdown() // must be a no-op, not a panic

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("lc.Run() failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestLifecyclePIDFileFailure(t *testing.T) {
	pidPath := "/nonexistent/directory/test.pid"

	server := &mockGatewayServer{port: 9000}
	lc := NewLifecycle(server, pidPath, "")

	if err := lc.Run(context.Background()); err == nil {
		t.Fatal("expected error writing PID file to invalid path")
	}
}

// TestLifecycleDeferCleanup verifies that the defer in Run() cleans up the
// PID file even when shutdown() is never reached (early return after the
// server fails to start).
func TestLifecycleDeferCleanup(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "test.pid")

	server := &mockGatewayServer{port: 9123, startErr: errors.New("mock start error")}
	lc := NewLifecycle(server, pidPath, "")

	if err := lc.Run(context.Background()); err == nil {
		t.Fatal("expected error when server fails to start")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file was not removed by defer cleanup")
	}
}

// TestLifecycleDuplicateInstanceDetection verifies that pre-startup
// validation detects an already-running instance for the same var dir.
func TestLifecycleDuplicateInstanceDetection(t *testing.T) {
	tmpDir := t.TempDir()
	pidPath := filepath.Join(tmpDir, "t.pid")
	varDir := filepath.Join(tmpDir, "var")

	pidInfo := PIDInfo{
		PID:    os.Getpid(),
		VarDir: varDir,
	}
	if err := WritePIDFileJSON(pidPath, pidInfo); err != nil {
		t.Fatalf("failed to write PID file: %v", err)
	}

	server := &mockGatewayServer{port: 9000}
	lc := NewLifecycle(server, pidPath, "")
	lc.SetVarDir(varDir)

	err := lc.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when starting duplicate instance for same var dir")
	}
	if !strings.Contains(err.Error(), "already running") || !strings.Contains(err.Error(), varDir) {
		t.Fatalf("expected error to mention 'already running' and %s, got: %v", varDir, err)
	}
}
