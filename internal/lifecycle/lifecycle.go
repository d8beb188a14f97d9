package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// GatewayServer is the subset of gateway.Server that Lifecycle needs to
// drive startup and shutdown. Declared here so that this package does not
// import internal/gateway.
type GatewayServer interface {
	Start(ctx context.Context) error
	Stop() error
	Port() int
}

// Lifecycle manages process-level concerns around a GatewayServer: PID file
// bookkeeping, a single-instance flock, signal handling, and graceful
// shutdown.
type Lifecycle struct {
	server       GatewayServer
	pidFile      string
	portFile     string
	varDir       string // var directory this instance owns, for PID affinity
	lockFile     string
	lock         *FileLock
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewLifecycle creates a new lifecycle manager wrapping server. portFile may
// be empty to skip writing the bound port to disk.
func NewLifecycle(server GatewayServer, pidFile, portFile string) *Lifecycle {
	return &Lifecycle{
		server:     server,
		pidFile:    pidFile,
		portFile:   portFile,
		shutdownCh: make(chan struct{}),
	}
}

// SetVarDir records the var directory this instance owns, embedded in the
// PID file so a later invocation can tell whether a running process belongs
// to the same instance. Call before Run().
func (l *Lifecycle) SetVarDir(varDir string) {
	l.varDir = varDir
}

// SetLockFile sets the lock file path used for flock-based single-instance
// detection. Call before Run().
func (l *Lifecycle) SetLockFile(lockFile string) {
	l.lockFile = lockFile
}

// Run starts the server and blocks, handling signals, until shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	// Acquire the file lock first; the OS releases it automatically even on
	// SIGKILL, so it is the last line of defense against a second instance.
	if l.lockFile != "" {
		lock, err := AcquireLock(l.lockFile)
		if err != nil {
			return fmt.Errorf("failed to acquire lifecycle lock: %w", err)
		}
		l.lock = lock
		defer func() {
			if l.lock != nil {
				if err := l.lock.Release(); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to release lock: %v\n", err)
				}
			}
		}()
	}

	existing, existingInfo, err := CheckPIDFileJSON(l.pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to read existing PID file: %v\n", err)
	} else if existing {
		if ValidatePIDVarDir(existingInfo, l.varDir) {
			return fmt.Errorf("gateway already running (PID %d) for var dir %s", existingInfo.PID, l.varDir)
		}
		fmt.Fprintf(os.Stderr, "warning: PID %d is running for a different var dir %s, overwriting PID file\n",
			existingInfo.PID, existingInfo.VarDir)
	}

	pidInfo := PIDInfo{
		PID:       os.Getpid(),
		VarDir:    l.varDir,
		StartedAt: time.Now().UTC(),
	}
	if err := WritePIDFileJSON(l.pidFile, pidInfo); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	var shutdownComplete bool
	var shutdownMu sync.Mutex
	defer func() {
		shutdownMu.Lock()
		done := shutdownComplete
		shutdownMu.Unlock()
		if !done {
			_ = l.server.Stop()
			if l.portFile != "" {
				_ = RemovePortFile(l.portFile)
			}
			_ = RemovePIDFile(l.pidFile)
		}
	}()

	if err := l.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	if l.portFile != "" {
		if err := WritePortFile(l.portFile, l.server.Port()); err != nil {
			return fmt.Errorf("failed to write port file: %w", err)
		}
	}

	go l.handleSignals(ctx)

	<-l.shutdownCh

	shutdownMu.Lock()
	shutdownComplete = true
	shutdownMu.Unlock()
	return l.shutdown()
}

// handleSignals listens for OS signals and triggers shutdown.
func (l *Lifecycle) handleSignals(_ context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Fprintf(os.Stderr, "received signal %v, initiating graceful shutdown...\n", sig)

	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

// shutdown performs the graceful shutdown sequence.
func (l *Lifecycle) shutdown() error {
	fmt.Fprintln(os.Stderr, "starting graceful shutdown...")

	if err := l.server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error stopping gateway server: %v\n", err)
	}

	if l.portFile != "" {
		if err := RemovePortFile(l.portFile); err != nil {
			fmt.Fprintf(os.Stderr, "error removing port file: %v\n", err)
		}
	}

	if err := RemovePIDFile(l.pidFile); err != nil {
		fmt.Fprintf(os.Stderr, "error removing PID file: %v\n", err)
		return err
	}

	// Released here for a clean shutdown; the defer in Run() is the safety
	// net for non-graceful exits. Release is idempotent and nil-safe.
	if l.lock != nil {
		if err := l.lock.Release(); err != nil {
			fmt.Fprintf(os.Stderr, "error releasing lock: %v\n", err)
		}
	}

	fmt.Fprintln(os.Stderr, "graceful shutdown complete")
	return nil
}

// Shutdown triggers a graceful shutdown; safe to call programmatically or
// from a signal handler. Safe to call more than once.
func (l *Lifecycle) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

// ShutdownWithTimeout triggers shutdown as Shutdown does and then checks,
// up to timeout, that the shutdown channel is closed. Shutdown closes it
// before the check, so this returns nil at once; it does not wait for
// Run to finish its shutdown sequence.
func (l *Lifecycle) ShutdownWithTimeout(timeout time.Duration) error {
	l.Shutdown()

	select {
	case <-l.shutdownCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown signal not processed after %v", timeout)
	}
}
