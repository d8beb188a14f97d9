// Command wsrelay runs a standalone WebSocket gateway: a service registry
// that dispatches upgraded connections to registered Behaviors, with
// optional Basic/Digest authentication, Tailscale transport, and admission
// control.
package main

import (
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

var (
	// Version and Build are set via -ldflags at release build time.
	Version = "dev"
	Build   = "unknown"
)

var flagVarDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "wsrelay",
		Short: "WebSocket service gateway",
		Long: `wsrelay is a standalone WebSocket gateway.

It hosts one or more named services behind a single listener, each
driven by a Behavior that reacts to connection open, message, error,
and close events, with a shared session registry for broadcast and
targeted send.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagVarDir, "var-dir", "", "Var directory for PID/port files and the credential store (overrides WSRELAY_VAR_DIR)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("wsrelay v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(credsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
