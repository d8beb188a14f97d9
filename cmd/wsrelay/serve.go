package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/corrinhale/wsrelay/internal/config"
	"github.com/corrinhale/wsrelay/internal/credstore"
	"github.com/corrinhale/wsrelay/internal/gateway"
	"github.com/corrinhale/wsrelay/internal/lifecycle"
)

const (
	defaultPIDFile  = "gateway.pid"
	defaultLockFile = "gateway.lock"
)

func serveCmd() *cobra.Command {
	var echoPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagVarDir != "" {
				if err := os.Setenv("WSRELAY_VAR_DIR", flagVarDir); err != nil {
					return fmt.Errorf("set WSRELAY_VAR_DIR: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var finder gateway.CredentialFinder
			if cfg.AuthScheme != "anonymous" {
				store, err := credstore.Open(cfg.CredentialStorePath)
				if err != nil {
					return fmt.Errorf("open credential store: %w", err)
				}
				defer func() { _ = store.Close() }()
				finder = store
			}

			srv := gateway.NewServer(*cfg, finder)
			if echoPath != "" {
				if _, err := srv.AddService(echoPath, newEchoBehavior); err != nil {
					return fmt.Errorf("register echo service: %w", err)
				}
			}

			lc := lifecycle.NewLifecycle(srv, filepath.Join(cfg.VarDir, defaultPIDFile), lifecycle.PortFilePath(cfg.VarDir))
			lc.SetVarDir(cfg.VarDir)
			lc.SetLockFile(filepath.Join(cfg.VarDir, defaultLockFile))

			return lc.Run(context.Background())
		},
	}

	cmd.Flags().StringVar(&echoPath, "echo-path", "/echo", "Path to bind a built-in echo service, empty to disable")

	return cmd
}
