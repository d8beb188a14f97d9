package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/corrinhale/wsrelay/internal/config"
	"github.com/corrinhale/wsrelay/internal/credstore"
)

func credsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage the gateway's credential store",
	}

	cmd.AddCommand(credsAddCmd())
	cmd.AddCommand(credsListCmd())
	cmd.AddCommand(credsRemoveCmd())

	return cmd
}

func openStoreFromEnv() (*credstore.Store, error) {
	if flagVarDir != "" {
		if err := os.Setenv("WSRELAY_VAR_DIR", flagVarDir); err != nil {
			return nil, fmt.Errorf("set WSRELAY_VAR_DIR: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return credstore.Open(cfg.CredentialStorePath)
}

func credsAddCmd() *cobra.Command {
	var realm string

	cmd := &cobra.Command{
		Use:   "add <identity>",
		Short: "Add or replace a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := args[0]

			store, err := openStoreFromEnv()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			secret, err := readSecret(cmd)
			if err != nil {
				return err
			}

			if err := store.Put(identity, secret, realm); err != nil {
				return fmt.Errorf("add credential: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", identity)
			return nil
		},
	}

	cmd.Flags().StringVar(&realm, "realm", config.DefaultRealm, "Realm the credential is bound to")

	return cmd
}

// readSecret prompts for a password on the terminal via term.ReadPassword so
// it is never echoed or visible in process arguments. Falling back to a
// buffered stdin read keeps the command usable when stdin is a pipe (tests,
// scripted provisioning).
func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func credsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreFromEnv()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			identities, err := store.List()
			if err != nil {
				return fmt.Errorf("list credentials: %w", err)
			}
			for _, id := range identities {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id.Identity, id.Realm, id.CreatedAt)
			}
			return nil
		},
	}
}

func credsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <identity>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreFromEnv()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Remove(args[0]); err != nil {
				return fmt.Errorf("remove credential: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
