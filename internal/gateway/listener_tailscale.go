package gateway

import (
	"fmt"
	"net"
	"os"

	"tailscale.com/client/local"
	"tailscale.com/tsnet"

	"github.com/corrinhale/wsrelay/internal/config"
)

// TailnetListener wraps a tsnet server and its listener so the Server can
// bind directly into a tailnet instead of a raw TCP socket. It satisfies
// net.Listener.
type TailnetListener struct {
	server   *tsnet.Server
	listener net.Listener
}

// NewTailnetListener creates a tsnet server and listener from the given
// config. The caller is responsible for calling Close() when done.
func NewTailnetListener(cfg config.TailscaleConfig, port int) (*TailnetListener, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("tailscale listener is not enabled")
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return nil, fmt.Errorf("create tsnet state directory %s: %w", cfg.StateDir, err)
		}
	}

	authKey := cfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("WSRELAY_TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, fmt.Errorf("tailscale auth key not set (WSRELAY_TS_AUTHKEY)")
	}

	srv := &tsnet.Server{
		Hostname: cfg.Hostname,
		AuthKey:  authKey,
		Dir:      cfg.StateDir,
	}
	if cfg.ControlURL != "" {
		srv.ControlURL = cfg.ControlURL
	}

	ln, err := srv.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("tsnet listen on :%d: %w", port, err)
	}

	return &TailnetListener{server: srv, listener: ln}, nil
}

// Accept waits for and returns the next connection.
func (t *TailnetListener) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

// Addr returns the listener's network address.
func (t *TailnetListener) Addr() net.Addr {
	return t.listener.Addr()
}

// Hostname returns the tsnet hostname this listener is bound under, used by
// the allow_forwarded_request hostname check when tailnet mode is active.
func (t *TailnetListener) Hostname() string {
	return t.server.Hostname
}

// LocalClient returns the Tailscale LocalClient for this tsnet server, used
// for WhoIs-based peer identification.
func (t *TailnetListener) LocalClient() (*local.Client, error) {
	return t.server.LocalClient()
}

// Close stops the tsnet server and its listener.
func (t *TailnetListener) Close() error {
	lnErr := t.listener.Close()
	srvErr := t.server.Close()
	if lnErr != nil {
		return fmt.Errorf("close tailnet listener: %w", lnErr)
	}
	if srvErr != nil {
		return fmt.Errorf("close tsnet server: %w", srvErr)
	}
	return nil
}
