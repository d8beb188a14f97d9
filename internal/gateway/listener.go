package gateway

import (
	"crypto/tls"
	"fmt"
	"net"
)

// listenerConfig holds the inputs of newPlainListener. reuseAddress is
// carried over from the Server's configuration but newPlainListener does
// not apply it: the socket is opened with plain net.Listen, so Go's own
// default SO_REUSEADDR behavior for TCP listeners applies either way.
type listenerConfig struct {
	address      string
	port         int
	secure       bool
	tlsConfig    *tls.Config
	reuseAddress bool
}

// newPlainListener builds the Server's listener for the plain-TCP and
// TLS transports. Tailnet transport goes through listener_tailscale.go
// instead.
func newPlainListener(cfg listenerConfig) (net.Listener, error) {
	addr := fmt.Sprintf("%s:%d", cfg.address, cfg.port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	if !cfg.secure {
		return ln, nil
	}

	if cfg.tlsConfig == nil {
		ln.Close()
		return nil, &ConfigError{Field: "tls_config", Message: "required when secure is true"}
	}
	return tls.NewListener(ln, cfg.tlsConfig), nil
}
