package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corrinhale/wsrelay/internal/config"
	"github.com/corrinhale/wsrelay/internal/transport"
)

// Server is the gateway's accept loop: one bound listener (plain TCP,
// TLS, or a tailnet via tsnet) dispatching each request either to the
// HttpRouter or, for an upgrade request on a registered path, into a
// ServiceHost's binding protocol.
type Server struct {
	cfg    config.Config
	auth   *Authenticator
	admit  *Admitter
	router *HttpRouter
	reg    *ServiceRegistry

	mu        sync.Mutex
	state     atomicState
	listener  net.Listener
	tailnet   *TailnetListener
	httpSrv   *http.Server
	tlsConfig *tls.Config
}

// NewServer constructs a Server from a resolved config.Config and the
// CredentialFinder backing Basic/Digest authentication. finder may be
// nil when cfg.AuthScheme is "anonymous".
func NewServer(cfg config.Config, finder CredentialFinder) *Server {
	s := &Server{
		cfg:    cfg,
		router: NewHttpRouter(),
		reg:    NewServiceRegistry(),
		admit: NewAdmitter(AdmissionConfig{
			Enabled:              cfg.Admission.Enabled,
			MaxRequestsPerSecond: cfg.Admission.MaxRequestsPerSecond,
			BurstSize:            cfg.Admission.BurstSize,
			MaxInFlight:          cfg.Admission.MaxInFlight,
		}),
	}
	s.auth = NewAuthenticator(parseAuthScheme(cfg.AuthScheme), cfg.Realm, finder)
	s.state.store(StateReady)
	return s
}

func parseAuthScheme(s string) AuthScheme {
	switch s {
	case "basic":
		return AuthBasic
	case "digest":
		return AuthDigest
	default:
		return AuthAnonymous
	}
}

// Router exposes the Server's plain-HTTP method dispatch table so the
// caller can register non-WebSocket endpoints (health checks, status
// pages) alongside its WebSocket services.
func (s *Server) Router() *HttpRouter { return s.router }

// SetTLSConfig supplies the TLS configuration used when cfg.Secure is
// true. It must be called before Start.
func (s *Server) SetTLSConfig(c *tls.Config) {
	s.mu.Lock()
	s.tlsConfig = c
	s.mu.Unlock()
}

// AddService registers factory to serve path, returning its ServiceHost.
// Valid only in state=Ready; called while Start or ShuttingDown returns
// a StateError without registering anything.
func (s *Server) AddService(path string, factory Factory) (*ServiceHost, error) {
	if st := s.state.load(); st != StateReady {
		return nil, &StateError{Op: "AddService", State: st, Expected: StateReady}
	}
	return s.reg.Add(path, factory, s.cfg.WaitTime)
}

// RemoveService stops and unregisters the service bound to path.
func (s *Server) RemoveService(path string) {
	s.reg.Remove(path)
}

// State returns the Server's current lifecycle state.
func (s *Server) State() State { return s.state.load() }

// Start transitions Ready -> Start, binds the listener, and begins
// accepting connections on a background goroutine. It returns once the
// listener is bound, not once the Server has stopped.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.compareAndSwap(StateReady, StateStart) {
		return &StateError{Op: "Start", State: s.state.load(), Expected: StateReady}
	}

	ln, err := s.buildListener()
	if err != nil {
		s.state.store(StateReady)
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	if s.cfg.KeepClean {
		s.reg.KeepClean()
	}

	s.httpSrv = &http.Server{
		Handler:           http.HandlerFunc(s.dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("gateway: accept loop: %v", err)
		}
	}()

	return nil
}

func (s *Server) buildListener() (net.Listener, error) {
	if s.cfg.Tailscale.Enabled {
		tl, err := NewTailnetListener(s.cfg.Tailscale, s.cfg.Port)
		if err != nil {
			return nil, fmt.Errorf("build tailnet listener: %w", err)
		}
		s.mu.Lock()
		s.tailnet = tl
		s.mu.Unlock()
		return tl, nil
	}

	return newPlainListener(listenerConfig{
		address:      s.cfg.Address,
		port:         s.cfg.Port,
		secure:       s.cfg.Secure,
		tlsConfig:    s.tlsConfig,
		reuseAddress: s.cfg.ReuseAddress,
	})
}

// dispatch is the Server's single HTTP entry point: admission control,
// path lookup, and then either a WebSocket binding or a plain HTTP
// dispatch through the router.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	remoteHost := r.RemoteAddr
	if h, _, err := net.SplitHostPort(remoteHost); err == nil {
		remoteHost = h
	}
	if err := s.admit.Allow(remoteHost); err != nil {
		if ae, ok := err.(*AdmissionError); ok {
			http.Error(w, ae.Error(), ae.Code)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	normalized, err := normalizePath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	host, hasHost := s.reg.TryGet(normalized)
	if !hasHost || !websocket.IsWebSocketUpgrade(r) {
		ctx := transport.WithTransport(r.Context(), transport.TransportHTTP)
		s.router.ServeHTTP(w, r.WithContext(ctx))
		return
	}

	if !s.checkForwardedHost(r) {
		http.Error(w, "forbidden host", http.StatusBadRequest)
		return
	}

	s.admit.BeginHandshake()
	defer s.admit.EndHandshake()

	identity, err := s.auth.Authenticate(w, r)
	if err != nil {
		return // Authenticate already wrote the challenge/error response.
	}

	ctx := transport.WithTransport(contextWithIdentity(r.Context(), identity), transport.TransportWebSocket)
	host.StartSession(w, r.WithContext(ctx))
}

// checkForwardedHost implements allow_forwarded_request: when the option
// is off, it rejects a DNS-style Host/X-Forwarded-Host that does not
// match the tailnet hostname. IP-literal host values are never checked,
// the port is never compared, and the check is skipped entirely when the
// option is on or no tailnet hostname is configured.
func (s *Server) checkForwardedHost(r *http.Request) bool {
	if s.cfg.AllowForwardedRequest {
		return true
	}

	expected := s.tailnetHostname()
	if expected == "" {
		return true
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return host == expected
}

func (s *Server) tailnetHostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tailnet == nil {
		return ""
	}
	return s.tailnet.Hostname()
}

// Addr returns the Server's bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the Server's bound TCP port, falling back to the
// configured port before Start has bound a listener.
func (s *Server) Port() int {
	if addr := s.Addr(); addr != nil {
		if tcpAddr, ok := addr.(*net.TCPAddr); ok {
			return tcpAddr.Port
		}
	}
	return s.cfg.Port
}

// Stop closes every session on every registered service with code 1001
// ("going away") and shuts down the listener. It is equivalent to
// StopWithReason(1001, "server shutting down").
func (s *Server) Stop() error {
	return s.StopWithReason(1001, "server shutting down")
}

// StopWithReason transitions the Server through ShuttingDown to Stop,
// closing every bound session with the given close code and reason.
// Calling it more than once is safe; later calls are no-ops. code 1010
// (mandatory extension) is never a valid caller-supplied Stop code, and
// 1005 (no status present) may only be supplied with an empty reason;
// either violation is rejected with ErrCloseCodeReserved and the Server's
// state is left unchanged.
func (s *Server) StopWithReason(code uint16, reason string) error {
	if code == 1010 || (code == 1005 && reason != "") {
		return &ErrCloseCodeReserved{Code: code}
	}

	for {
		cur := s.state.load()
		if cur == StateStop || cur == StateShuttingDown {
			return nil
		}
		if s.state.compareAndSwap(cur, StateShuttingDown) {
			break
		}
	}

	s.reg.StopAll(code, reason)

	s.mu.Lock()
	httpSrv := s.httpSrv
	tailnet := s.tailnet
	s.mu.Unlock()

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			_ = httpSrv.Close()
		}
	}
	if tailnet != nil {
		_ = tailnet.Close()
	}

	s.state.store(StateStop)
	return nil
}
