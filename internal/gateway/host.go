package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ServiceHost binds one normalized path to a Factory and owns the
// SessionManager for every session accepted on that path.
type ServiceHost struct {
	path     string
	factory  Factory
	manager  *SessionManager
	upgrader websocket.Upgrader
}

// NewServiceHost constructs a host for a normalized path. waitTime is
// forwarded to the SessionManager (see SessionManager.WaitTime).
func NewServiceHost(path string, factory Factory, waitTime time.Duration) *ServiceHost {
	return &ServiceHost{
		path:    path,
		factory: factory,
		manager: NewSessionManager(waitTime),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Path returns the normalized path this host is bound to.
func (h *ServiceHost) Path() string { return h.path }

// Manager returns the host's SessionManager.
func (h *ServiceHost) Manager() *SessionManager { return h.manager }

// StartSession runs the opening handshake and, on success, binds a new
// Session driven by a freshly constructed Behavior. The Behavior
// instance exists before the upgrade ever occurs, so the host can offer
// it a CookieProcessor hook while the handshake is still in flight and
// no event can be emitted before the instance that must receive it
// exists.
func (h *ServiceHost) StartSession(w http.ResponseWriter, r *http.Request) {
	behavior := h.factory()

	responseHeader := http.Header{}
	if cp, ok := behavior.(CookieProcessor); ok {
		if !cp.ProcessCookies(r, responseHeader) {
			http.Error(w, "cookie rejected", http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade already wrote the failure response.
		return
	}

	ctx := &HandshakeContext{
		RequestURI: r.URL,
		Header:     r.Header.Clone(),
		Query:      r.URL.Query(),
		Cookies:    r.Cookies(),
		Identity:   identityFromContext(r.Context()),
	}

	sess := newSession(conn, ctx, behavior, h.manager.WaitTime())
	if !h.manager.add(sess) {
		_ = conn.Close()
	}
}

// Stop closes every session bound to this host.
func (h *ServiceHost) Stop(code uint16, reason string) {
	h.manager.Stop(code, reason)
}
