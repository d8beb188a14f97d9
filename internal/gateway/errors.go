package gateway

import "fmt"

// ConfigError reports an invalid configuration detected synchronously at
// construction or Start time (bad port, missing TLS certificate, invalid
// close code, oversized close reason, non-local bind address).
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// StateError reports that a mutator or AddService call was attempted while
// the Server or SessionManager was not in the Ready state. Callers never
// see this as a panic: it is returned as an error and the operation is a
// no-op.
type StateError struct {
	Op       string
	State    State
	Expected State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s requires state %s, got %s", e.Op, e.Expected, e.State)
}

// ProtocolError reports a malformed or disallowed request at the HTTP/
// WebSocket framing layer: bad upgrade, disallowed forwarded request,
// unknown path. The caller receives the corresponding HTTP status; this
// type exists for logging and tests, never surfaced as a panic.
type ProtocolError struct {
	Status  int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%d): %s", e.Status, e.Message)
}

// AuthError reports that a request failed authentication. The connection
// receives a challenge or 403 and is closed.
type AuthError struct {
	Scheme  AuthScheme
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Scheme, e.Message)
}

// ErrCloseCodeReserved is returned when a caller attempts to hand a
// reserved close code (1005, 1006) to an API that forbids supplying one
// explicitly, or an out-of-range/mandatory-extension code (1010) to Stop.
type ErrCloseCodeReserved struct {
	Code uint16
}

func (e *ErrCloseCodeReserved) Error() string {
	return fmt.Sprintf("close code %d may not be supplied by a caller", e.Code)
}
