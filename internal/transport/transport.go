// Package transport tags a request's context with which of the
// Server's two dispatch paths served it, for handlers and log lines
// that care about the distinction.
package transport

import "context"

// Transport represents the type of connection transport.
type Transport int

const (
	// TransportUnknown represents an unknown transport type.
	TransportUnknown Transport = iota
	// TransportHTTP represents a plain (non-upgrade) HTTP request
	// dispatched to the Server's HttpRouter.
	TransportHTTP
	// TransportWebSocket represents a request that upgraded to a
	// WebSocket connection and was handed to a ServiceHost.
	TransportWebSocket
)

// String returns the string representation of a transport type.
func (t Transport) String() string {
	switch t {
	case TransportHTTP:
		return "http"
	case TransportWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// transportKey is the context key for transport type.
type transportKey struct{}

// WithTransport returns a new context with the transport type set.
func WithTransport(ctx context.Context, transport Transport) context.Context {
	return context.WithValue(ctx, transportKey{}, transport)
}

// GetTransport retrieves the transport type from the context.
// Returns TransportUnknown if not set.
func GetTransport(ctx context.Context) Transport {
	if t, ok := ctx.Value(transportKey{}).(Transport); ok {
		return t
	}
	return TransportUnknown
}
